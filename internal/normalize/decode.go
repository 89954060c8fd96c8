package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/models"
	"github.com/nishad/biobank/internal/table"
)

// Samples normalizes and decodes a sample log. The stale Vials_Remaining
// column is dropped before decoding; extra lists columns required on top of
// Subject, Tissue and Date_of_Sample.
func (n *Normalizer) Samples(raw *table.Table, extra ...string) (*models.SampleLog, error) {
	const op errors.Op = "normalize.samples"

	t, err := n.Table(raw)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	t = t.Drop(models.ColVialsRemaining)
	if err := requireColumns(op, t, append(append([]string{}, SampleColumns...), extra...)...); err != nil {
		return nil, err
	}

	ages := errors.NewSkipCounter(string(op) + ".age")
	sl := &models.SampleLog{Header: t.Header, Records: make([]models.SampleRecord, 0, t.Len())}
	for i, row := range t.Rows {
		rec := models.SampleRecord{Fields: make(map[string]string, len(t.Header))}
		for j, col := range t.Header {
			cell := row[j]
			switch col {
			case models.ColSubject:
				rec.Subject = cell
			case models.ColTissue:
				rec.Tissue = cell
			case models.ColDateOfSample:
				rec.DateOfSample, err = n.ParseDate(cell)
				if err != nil {
					return nil, errors.E(op, errors.KindInputSchema, err,
						fmt.Sprintf("%s row %d: invalid %s %q", t.Name, i+2, col, cell))
				}
			default:
				rec.Fields[col] = cell
			}
		}
		rec.Diagnosis = rec.Fields[models.ColDiagnosis]
		rec.Sex = rec.Fields[models.ColSex]
		if age, ok := rec.Fields[models.ColAge]; ok {
			rec.Age = parseAge(age, i+2, ages)
		}
		sl.Records = append(sl.Records, rec)
	}
	ages.Report(n.logger)
	return sl, nil
}

// Inventory normalizes and decodes the master inventory log. Vials with a
// blank Date_of_Sample cannot be matched to any draw; they are skipped and
// counted in the log.
func (n *Normalizer) Inventory(raw *table.Table) ([]models.InventoryRecord, error) {
	const op errors.Op = "normalize.inventory"

	t, err := n.Table(raw)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	if err := requireColumns(op, t, InventoryColumns...); err != nil {
		return nil, err
	}

	var (
		subj    = t.Index(models.ColSubject)
		tissue  = t.Index(models.ColTissue)
		date    = t.Index(models.ColDateOfSample)
		takenBy = t.Index(models.ColTakenBy)
		takenAt = t.Index(models.ColDateTaken)
	)
	undated := errors.NewSkipCounter(string(op) + ".date")
	out := make([]models.InventoryRecord, 0, t.Len())
	for i, row := range t.Rows {
		if table.IsNull(row[date]) {
			undated.Skip(fmt.Errorf("%s is blank", models.ColDateOfSample), fmt.Sprintf("row %d subject %q", i+2, row[subj]))
			continue
		}
		ts, err := n.ParseDate(row[date])
		if err != nil {
			return nil, errors.E(op, errors.KindInputSchema, err, fmt.Sprintf("row %d", i+2))
		}
		out = append(out, models.InventoryRecord{
			Subject:      row[subj],
			Tissue:       row[tissue],
			DateOfSample: ts,
			TakenBy:      row[takenBy],
			DateTaken:    row[takenAt],
		})
	}
	undated.Report(n.logger)
	return out, nil
}

// Consents normalizes and decodes the consent log. With strictDates set, as
// when consents are filtered by date, an unparseable Consent_Date is an
// InputSchema error. Otherwise the date is left unset and the row is kept.
func (n *Normalizer) Consents(raw *table.Table, strictDates bool) ([]models.ConsentRecord, error) {
	const op errors.Op = "normalize.consents"

	t, err := n.Table(raw)
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	if err := requireColumns(op, t, ConsentColumns...); err != nil {
		return nil, err
	}

	var (
		date      = t.Index(models.ColConsentDate)
		ethnicity = t.Index(models.ColEthnicity)
		race      = t.Index(models.ColRace)
		sex       = t.Index(models.ColSex)
	)
	dirty := errors.NewSkipCounter(string(op) + ".date")
	out := make([]models.ConsentRecord, 0, t.Len())
	for i, row := range t.Rows {
		rec := models.ConsentRecord{
			Ethnicity: row[ethnicity],
			Race:      row[race],
			Sex:       row[sex],
		}
		if !table.IsNull(row[date]) {
			ts, err := n.ParseDate(row[date])
			switch {
			case err == nil:
				rec.ConsentDate = &ts
			case strictDates:
				return nil, errors.E(op, errors.KindInputSchema, err,
					fmt.Sprintf("%s row %d: invalid %s %q", t.Name, i+2, models.ColConsentDate, row[date]))
			default:
				dirty.Skip(err, fmt.Sprintf("row %d: %q", i+2, row[date]))
			}
		}
		out = append(out, rec)
	}
	dirty.Report(n.logger)
	return out, nil
}

func parseAge(raw string, row int, skips *errors.SkipCounter) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	age, err := strconv.ParseFloat(s, 64)
	if err != nil || age != age {
		skips.Skip(fmt.Errorf("age %q is not a number", raw), fmt.Sprintf("row %d", row))
		return nil
	}
	return &age
}
