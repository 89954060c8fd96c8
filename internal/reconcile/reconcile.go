// Package reconcile merges remaining-vial counts from the master inventory
// onto the sample log.
//
// Counting keeps every inventory row whose disposition is incomplete (Taken_By
// or Date_Taken unset) and groups by (Subject, Tissue, Date_of_Sample). Each
// sample row is then matched twice: once on the draw alone (Subject and
// Date_of_Sample, all tissues summed) and once including Tissue. The
// tissue-qualified count wins, then the draw count, then zero.
package reconcile

import (
	"sort"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/models"
	"github.com/nishad/biobank/internal/normalize"
	"github.com/nishad/biobank/internal/table"
)

// nullTissue is how a stringified null tissue looks when another tool has
// already been through the spreadsheet.
const nullTissue = "nan"

// Summary describes how sample rows were matched.
type Summary struct {
	SampleRows      int
	InventoryRows   int
	AvailableVials  int
	Groups          int
	MatchedByTissue int
	MatchedByDraw   int
	Unmatched       int
}

// Result is the reconciled sample log.
type Result struct {
	Header  []string
	Rows    []models.MergedInventoryRow
	Counts  []models.VialCount
	Summary Summary
}

// CountVials counts remaining vials per (Subject, Tissue, Date_of_Sample).
// The result is sorted by key.
func CountVials(inventory []models.InventoryRecord) []models.VialCount {
	counts := make(map[models.VialKey]int)
	for _, rec := range inventory {
		if !rec.Remaining() {
			continue
		}
		counts[models.VialKey{
			Subject:      rec.Subject,
			Tissue:       rec.Tissue,
			DateOfSample: civil.DateTimeOf(rec.DateOfSample),
		}]++
	}

	out := make([]models.VialCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, models.VialCount{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		if a.Tissue != b.Tissue {
			return a.Tissue < b.Tissue
		}
		return a.DateOfSample.Before(b.DateOfSample)
	})
	return out
}

// Merge attaches a Vials_Remaining count to every sample row. The output has
// exactly one row per input sample row, in input order.
func Merge(samples *models.SampleLog, counts []models.VialCount) *Result {
	byTissue := make(map[models.VialKey]int, len(counts))
	byDraw := make(map[models.DrawKey]int, len(counts))
	for _, c := range counts {
		byTissue[c.Key] += c.Count
		byDraw[c.Key.Draw()] += c.Count
	}

	res := &Result{
		Header: samples.Header,
		Rows:   make([]models.MergedInventoryRow, 0, len(samples.Records)),
		Counts: counts,
	}
	res.Summary.SampleRows = len(samples.Records)
	res.Summary.Groups = len(counts)
	for _, c := range counts {
		res.Summary.AvailableVials += c.Count
	}

	for _, rec := range samples.Records {
		key := models.VialKey{
			Subject:      rec.Subject,
			Tissue:       rec.Tissue,
			DateOfSample: civil.DateTimeOf(rec.DateOfSample),
		}

		var vials int
		if n, ok := byTissue[key]; ok {
			vials = n
			res.Summary.MatchedByTissue++
		} else if n, ok := byDraw[key.Draw()]; ok {
			vials = n
			res.Summary.MatchedByDraw++
		} else {
			res.Summary.Unmatched++
		}

		row := models.MergedInventoryRow{
			SampleRecord:   rec,
			SampleDate:     civil.DateOf(rec.DateOfSample),
			VialsRemaining: vials,
		}
		if row.Tissue == nullTissue {
			row.Tissue = ""
		}
		res.Rows = append(res.Rows, row)
	}
	return res
}

// Reconcile normalizes both logs and merges the inventory counts onto the
// sample log. extra names sample columns required by the calling report.
func Reconcile(n *normalize.Normalizer, samples, inventory *table.Table, extra ...string) (*Result, error) {
	const op errors.Op = "reconcile"

	for _, t := range []*table.Table{samples, inventory} {
		if err := requireKeys(op, t); err != nil {
			return nil, err
		}
	}

	sl, err := n.Samples(samples, extra...)
	if err != nil {
		return nil, errors.WrapMsg(op, "sample log", err)
	}
	inv, err := n.Inventory(inventory)
	if err != nil {
		return nil, errors.WrapMsg(op, "inventory", err)
	}

	res := Merge(sl, CountVials(inv))
	res.Summary.InventoryRows = len(inv)
	return res, nil
}

// requireKeys checks for the merge keys before any normalization work.
func requireKeys(op errors.Op, t *table.Table) error {
	var missing []string
	for _, key := range []string{models.ColSubject, models.ColDateOfSample} {
		found := false
		for _, h := range t.Header {
			if normalize.ColumnName(h) == key {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return errors.InputSchema(op, "%s: missing merge key columns: %s", t.Name, strings.Join(missing, ", "))
	}
	return nil
}
