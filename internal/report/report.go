// Package report runs one of the biobank reports over already-loaded input
// tables and renders the result as a table ready for export.
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/nishad/biobank/internal/aggregate"
	"github.com/nishad/biobank/internal/classify"
	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/models"
	"github.com/nishad/biobank/internal/normalize"
	"github.com/nishad/biobank/internal/reconcile"
	"github.com/nishad/biobank/internal/table"
)

// Kind names a report.
type Kind string

const (
	Inventory    Kind = "inventory"
	Demographics Kind = "demographics"
	Diagnosis    Kind = "diagnosis"
)

// Input names.
const (
	InputSamples   = "samples"
	InputInventory = "inventory"
	InputConsents  = "consents"
)

// Definition describes a report and the inputs it needs.
type Definition struct {
	Kind        Kind     `json:"report"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Inputs      []string `json:"inputs"`
	Options     []string `json:"options,omitempty"`
}

var definitions = []Definition{
	{
		Kind:        Inventory,
		Name:        "Inventory",
		Description: "Sample log with the number of vials remaining in the master inventory",
		Inputs:      []string{InputSamples, InputInventory},
	},
	{
		Kind:        Demographics,
		Name:        "Demographics",
		Description: "Consent counts by ethnicity, race and sex",
		Inputs:      []string{InputConsents},
		Options:     []string{"since"},
	},
	{
		Kind:        Diagnosis,
		Name:        "Specimen Counts by Diagnosis and Sex",
		Description: "Specimens with vials remaining, by normalized diagnosis, sex and mean age",
		Inputs:      []string{InputSamples, InputInventory},
	},
}

// Definitions lists every report in menu order.
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup finds a report by kind.
func Lookup(kind string) (Definition, bool) {
	return lo.Find(definitions, func(d Definition) bool { return string(d.Kind) == kind })
}

// Request is a single report invocation. Tables is keyed by input name; an
// input that was not supplied is absent or nil.
type Request struct {
	Kind   Kind
	Tables map[string]*table.Table
	Since  *time.Time
}

// Result is a rendered report.
type Result struct {
	Kind  Kind
	Name  string
	Table *table.Table

	// Reconcile is set for reports built on the reconciled sample log.
	Reconcile *reconcile.Summary
}

// Runner executes report requests.
type Runner struct {
	normalizer *normalize.Normalizer
	logger     zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(n *normalize.Normalizer, logger zerolog.Logger) *Runner {
	if n == nil {
		n = normalize.New(normalize.WithLogger(logger))
	}
	return &Runner{normalizer: n, logger: logger}
}

// Run executes the requested report. A required input that is missing fails
// with a SourceUnavailable error before any work is done.
func (r *Runner) Run(req Request) (*Result, error) {
	const op errors.Op = "report.run"

	def, ok := Lookup(string(req.Kind))
	if !ok {
		return nil, errors.E(op, errors.KindValidation, fmt.Sprintf("unknown report %q", req.Kind))
	}
	for _, in := range def.Inputs {
		if req.Tables[in] == nil {
			return nil, errors.SourceUnavailable(op, in)
		}
	}

	res := &Result{Kind: def.Kind, Name: def.Name}
	var err error
	switch def.Kind {
	case Inventory:
		err = r.inventory(req, res)
	case Demographics:
		err = r.demographics(req, res)
	case Diagnosis:
		err = r.diagnosis(req, res)
	}
	if err != nil {
		return nil, errors.Wrap(op, err)
	}
	res.Table.Name = def.Name
	return res, nil
}

func (r *Runner) inventory(req Request, res *Result) error {
	merged, err := reconcile.Reconcile(r.normalizer, req.Tables[InputSamples], req.Tables[InputInventory])
	if err != nil {
		return err
	}
	r.logSummary(merged.Summary)
	res.Reconcile = &merged.Summary
	res.Table = RenderInventory(merged)
	return nil
}

func (r *Runner) demographics(req Request, res *Result) error {
	consents, err := r.normalizer.Consents(req.Tables[InputConsents], req.Since != nil)
	if err != nil {
		return err
	}
	demo, err := aggregate.Demographics(consents, req.Since)
	if err != nil {
		return err
	}
	r.logger.Info().
		Int("consents", len(consents)).
		Int("groups", len(demo.Rows)).
		Msg("demographics tabulated")
	res.Table = RenderDemographics(demo)
	return nil
}

func (r *Runner) diagnosis(req Request, res *Result) error {
	merged, err := reconcile.Reconcile(r.normalizer, req.Tables[InputSamples], req.Tables[InputInventory],
		normalize.ClinicalColumns...)
	if err != nil {
		return err
	}
	r.logSummary(merged.Summary)
	res.Reconcile = &merged.Summary

	available := lo.Filter(merged.Rows, func(row models.MergedInventoryRow, _ int) bool {
		return row.VialsRemaining > 0
	})
	diag, err := aggregate.DiagnosisSexAge(classify.ClassifyRows(available))
	if err != nil {
		return err
	}
	r.logger.Info().
		Int("specimens", len(available)).
		Int("diagnoses", len(diag.Rows)).
		Msg("diagnosis summary tabulated")
	res.Table = RenderDiagnosis(diag)
	return nil
}

func (r *Runner) logSummary(s reconcile.Summary) {
	r.logger.Info().
		Int("sample_rows", s.SampleRows).
		Int("inventory_rows", s.InventoryRows).
		Int("available_vials", s.AvailableVials).
		Int("matched_by_tissue", s.MatchedByTissue).
		Int("matched_by_draw", s.MatchedByDraw).
		Int("unmatched", s.Unmatched).
		Msg("inventory reconciled")
}

// RenderInventory lays out the reconciled sample log: the normalized sample
// columns in input order followed by Vials_Remaining.
func RenderInventory(res *reconcile.Result) *table.Table {
	header := append(append([]string{}, res.Header...), models.ColVialsRemaining)
	t := table.New("Inventory", header...)
	for _, row := range res.Rows {
		cells := make([]string, len(header))
		for j, col := range res.Header {
			switch col {
			case models.ColSubject:
				cells[j] = row.Subject
			case models.ColTissue:
				cells[j] = row.Tissue
			case models.ColDateOfSample:
				cells[j] = row.SampleDate.String()
			default:
				cells[j] = row.Fields[col]
			}
		}
		cells[len(header)-1] = table.FormatInt(row.VialsRemaining)
		t.Rows = append(t.Rows, cells)
	}
	t.SetType(models.ColDateOfSample, table.Date)
	t.SetType(models.ColVialsRemaining, table.Number)
	if t.Has(models.ColAge) {
		t.SetType(models.ColAge, table.Number)
	}
	return t
}

// RenderDemographics lays out a demographics pivot: Ethnicity, Race and one
// count column per sex.
func RenderDemographics(d *models.DemographicsTable) *table.Table {
	header := append([]string{models.ColEthnicity, models.ColRace}, d.SexColumns...)
	t := table.New("Demographics", header...)
	for _, row := range d.Rows {
		cells := []string{row.Ethnicity, row.Race}
		for _, sex := range d.SexColumns {
			cells = append(cells, table.FormatInt(row.Counts[sex]))
		}
		t.Rows = append(t.Rows, cells)
	}
	for _, sex := range d.SexColumns {
		t.SetType(sex, table.Number)
	}
	return t
}

// RenderDiagnosis lays out the diagnosis summary: Simple_Diagnosis, one
// count column per sex, Total and Avg Age.
func RenderDiagnosis(d *models.DiagnosisTable) *table.Table {
	header := append([]string{models.ColSimpleDiagnosis}, d.SexColumns...)
	header = append(header, models.ColTotal, models.ColAvgAge)
	t := table.New("Diagnosis", header...)
	for _, row := range d.Rows {
		cells := []string{row.SimpleDiagnosis}
		for _, sex := range d.SexColumns {
			cells = append(cells, table.FormatInt(row.Counts[sex]))
		}
		cells = append(cells, table.FormatInt(row.Total), table.FormatFloat(row.AvgAge))
		t.Rows = append(t.Rows, cells)
	}
	for _, col := range header[1:] {
		t.SetType(col, table.Number)
	}
	return t
}

// Kinds returns the report kinds sorted by name.
func Kinds() []string {
	kinds := lo.Map(definitions, func(d Definition, _ int) string { return string(d.Kind) })
	sort.Strings(kinds)
	return kinds
}
