// Package normalize cleans raw spreadsheet tables into the canonical shape
// the report pipeline works on: snake-ish column names, whitespace-free
// subject identifiers, string tissues and parsed sample dates.
package normalize

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/models"
	"github.com/nishad/biobank/internal/table"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"

	// Excel serial day numbers past 9999-12-31 are not dates.
	maxExcelSerial = 2958465
)

// DefaultDateLayouts are tried in order after the canonical layouts.
var DefaultDateLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339,
	"1/2/2006",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/06",
	"01-02-06",
	"2-Jan-2006",
	"Jan 2, 2006",
}

// Required columns per input, after normalization.
var (
	SampleColumns    = []string{models.ColSubject, models.ColTissue, models.ColDateOfSample}
	ClinicalColumns  = []string{models.ColDiagnosis, models.ColAge, models.ColSex}
	InventoryColumns = []string{models.ColSubject, models.ColTissue, models.ColDateOfSample, models.ColTakenBy, models.ColDateTaken}
	ConsentColumns   = []string{models.ColConsentDate, models.ColEthnicity, models.ColRace, models.ColSex}
)

// Normalizer cleans and decodes input tables.
type Normalizer struct {
	layouts []string
	logger  zerolog.Logger
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithDateLayouts replaces the extra date layouts tried after the canonical
// ones.
func WithDateLayouts(layouts []string) Option {
	return func(n *Normalizer) {
		if len(layouts) > 0 {
			n.layouts = layouts
		}
	}
}

// WithLogger sets the logger used to report lenient coercions.
func WithLogger(logger zerolog.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// New creates a Normalizer.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		layouts: DefaultDateLayouts,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ColumnName converts a raw header cell to its canonical form: spaces become
// underscores and periods are removed.
func ColumnName(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ReplaceAll(name, ".", "")
}

// Subject removes every whitespace character from a subject identifier so
// that IDs typed independently in two logs compare equal.
func Subject(raw string) string {
	return strings.Join(strings.Fields(raw), "")
}

// Table returns a normalized copy of t. It renames columns, cleans Subject
// and canonicalizes Date_of_Sample and Consent_Date. A blank Date_of_Sample
// stays blank and an unparseable Consent_Date is left as typed; the typed
// decoders decide whether those are errors. Normalizing an already
// normalized table returns an equal table.
func (n *Normalizer) Table(t *table.Table) (*table.Table, error) {
	const op errors.Op = "normalize.table"

	out := t.Clone()
	out.Header = lo.Map(t.Header, func(h string, _ int) string { return ColumnName(h) })

	if dup := duplicates(out.Header); len(dup) > 0 {
		return nil, errors.InputSchema(op, "%s: duplicate columns after normalization: %s",
			t.Name, strings.Join(dup, ", "))
	}

	subj := out.Index(models.ColSubject)
	sample := out.Index(models.ColDateOfSample)
	consent := out.Index(models.ColConsentDate)

	for i, row := range out.Rows {
		if short := len(out.Header) - len(row); short > 0 {
			row = append(row, make([]string, short)...)
			out.Rows[i] = row
		}
		if subj >= 0 {
			row[subj] = Subject(row[subj])
		}
		switch {
		case sample < 0:
		case blankDate(row[sample]):
			row[sample] = ""
		default:
			ts, err := n.ParseDate(row[sample])
			if err != nil {
				return nil, errors.E(op, errors.KindInputSchema, err,
					fmt.Sprintf("%s row %d: invalid %s %q", t.Name, i+2, models.ColDateOfSample, row[sample]))
			}
			row[sample] = FormatDate(ts)
		}
		switch {
		case consent < 0:
		case blankDate(row[consent]):
			row[consent] = ""
		default:
			if ts, err := n.ParseDate(row[consent]); err == nil {
				row[consent] = FormatDate(ts)
			}
		}
	}
	return out, nil
}

// blankDate reports whether a date cell holds no value at all.
func blankDate(cell string) bool {
	return table.IsNull(strings.TrimSpace(cell))
}

// ParseDate parses a sample or consent date. It accepts the canonical
// layouts, the configured layouts and Excel serial day numbers.
func (n *Normalizer) ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("date is missing")
	}
	for _, layout := range append([]string{dateLayout, dateTimeLayout}, n.layouts...) {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if serial < 1 || serial > maxExcelSerial {
			return time.Time{}, fmt.Errorf("serial date %v out of range", serial)
		}
		ts, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		return ts.UTC().Truncate(time.Second), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date format")
}

// FormatDate renders a parsed date canonically, keeping the time of day only
// when there is one.
func FormatDate(ts time.Time) string {
	if ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 {
		return ts.Format(dateLayout)
	}
	return ts.Format(dateTimeLayout)
}

func requireColumns(op errors.Op, t *table.Table, cols ...string) error {
	if missing := t.Missing(cols...); len(missing) > 0 {
		return errors.InputSchema(op, "%s: missing required columns: %s", t.Name, strings.Join(missing, ", "))
	}
	return nil
}

func duplicates(cols []string) []string {
	return lo.FindDuplicates(cols)
}
