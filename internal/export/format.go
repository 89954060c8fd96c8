// Package export writes report tables as spreadsheets.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/table"
)

// Format is an output format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
)

// SheetName is the worksheet every xlsx report is written to.
const SheetName = "Sheet1"

const (
	numFmtTwoDecimals = 2  // built-in "0.00"
	numFmtDate        = 14 // built-in short date
)

// Formats lists the supported output formats.
func Formats() []Format {
	return []Format{FormatXLSX, FormatCSV, FormatTSV, FormatJSON}
}

// ParseFormat validates a format name. Empty means xlsx.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatXLSX, nil
	case FormatXLSX, FormatCSV, FormatTSV, FormatJSON:
		return f, nil
	default:
		return "", errors.E(errors.Op("export.format"), errors.KindValidation,
			fmt.Sprintf("unsupported format %q (use xlsx, csv, tsv or json)", s))
	}
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatTSV:
		return "text/tab-separated-values; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// Filename returns the output file name for a report produced on date, e.g.
// "2024-03-01 Inventory.xlsx".
func Filename(date time.Time, reportName string, f Format) string {
	return fmt.Sprintf("%s %s.%s", date.Format("2006-01-02"), reportName, f)
}

// Write encodes t to w in the given format.
func Write(w io.Writer, t *table.Table, f Format) error {
	const op errors.Op = "export.write"

	var err error
	switch f {
	case FormatXLSX:
		err = writeXLSX(w, t)
	case FormatCSV:
		err = writeDelimited(w, t, ',')
	case FormatTSV:
		err = writeDelimited(w, t, '\t')
	case FormatJSON:
		err = writeJSON(w, t)
	default:
		return errors.E(op, errors.KindValidation, fmt.Sprintf("unsupported format %q", f))
	}
	if err != nil {
		return errors.E(op, errors.KindIO, err, t.Name)
	}
	return nil
}

func writeXLSX(w io.Writer, t *table.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(t.Header))
	for j, h := range t.Header {
		header[j] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	for i, row := range t.Rows {
		cells := make([]interface{}, len(t.Header))
		for j, col := range t.Header {
			if j < len(row) {
				cells[j] = cellValue(row[j], t.TypeOf(col))
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &cells); err != nil {
			return err
		}
	}

	if err := styleDateColumns(f, t); err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{NumFmt: numFmtTwoDecimals})
	if err != nil {
		return err
	}
	if err := f.SetColStyle(SheetName, "A", style); err != nil {
		return err
	}
	return f.Write(w)
}

func styleDateColumns(f *excelize.File, t *table.Table) error {
	if t.Len() == 0 {
		return nil
	}
	var style int
	for j, col := range t.Header {
		if j == 0 || t.TypeOf(col) != table.Date {
			continue
		}
		if style == 0 {
			var err error
			if style, err = f.NewStyle(&excelize.Style{NumFmt: numFmtDate}); err != nil {
				return err
			}
		}
		top, err := excelize.CoordinatesToCellName(j+1, 2)
		if err != nil {
			return err
		}
		bottom, err := excelize.CoordinatesToCellName(j+1, t.Len()+1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, top, bottom, style); err != nil {
			return err
		}
	}
	return nil
}

// cellValue converts a cell to the value written to a workbook. Empty cells
// stay blank; typed cells that do not parse are written as text.
func cellValue(cell string, typ table.Type) interface{} {
	if table.IsNull(cell) {
		return nil
	}
	switch typ {
	case table.Number:
		if n, err := strconv.ParseFloat(cell, 64); err == nil {
			return n
		}
	case table.Date:
		if ts, err := time.Parse("2006-01-02", cell); err == nil {
			return ts
		}
	}
	return cell
}

func writeDelimited(w io.Writer, t *table.Table, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeJSON writes an array of objects keyed by column name. Number cells
// are emitted as JSON numbers and empty cells as null.
func writeJSON(w io.Writer, t *table.Table) error {
	records := make([]orderedRecord, 0, t.Len())
	for _, row := range t.Rows {
		rec := orderedRecord{keys: t.Header, values: make([]interface{}, len(t.Header))}
		for j, col := range t.Header {
			if j >= len(row) || table.IsNull(row[j]) {
				continue
			}
			if t.TypeOf(col) == table.Number {
				if _, err := strconv.ParseFloat(row[j], 64); err == nil {
					rec.values[j] = json.Number(row[j])
					continue
				}
			}
			rec.values[j] = row[j]
		}
		records = append(records, rec)
	}
	return json.NewEncoder(w).Encode(records)
}

// orderedRecord marshals as a JSON object with keys in header order.
type orderedRecord struct {
	keys   []string
	values []interface{}
}

func (r orderedRecord) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
