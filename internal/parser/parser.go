// Package parser decodes spreadsheet uploads into raw tables.
//
// Workbooks (.xlsx, .xlsm) are read with excelize and legacy BIFF workbooks
// (.xls) with extrame/xls. Both yield raw cell values, so dates arrive as
// Excel serial numbers and are parsed by the normalizer.
// Delimited text (.csv, .tsv) is read with encoding/csv. The first row is the
// header; blank header cells are named "Unnamed: N" after their zero-based
// column index.
package parser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/table"
)

// Format is an input file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// Options controls how an input is read.
type Options struct {
	// Sheet is the worksheet to read. When the workbook has no sheet of that
	// name and exactly one sheet, that sheet is used instead. Empty selects
	// the first sheet.
	Sheet string

	// Name labels the resulting table in errors and logs. Defaults to the
	// file name.
	Name string
}

// DetectFormat works out the format from the file extension, falling back to
// the leading bytes when the extension is missing or unknown.
func DetectFormat(filename string, head []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".csv":
		return FormatCSV
	case ".tsv", ".tab":
		return FormatTSV
	case ".xls":
		return FormatXLS
	}

	switch {
	case bytes.HasPrefix(head, zipMagic):
		return FormatXLSX
	case bytes.HasPrefix(head, oleMagic):
		return FormatXLS
	case bytes.IndexByte(head, '\t') >= 0 && bytes.IndexByte(head, ',') < 0:
		return FormatTSV
	default:
		return FormatCSV
	}
}

// Parse reads a table from r. filename is used for format detection and as
// the default table name.
func Parse(r io.Reader, filename string, opts Options) (*table.Table, error) {
	const op errors.Op = "parser.parse"

	br := bufio.NewReader(r)
	head, err := br.Peek(len(oleMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, errors.E(op, errors.KindIO, err, filename)
	}
	format := DetectFormat(filename, head)

	name := opts.Name
	if name == "" {
		name = filepath.Base(filename)
	}

	switch format {
	case FormatXLSX:
		return readWorkbook(br, name, opts.Sheet)
	case FormatXLS:
		return readLegacyWorkbook(br, name, opts.Sheet)
	case FormatTSV:
		return readDelimited(br, name, '\t')
	default:
		return readDelimited(br, name, ',')
	}
}

// ParseFile opens and reads a local file.
func ParseFile(path string, opts Options) (*table.Table, error) {
	const op errors.Op = "parser.parse_file"

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E(op, errors.KindIO, err)
	}
	defer f.Close()
	return Parse(f, path, opts)
}

func readWorkbook(r io.Reader, name, sheet string) (*table.Table, error) {
	const op errors.Op = "parser.workbook"

	wb, err := excelize.OpenReader(r, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.E(op, errors.KindParse, err, fmt.Sprintf("%s: not a readable workbook", name))
	}
	defer wb.Close()

	target, err := pickSheet(wb.GetSheetList(), sheet)
	if err != nil {
		return nil, errors.E(op, errors.KindInputSchema, err, name)
	}

	rows, err := wb.GetRows(target, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.E(op, errors.KindParse, err, fmt.Sprintf("%s: reading sheet %q", name, target))
	}
	return build(name, rows), nil
}

// maxLegacyColumns is the BIFF8 column limit.
const maxLegacyColumns = 256

func readLegacyWorkbook(r io.Reader, name, sheet string) (t *table.Table, err error) {
	const op errors.Op = "parser.xls"

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.E(op, errors.KindIO, err, name)
	}

	// The BIFF decoder panics on some malformed records.
	defer func() {
		if p := recover(); p != nil {
			t, err = nil, errors.E(op, errors.KindParse, fmt.Sprintf("%s: not a readable .xls workbook: %v", name, p))
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, errors.E(op, errors.KindParse, err, fmt.Sprintf("%s: not a readable .xls workbook", name))
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, errors.E(op, errors.KindParse, fmt.Sprintf("%s: no workbook stream or sheets found", name))
	}

	// Drop cell styles so numbers, dates included, render as raw values.
	for i := range wb.Xfs {
		wb.Xfs[i] = &xls.Xf8{}
	}

	sheets := make([]*xls.WorkSheet, wb.NumSheets())
	names := make([]string, len(sheets))
	for i := range sheets {
		sheets[i] = wb.GetSheet(i)
		names[i] = sheets[i].Name
	}
	target, err := pickSheet(names, sheet)
	if err != nil {
		return nil, errors.E(op, errors.KindInputSchema, err, name)
	}
	ws := sheets[lo.IndexOf(names, target)]

	rows := make([][]string, 0, int(ws.MaxRow)+1)
	for i := 0; i <= int(ws.MaxRow); i++ {
		rows = append(rows, legacyRow(ws, i))
	}
	return build(name, rows), nil
}

// legacyRow returns the cells of row i, or nil when the sheet has no such row.
func legacyRow(ws *xls.WorkSheet, i int) (cells []string) {
	defer func() {
		if recover() != nil {
			cells = nil
		}
	}()

	row := ws.Row(i)
	if row == nil {
		return nil
	}
	// LastCol is one past the last cell; rows without a ROW record report 0.
	last := row.LastCol()
	if last <= row.FirstCol() {
		last = maxLegacyColumns
	}
	cells = make([]string, last)
	for j := row.FirstCol(); j < last; j++ {
		cells[j] = row.Col(j)
	}
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

// pickSheet resolves the requested sheet against the sheets present.
func pickSheet(sheets []string, want string) (string, error) {
	if len(sheets) == 0 {
		return "", fmt.Errorf("workbook has no sheets")
	}
	if want == "" || lo.Contains(sheets, want) {
		if want == "" {
			return sheets[0], nil
		}
		return want, nil
	}
	if len(sheets) == 1 {
		return sheets[0], nil
	}
	return "", fmt.Errorf("sheet %q not found (have %s)", want, strings.Join(sheets, ", "))
}

func readDelimited(r io.Reader, name string, comma rune) (*table.Table, error) {
	const op errors.Op = "parser.delimited"

	br := bufio.NewReader(r)
	if head, _ := br.Peek(len(utf8BOM)); bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.E(op, errors.KindParse, err, name)
	}
	return build(name, rows), nil
}

// build turns raw rows into a table. Fully blank rows are dropped and the
// header is widened to the widest row.
func build(name string, rows [][]string) *table.Table {
	if len(rows) == 0 {
		return table.New(name)
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}

	header := make([]string, width)
	for j := range header {
		if j < len(rows[0]) {
			header[j] = strings.TrimSpace(rows[0][j])
		}
		if header[j] == "" {
			header[j] = fmt.Sprintf("Unnamed: %d", j)
		}
	}

	t := table.New(name, header...)
	for _, row := range rows[1:] {
		if lo.EveryBy(row, func(cell string) bool { return strings.TrimSpace(cell) == "" }) {
			continue
		}
		t.Append(row...)
	}
	return t
}
