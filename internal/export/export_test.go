package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/parser"
	"github.com/nishad/biobank/internal/table"
)

func diagnosisTable() *table.Table {
	t := table.New("Diagnosis", "Simple_Diagnosis", "F", "M", "Total", "Avg Age")
	t.Append("AML", "1", "2", "3", "61.5")
	t.Append("MM", "0", "1", "1", "")
	for _, c := range t.Header[1:] {
		t.SetType(c, table.Number)
	}
	return t
}

func TestFilename(t *testing.T) {
	date := time.Date(2024, 3, 1, 15, 4, 5, 0, time.UTC)
	tests := []struct {
		name   string
		format Format
		want   string
	}{
		{"Inventory", FormatXLSX, "2024-03-01 Inventory.xlsx"},
		{"Demographics", FormatCSV, "2024-03-01 Demographics.csv"},
		{"Specimen Counts by Diagnosis and Sex", FormatXLSX, "2024-03-01 Specimen Counts by Diagnosis and Sex.xlsx"},
	}
	for _, tt := range tests {
		if got := Filename(date, tt.name, tt.format); got != tt.want {
			t.Errorf("Filename(%q, %q) = %q, want %q", tt.name, tt.format, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatXLSX, "XLSX": FormatXLSX, " csv ": FormatCSV, "json": FormatJSON} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("xls")
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, diagnosisTable(), FormatXLSX))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	typ, err := f.GetCellType(SheetName, "E2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ, "numbers are written as numbers")
	assert.NotEqual(t, excelize.CellTypeInlineString, typ)

	v, err := f.GetCellValue(SheetName, "E3")
	require.NoError(t, err)
	assert.Equal(t, "", v, "NaN average stays blank")

	styleID, err := f.GetCellStyle(SheetName, "A2")
	require.NoError(t, err)
	style, err := f.GetStyle(styleID)
	require.NoError(t, err)
	assert.Equal(t, numFmtTwoDecimals, style.NumFmt)
}

// Export and parse are inverses on cell text for string and integer cells.
func TestXLSXRoundTrip(t *testing.T) {
	in := table.New("Inventory", "Subject", "Tissue", "Vials_Remaining")
	in.Append("A1", "BM", "2")
	in.Append("A2", "", "0")
	in.SetType("Vials_Remaining", table.Number)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in, FormatXLSX))

	out, err := parser.Parse(bytes.NewReader(buf.Bytes()), "report.xlsx", parser.Options{Sheet: SheetName})
	require.NoError(t, err)
	assert.Equal(t, in.Header, out.Header)
	assert.Equal(t, in.Rows, out.Rows)
}

func TestWriteDateColumn(t *testing.T) {
	in := table.New("Inventory", "Subject", "Date_of_Sample")
	in.Append("A1", "2021-01-01")
	in.SetType("Date_of_Sample", table.Date)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, in, FormatXLSX))

	out, err := parser.Parse(bytes.NewReader(buf.Bytes()), "report.xlsx", parser.Options{})
	require.NoError(t, err)
	assert.Equal(t, "44197", out.Get(0, "Date_of_Sample"))
}

func TestWriteCSVAndTSV(t *testing.T) {
	var csvBuf, tsvBuf bytes.Buffer
	require.NoError(t, Write(&csvBuf, diagnosisTable(), FormatCSV))
	require.NoError(t, Write(&tsvBuf, diagnosisTable(), FormatTSV))

	assert.Equal(t, "Simple_Diagnosis,F,M,Total,Avg Age\nAML,1,2,3,61.5\nMM,0,1,1,\n", csvBuf.String())
	assert.True(t, strings.HasPrefix(tsvBuf.String(), "Simple_Diagnosis\tF\tM\tTotal\tAvg Age\n"))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, diagnosisTable(), FormatJSON))

	assert.True(t, strings.HasPrefix(strings.TrimSpace(buf.String()), `[`))
	assert.Contains(t, buf.String(), `{"Simple_Diagnosis":"AML","F":1,"M":2,"Total":3,"Avg Age":61.5}`)

	var got []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Nil(t, got[1]["Avg Age"])
	assert.Equal(t, float64(1), got[1]["M"])
}

func TestExporterWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	exp, err := NewExporter(&Config{OutputDir: dir, Format: FormatCSV})
	require.NoError(t, err)

	stats, err := exp.Export(diagnosisTable(), "2024-03-01 Diagnosis.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024-03-01 Diagnosis.csv"), stats.Path)
	assert.Equal(t, 2, stats.Rows)
	assert.Positive(t, stats.Bytes)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temporary files are left behind")

	_, err = exp.Export(diagnosisTable(), "2024-03-01 Diagnosis.csv")
	assert.True(t, errors.IsKind(err, errors.KindValidation), "refuses to overwrite")
}

func TestExporterRejectsUnknownFormat(t *testing.T) {
	_, err := NewExporter(&Config{OutputDir: t.TempDir(), Format: "ods"})
	assert.Error(t, err)
}
