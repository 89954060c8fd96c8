package parser

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nishad/biobank/internal/errors"
	"github.com/nishad/biobank/internal/testutil"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		head     []byte
		want     Format
	}{
		{"xlsx extension", "Inventory.XLSX", nil, FormatXLSX},
		{"xlsm extension", "log.xlsm", nil, FormatXLSX},
		{"csv extension", "log.csv", nil, FormatCSV},
		{"tsv extension", "log.tsv", nil, FormatTSV},
		{"xls extension", "log.xls", nil, FormatXLS},
		{"zip magic", "upload", []byte("PK\x03\x04rest"), FormatXLSX},
		{"ole magic", "upload", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, FormatXLS},
		{"tab separated", "upload", []byte("a\tb\tc"), FormatTSV},
		{"default csv", "upload", []byte("a,b,c"), FormatCSV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.filename, tt.head))
		})
	}
}

func TestParseCSV(t *testing.T) {
	in := "\xEF\xBB\xBFSubject,Tissue,,Date of Sample\nA1,BM,x,1/1/2021\n,,,\nA2,PB\n"
	got, err := Parse(strings.NewReader(in), "samples.csv", Options{})
	require.NoError(t, err)

	assert.Equal(t, "samples.csv", got.Name)
	assert.Equal(t, []string{"Subject", "Tissue", "Unnamed: 2", "Date of Sample"}, got.Header)
	require.Equal(t, 2, got.Len(), "blank rows are dropped")
	assert.Equal(t, []string{"A2", "PB", "", ""}, got.Rows[1])
}

func TestParseTSVWiderRows(t *testing.T) {
	in := "Subject\tTissue\nA1\tBM\textra\n"
	got, err := Parse(strings.NewReader(in), "log.tsv", Options{Name: "inventory"})
	require.NoError(t, err)

	assert.Equal(t, "inventory", got.Name)
	assert.Equal(t, []string{"Subject", "Tissue", "Unnamed: 2"}, got.Header)
	assert.Equal(t, []string{"A1", "BM", "extra"}, got.Rows[0])
}

func TestParseWorkbook(t *testing.T) {
	drawn := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	data := testutil.Workbook(t,
		testutil.Sheet{Name: "Summary", Rows: [][]interface{}{{"ignored"}}},
		testutil.Sheet{Name: "Main Biobank Inventory", Rows: [][]interface{}{
			{"Subject", "Tissue", "Date of Sample", "Taken By", "Date Taken"},
			{"A1", "BM", drawn, nil, nil},
			{"A2", nil, drawn, "JD", "2021-02-02"},
		}},
	)

	got, err := Parse(bytes.NewReader(data), "inventory.xlsx", Options{Sheet: "Main Biobank Inventory"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Subject", "Tissue", "Date of Sample", "Taken By", "Date Taken"}, got.Header)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, "44197", got.Get(0, "Date of Sample"), "dates are read as raw serials")
	assert.Equal(t, "", got.Get(1, "Tissue"))
	assert.Equal(t, "JD", got.Get(1, "Taken By"))
}

func TestParseWorkbookSheetFallback(t *testing.T) {
	single := testutil.Workbook(t, testutil.Sheet{Name: "Export", Rows: [][]interface{}{{"Subject"}, {"A1"}}})
	got, err := Parse(bytes.NewReader(single), "samples.xlsx", Options{Sheet: "Sheet1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, got.Column("Subject"))

	multi := testutil.Workbook(t,
		testutil.Sheet{Name: "One", Rows: [][]interface{}{{"Subject"}}},
		testutil.Sheet{Name: "Two", Rows: [][]interface{}{{"Subject"}}},
	)
	_, err = Parse(bytes.NewReader(multi), "samples.xlsx", Options{Sheet: "Sheet1"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInputSchema))
	assert.Contains(t, err.Error(), "One, Two")
}

func TestParseCorruptWorkbook(t *testing.T) {
	_, err := Parse(strings.NewReader("PK\x03\x04 not really a zip"), "bad.xlsx", Options{})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindParse))
}

func TestParseLegacyWorkbook(t *testing.T) {
	data, err := os.ReadFile("testdata/samples.xls")
	require.NoError(t, err)

	for _, filename := range []string{"samples.xls", "upload"} {
		t.Run(filename, func(t *testing.T) {
			got, err := Parse(bytes.NewReader(data), filename, Options{Sheet: "Sample Log", Name: "samples"})
			require.NoError(t, err)

			assert.Equal(t, "samples", got.Name)
			assert.Equal(t, []string{"Subject", "Tissue", "Date of Sample", "Diagnosis", "Age", "Sex"}, got.Header)
			require.Equal(t, 2, got.Len())
			assert.Equal(t, []string{" A 1 ", "BM", "44197", "AML", "63.5", "M"}, got.Rows[0])
			assert.Equal(t, []string{"A2", "BM", "44198", "normal", "", "F"}, got.Rows[1])
		})
	}
}

func TestParseLegacyWorkbookSheets(t *testing.T) {
	data, err := os.ReadFile("testdata/samples.xls")
	require.NoError(t, err)

	first, err := Parse(bytes.NewReader(data), "samples.xls", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"generated by lab export"}, first.Header)

	_, err = Parse(bytes.NewReader(data), "samples.xls", Options{Sheet: "Sheet1"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindInputSchema))
	assert.Contains(t, err.Error(), "Summary, Sample Log")
}

func TestParseCorruptLegacyWorkbook(t *testing.T) {
	for _, in := range []string{"legacy", "\xD0\xCF\x11\xE0\xA1\xB1\x1A\xE1 truncated"} {
		_, err := Parse(strings.NewReader(in), "bad.xls", Options{})
		require.Error(t, err)
		assert.True(t, errors.IsKind(err, errors.KindParse), "%q: %v", in, err)
	}
}

func TestParseEmpty(t *testing.T) {
	got, err := Parse(strings.NewReader(""), "empty.csv", Options{})
	require.NoError(t, err)
	assert.Empty(t, got.Header)
	assert.Equal(t, 0, got.Len())
}

func TestPickSheet(t *testing.T) {
	got, err := pickSheet([]string{"A", "B"}, "")
	require.NoError(t, err)
	assert.Equal(t, "A", got)

	got, err = pickSheet([]string{"A", "B"}, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", got)

	_, err = pickSheet(nil, "A")
	assert.Error(t, err)
}
