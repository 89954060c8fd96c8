package testutil

import (
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/nishad/biobank/internal/table"
)

// Fixture data for tests. Cells are written the way lab staff type them:
// spaced column names, padded subject IDs and US dates.

// SamplesTable returns a raw sample log with four draws.
func SamplesTable() *table.Table {
	t := table.New("samples", "Subject", "Tissue", "Date of Sample", "Diagnosis", "Age", "Sex", "Vials Remaining")
	t.Append(" BB 001", "BM", "1/4/2021", "AML", "61", "M", "9")
	t.Append("BB002", "BM", "1/5/2021", "normal", "45", "F", "")
	t.Append("BB003", "PB", "1/6/2021", "Polycythemia vera", "", "F", "")
	t.Append("BB004", "PB", "1/7/2021", "myelofibrosis", "70", "M", "")
	return t
}

// InventoryTable returns a raw master inventory matching SamplesTable.
// BB001 has two unused vials, BB002 one, BB003 none and BB004 one that was
// signed out without a date.
func InventoryTable() *table.Table {
	t := table.New("Main Biobank Inventory", "Subject", "Tissue", "Date of Sample", "Taken By", "Date Taken")
	t.Append("BB001", "BM", "2021-01-04", "", "")
	t.Append("BB001", "BM", "2021-01-04", "", "")
	t.Append("BB001", "BM", "2021-01-04", "KL", "2021-03-01")
	t.Append("BB002", "BM", "2021-01-05", "", "")
	t.Append("BB003", "PB", "2021-01-06", "KL", "2021-03-01")
	t.Append("BB004", "PB", "2021-01-07", "KL", "")
	return t
}

// ConsentsTable returns a raw consent log.
func ConsentsTable() *table.Table {
	t := table.New("consents", "Consent Date", "Ethnicity", "Race", "Sex")
	t.Append("2020-11-30", "Non-hispanic", "Asian", "F")
	t.Append("2021-01-04", "Hispanic", "White", "M")
	t.Append("2021-01-05", "Hispanic", "White", "F")
	t.Append("2021-01-06", "Hispanic", "White", "F")
	return t
}

// Sheet is one worksheet of a fixture workbook.
type Sheet struct {
	Name string
	Rows [][]interface{}
}

// SheetOf converts a table into a worksheet with all cells as strings.
func SheetOf(name string, t *table.Table) Sheet {
	s := Sheet{Name: name}
	s.Rows = append(s.Rows, toRow(t.Header))
	for _, r := range t.Rows {
		s.Rows = append(s.Rows, toRow(r))
	}
	return s
}

func toRow(cells []string) []interface{} {
	row := make([]interface{}, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}

// Workbook writes the given sheets into an in-memory xlsx file. The first
// sheet replaces the default "Sheet1".
func Workbook(t *testing.T, sheets ...Sheet) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.Name); err != nil {
				t.Fatalf("failed to rename sheet: %v", err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			t.Fatalf("failed to add sheet %q: %v", s.Name, err)
		}
		for r, row := range s.Rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("bad coordinates: %v", err)
			}
			row := row
			if err := f.SetSheetRow(s.Name, cell, &row); err != nil {
				t.Fatalf("failed to write row %d of %q: %v", r+1, s.Name, err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("failed to write workbook: %v", err)
	}
	return buf.Bytes()
}
