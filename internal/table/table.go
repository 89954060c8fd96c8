// Package table holds the raw tabular value exchanged between the spreadsheet
// shell and the report pipeline. Cells are strings; an empty cell is a null.
package table

import (
	"fmt"
	"strconv"
)

// Type describes how a column should be rendered when a table is emitted.
type Type uint8

const (
	String Type = iota
	Number
	Date
)

// Table is a rectangular block of cells under a header row.
type Table struct {
	Name   string
	Header []string
	Rows   [][]string
	types  map[string]Type
}

// New creates an empty table with the given header.
func New(name string, header ...string) *Table {
	h := make([]string, len(header))
	copy(h, header)
	return &Table{Name: name, Header: h}
}

// IsNull reports whether a cell holds no value.
func IsNull(cell string) bool {
	return cell == ""
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Index returns the position of col in the header, or -1.
func (t *Table) Index(col string) int {
	for i, h := range t.Header {
		if h == col {
			return i
		}
	}
	return -1
}

// Has reports whether col is in the header.
func (t *Table) Has(col string) bool {
	return t.Index(col) >= 0
}

// Missing returns the columns in cols that are absent from the header.
func (t *Table) Missing(cols ...string) []string {
	var missing []string
	for _, c := range cols {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Append adds a row, padding or truncating it to the header width.
func (t *Table) Append(cells ...string) {
	row := make([]string, len(t.Header))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

// Get returns the cell at row i in column col, or "" when the column does
// not exist.
func (t *Table) Get(i int, col string) string {
	j := t.Index(col)
	if j < 0 || j >= len(t.Rows[i]) {
		return ""
	}
	return t.Rows[i][j]
}

// Column returns a copy of every cell in col.
func (t *Table) Column(col string) []string {
	j := t.Index(col)
	if j < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		if j < len(row) {
			out[i] = row[j]
		}
	}
	return out
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := New(t.Name, t.Header...)
	c.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		r := make([]string, len(row))
		copy(r, row)
		c.Rows[i] = r
	}
	for col, typ := range t.types {
		c.SetType(col, typ)
	}
	return c
}

// Drop returns a copy of the table without the named columns. Unknown
// columns are ignored.
func (t *Table) Drop(cols ...string) *Table {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	var keep []int
	var header []string
	for i, h := range t.Header {
		if !drop[h] {
			keep = append(keep, i)
			header = append(header, h)
		}
	}
	out := New(t.Name, header...)
	for _, row := range t.Rows {
		r := make([]string, len(keep))
		for k, j := range keep {
			if j < len(row) {
				r[k] = row[j]
			}
		}
		out.Rows = append(out.Rows, r)
	}
	for col, typ := range t.types {
		if !drop[col] {
			out.SetType(col, typ)
		}
	}
	return out
}

// SetType records the render type of a column.
func (t *Table) SetType(col string, typ Type) {
	if t.types == nil {
		t.types = make(map[string]Type)
	}
	t.types[col] = typ
}

// TypeOf returns the render type of a column; untyped columns are String.
func (t *Table) TypeOf(col string) Type {
	return t.types[col]
}

// FormatInt renders an integer cell.
func FormatInt(n int) string {
	return strconv.Itoa(n)
}

// FormatFloat renders a float cell; NaN renders as a null.
func FormatFloat(f float64) string {
	if f != f {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// String summarises the table for logs.
func (t *Table) String() string {
	return fmt.Sprintf("%s[%d cols x %d rows]", t.Name, len(t.Header), len(t.Rows))
}
