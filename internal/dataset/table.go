// Package dataset loads municipal questionnaire CSVs into in-memory
// tables and serves them per entity. It is the data-access collaborator
// of the rule engine: the engine only ever sees already-parsed tables.
package dataset

import (
	"strings"

	"github.com/spf13/cast"
)

// Table is a named tabular dataset. Cells are kept as the raw strings the
// CSV carried; numeric coercion happens lazily at evaluation time because
// most questionnaire columns mix numbers with free text.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string

	colIndex map[string]int
}

// NewTable builds a table over the given header and rows.
func NewTable(name string, columns []string, rows [][]string) *Table {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	return &Table{Name: name, Columns: columns, Rows: rows, colIndex: idx}
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.colIndex[name]
	return ok
}

// cell returns the trimmed cell value, or "" when the row is ragged.
func (t *Table) cell(row int, col int) string {
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// cellFloat coerces one cell to a float. Empty cells report ok=false.
func cellFloat(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ColumnNumeric reports whether the column holds numeric data, judged by
// its first non-empty cell. Columns with no usable cells are not numeric.
func (t *Table) ColumnNumeric(name string) bool {
	col, ok := t.colIndex[name]
	if !ok {
		return false
	}
	for i := range t.Rows {
		s := t.cell(i, col)
		if s == "" {
			continue
		}
		_, ok := cellFloat(s)
		return ok
	}
	return false
}

// SumColumn sums every coercible cell of the column, skipping nulls and
// stray text. ok is false when no cell contributed.
func (t *Table) SumColumn(name string) (total float64, ok bool) {
	col, exists := t.colIndex[name]
	if !exists {
		return 0, false
	}
	for i := range t.Rows {
		if v, found := cellFloat(t.cell(i, col)); found {
			total += v
			ok = true
		}
	}
	return total, ok
}

// FirstValue returns the column's value in the first row.
// ok is false when the cell is null or not coercible.
func (t *Table) FirstValue(name string) (float64, bool) {
	col, exists := t.colIndex[name]
	if !exists || len(t.Rows) == 0 {
		return 0, false
	}
	return cellFloat(t.cell(0, col))
}

// AllNull reports whether every cell of the column is empty.
func (t *Table) AllNull(name string) bool {
	col, ok := t.colIndex[name]
	if !ok {
		return false
	}
	for i := range t.Rows {
		if t.cell(i, col) != "" {
			return false
		}
	}
	return true
}

// AllZero reports whether every cell of the column coerces to exactly zero.
func (t *Table) AllZero(name string) bool {
	col, ok := t.colIndex[name]
	if !ok || len(t.Rows) == 0 {
		return false
	}
	for i := range t.Rows {
		v, found := cellFloat(t.cell(i, col))
		if !found || v != 0 {
			return false
		}
	}
	return true
}

// Value returns the trimmed cell at (row, column). ok is false when the
// column is absent or the row index is out of range.
func (t *Table) Value(row int, column string) (string, bool) {
	col, exists := t.colIndex[column]
	if !exists || row < 0 || row >= len(t.Rows) {
		return "", false
	}
	return t.cell(row, col), true
}

// NumericValue coerces the cell at (row, column) to a float.
func (t *Table) NumericValue(row int, column string) (float64, bool) {
	s, ok := t.Value(row, column)
	if !ok {
		return 0, false
	}
	return cellFloat(s)
}

// DistinctValues returns the distinct non-empty values of the column in
// first-seen order, paired with the rows holding each value.
func (t *Table) DistinctValues(name string) ([]string, map[string][]int) {
	col, ok := t.colIndex[name]
	if !ok {
		return nil, nil
	}
	var order []string
	byValue := make(map[string][]int)
	for i := range t.Rows {
		v := t.cell(i, col)
		if v == "" {
			continue
		}
		if _, seen := byValue[v]; !seen {
			order = append(order, v)
		}
		byValue[v] = append(byValue[v], i)
	}
	return order, byValue
}

// FilterEq returns a new table holding only the rows whose column equals
// the given value.
func (t *Table) FilterEq(name, value string) *Table {
	col, ok := t.colIndex[name]
	if !ok {
		return NewTable(t.Name, t.Columns, nil)
	}
	var rows [][]string
	for i := range t.Rows {
		if t.cell(i, col) == value {
			rows = append(rows, t.Rows[i])
		}
	}
	return NewTable(t.Name, t.Columns, rows)
}

// LeftJoin joins ref onto t by equality on the key column, suffixing
// colliding reference columns with "_ref". Unmatched rows keep empty
// reference cells.
func (t *Table) LeftJoin(ref *Table, key string) *Table {
	refKey, ok := ref.colIndex[key]
	if !ok {
		return t
	}

	cols := make([]string, 0, len(t.Columns)+len(ref.Columns)-1)
	cols = append(cols, t.Columns...)
	var refCols []int
	for i, c := range ref.Columns {
		if c == key {
			continue
		}
		if t.HasColumn(c) {
			c += "_ref"
		}
		cols = append(cols, c)
		refCols = append(refCols, i)
	}

	byKey := make(map[string]int, len(ref.Rows))
	for i := range ref.Rows {
		k := ref.cell(i, refKey)
		if _, seen := byKey[k]; !seen {
			byKey[k] = i
		}
	}

	tKey := t.colIndex[key]
	rows := make([][]string, 0, len(t.Rows))
	for i := range t.Rows {
		row := make([]string, 0, len(cols))
		for c := range t.Columns {
			row = append(row, t.cell(i, c))
		}
		if ri, matched := byKey[t.cell(i, tKey)]; matched {
			for _, c := range refCols {
				row = append(row, ref.cell(ri, c))
			}
		} else {
			for range refCols {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return NewTable(t.Name, cols, rows)
}

// ConcatColumns appends ref's columns positionally. Meant for single-row
// tables that carry no entity identifier; row counts are aligned to the
// longer side with empty cells.
func (t *Table) ConcatColumns(ref *Table) *Table {
	cols := make([]string, 0, len(t.Columns)+len(ref.Columns))
	cols = append(cols, t.Columns...)
	for _, c := range ref.Columns {
		if t.HasColumn(c) {
			c += "_ref"
		}
		cols = append(cols, c)
	}

	n := len(t.Rows)
	if len(ref.Rows) > n {
		n = len(ref.Rows)
	}
	rows := make([][]string, 0, n)
	for i := 0; i < n; i++ {
		row := make([]string, 0, len(cols))
		for c := range t.Columns {
			if i < len(t.Rows) {
				row = append(row, t.cell(i, c))
			} else {
				row = append(row, "")
			}
		}
		for c := range ref.Columns {
			if i < len(ref.Rows) {
				row = append(row, ref.cell(i, c))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return NewTable(t.Name, cols, rows)
}
