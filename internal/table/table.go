package table

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Table is an ordered list of unique column names plus an ordered sequence
// of rows. Rows are not required to carry every column.
type Table struct {
	columns []string
	rows    []Row
}

// New creates a table. Duplicate column names are a schema error.
func New(columns []string, rows []Row) (*Table, error) {
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if _, dup := seen[c]; dup {
			return nil, NewSchemaError("table", c, "duplicate column")
		}
		seen[c] = struct{}{}
	}
	cols := make([]string, len(columns))
	copy(cols, columns)
	if rows == nil {
		rows = []Row{}
	}
	return &Table{columns: cols, rows: rows}, nil
}

// MustNew is like New but panics on duplicate columns. Intended for tests
// and literals.
func MustNew(columns []string, rows []Row) *Table {
	t, err := New(columns, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Columns returns a copy of the column names
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Rows returns the rows. The slice and its rows belong to the table and
// must not be modified; use Clone for a writable copy.
func (t *Table) Rows() []Row {
	return t.rows
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Row returns the i-th row
func (t *Table) Row(i int) Row {
	return t.rows[i]
}

// HasColumn reports whether the column is in the header or carried by any row
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.columns {
		if c == name {
			return true
		}
	}
	for _, r := range t.rows {
		if r.Has(name) {
			return true
		}
	}
	return false
}

// RequireColumn returns a schema error when the column is absent from the
// header and from every row
func (t *Table) RequireColumn(operator, name string) error {
	if !t.HasColumn(name) {
		return NewSchemaError(operator, name, "column not found")
	}
	return nil
}

// CloneRows returns fresh copies of every row
func (t *Table) CloneRows() []Row {
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	return &Table{columns: t.Columns(), rows: t.CloneRows()}
}

// String summarizes the table dimensions and columns
func (t *Table) String() string {
	nrow, ncol := 0, 0
	if len(t.rows) > 0 {
		nrow = len(t.rows)
		ncol = len(t.columns)
	}
	return fmt.Sprintf("  Dimensions : %d rows x %d columns\n  Columns    : [%s]",
		nrow, ncol, strings.Join(t.columns, ", "))
}

// ColumnsOf returns the header columns carried by row, in header order,
// followed by the row's other keys in lexical order
func ColumnsOf(row Row, header []string) []string {
	out := make([]string, 0, len(row))
	known := make(map[string]struct{}, len(header))
	for _, c := range header {
		known[c] = struct{}{}
		if row.Has(c) {
			out = append(out, c)
		}
	}
	var extra []string
	for k := range row {
		if _, ok := known[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}

// UnionColumns appends to base every column of add not already present
func UnionColumns(base []string, add ...string) []string {
	out := make([]string, 0, len(base)+len(add))
	seen := make(map[string]struct{}, len(base)+len(add))
	for _, c := range append(append([]string{}, base...), add...) {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Key builds a composite key from the textual form of each value. Every
// component is length-prefixed so distinct tuples never share a key.
// The second result is false when any component is missing.
func Key(values ...Value) (string, bool) {
	var b strings.Builder
	for _, v := range values {
		if v.IsMissing() {
			return "", false
		}
		s := v.String()
		b.WriteString(strconv.Itoa(len(s)))
		b.WriteByte(':')
		b.WriteString(s)
	}
	return b.String(), true
}
