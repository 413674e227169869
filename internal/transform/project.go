package transform

import (
	"context"

	"tabflow/internal/table"
)

// Project keeps only the requested columns. Requested columns that the table
// does not have are dropped silently. The output follows the input header
// order, not the requested order.
type Project struct {
	Columns []string
}

// NewProject creates a column projection
func NewProject(columns ...string) *Project {
	return &Project{Columns: columns}
}

// Name returns the operator name
func (p *Project) Name() string { return "project" }

// Transform implements Transformer
func (p *Project) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	cols := intersect(t, p.Columns)
	rows := make([]table.Row, t.Len())
	for i, r := range t.Rows() {
		out := make(table.Row, len(cols))
		for _, c := range cols {
			out.Set(c, r.Get(c))
		}
		rows[i] = out
	}
	return table.New(cols, rows)
}
