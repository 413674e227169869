package transform

import (
	"context"

	"tabflow/internal/estimator"
	"tabflow/internal/table"
)

// Center subtracts from each requested column its mean. Requested columns
// the table does not have are ignored; absent values stay absent.
type Center struct {
	Columns []string
}

// NewCenter creates a centering transformation
func NewCenter(columns ...string) *Center {
	return &Center{Columns: columns}
}

// Name returns the operator name
func (c *Center) Name() string { return "center" }

// Transform implements Transformer
func (c *Center) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	cols := intersect(t, c.Columns)
	means := make(map[string]float64, len(cols))
	for _, col := range cols {
		m, err := estimator.Mean(t, col)
		if err != nil {
			return nil, err
		}
		means[col] = m
	}

	rows := t.CloneRows()
	for _, r := range rows {
		for _, col := range cols {
			if err := shift(r, col, c.Name(), func(v float64) float64 { return v - means[col] }); err != nil {
				return nil, err
			}
		}
	}
	return table.New(t.Columns(), rows)
}

// shift rewrites a numeric field in place; missing fields are left alone
func shift(r table.Row, col, operator string, fn func(float64) float64) error {
	v := r.Get(col)
	if v.IsMissing() {
		return nil
	}
	f, err := v.Float()
	if err != nil {
		return table.NewParseError(operator, col, v.String(), err)
	}
	r.Set(col, table.Number(fn(f)))
	return nil
}
