package transform

import (
	"context"

	"tabflow/internal/estimator"
	"tabflow/internal/table"
)

// Normalize rescales each requested column to zero mean and unit standard
// deviation. Every requested column must exist.
type Normalize struct {
	Columns []string
}

// NewNormalize creates a normalization
func NewNormalize(columns ...string) *Normalize {
	return &Normalize{Columns: columns}
}

// Name returns the operator name
func (n *Normalize) Name() string { return "normalize" }

type moments struct {
	mean, stdev float64
}

// Transform implements Transformer
func (n *Normalize) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	stats := make(map[string]moments, len(n.Columns))
	for _, col := range n.Columns {
		if err := t.RequireColumn(n.Name(), col); err != nil {
			return nil, err
		}
		mean, err := estimator.Mean(t, col)
		if err != nil {
			return nil, err
		}
		sd, err := estimator.StdDev(t, col)
		if err != nil {
			return nil, err
		}
		if sd == 0 {
			return nil, table.NewDegenerateError(n.Name(), col, "standard deviation is zero")
		}
		stats[col] = moments{mean: mean, stdev: sd}
	}

	rows := t.CloneRows()
	for _, r := range rows {
		for _, col := range n.Columns {
			m := stats[col]
			if err := shift(r, col, n.Name(), func(v float64) float64 { return (v - m.mean) / m.stdev }); err != nil {
				return nil, err
			}
		}
	}
	return table.New(t.Columns(), rows)
}
