package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"tabflow/internal/estimator"
	"tabflow/internal/table"
)

// RollingPrefix prefixes the column holding the rolling mean
const RollingPrefix = "moygli_"

// RollingMean computes a centered moving average of a column over the rows
// sorted by an ordering column (usually a date).
//
// For a window k the left half-width is k/2 and the right half-width is the
// same for odd k and one less for even k. Rows too close to either end to
// hold a full window do not get the output column.
type RollingMean struct {
	column  string
	window  int
	orderBy string
}

// NewRollingMean creates a rolling mean of column over window rows ordered
// by orderBy
func NewRollingMean(column string, window int, orderBy string) (*RollingMean, error) {
	if column == "" || orderBy == "" {
		return nil, fmt.Errorf("rolling_mean: column and order column are required")
	}
	if window < 1 {
		return nil, fmt.Errorf("rolling_mean: window must be at least 1, got %d", window)
	}
	return &RollingMean{column: column, window: window, orderBy: orderBy}, nil
}

// Name returns the operator name
func (m *RollingMean) Name() string { return "rolling_mean" }

// OutputColumn returns the name of the column the mean is written to
func (m *RollingMean) OutputColumn() string { return RollingPrefix + m.column }

// HalfWidths returns the number of rows taken before and after each row
func (m *RollingMean) HalfWidths() (left, right int) {
	left = m.window / 2
	right = left
	if m.window%2 == 0 {
		right = left - 1
	}
	return left, right
}

// Transform implements Transformer
func (m *RollingMean) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	if err := t.RequireColumn(m.Name(), m.column); err != nil {
		return nil, err
	}
	if err := t.RequireColumn(m.Name(), m.orderBy); err != nil {
		return nil, err
	}
	n := t.Len()
	if m.window > n {
		return nil, table.NewDegenerateError(m.Name(), m.column,
			fmt.Sprintf("window of %d rows is larger than the table (%d rows)", m.window, n))
	}

	rows := t.CloneRows()
	sort.SliceStable(rows, func(i, j int) bool {
		return table.Compare(rows[i].Get(m.orderBy), rows[j].Get(m.orderBy)) < 0
	})

	out := m.OutputColumn()
	left, right := m.HalfWidths()
	for i := left; i < n-right; i++ {
		mean, err := estimator.MeanRows(rows[i-left:i+right+1], m.column)
		if err != nil {
			return nil, err
		}
		rows[i].Set(out, table.Number(mean))
	}

	slog.DebugContext(ctx, "rolling_mean_completed",
		slog.String("column", m.column),
		slog.Int("window", m.window),
		slog.Int("rows", n))

	return table.New(table.UnionColumns(t.Columns(), out), rows)
}
