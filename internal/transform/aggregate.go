package transform

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"tabflow/internal/table"
)

// SpatialAggregate attaches a scale (for example a region) to every row from
// a reference mapping, then reduces the rows of each scale/group-by group
// into one row.
type SpatialAggregate struct {
	reference *table.Table
	refPivot  string
	pivot     string
	scale     string
	groupBy   []string
	reducer   Reducer
}

// AggregateOptions configures a SpatialAggregate
type AggregateOptions struct {
	// ReferencePivot is the key column of the reference mapping
	ReferencePivot string
	// Pivot is the key column of the pipeline table; it is removed from the output
	Pivot string
	// Scale is the reference column attached to every row and grouped on
	Scale string
	// GroupBy lists extra grouping columns, in key order
	GroupBy []string
	// Reducer defaults to the arithmetic mean
	Reducer Reducer
}

// NewSpatialAggregate creates an aggregator over the given reference mapping
func NewSpatialAggregate(reference *table.Table, opts AggregateOptions) (*SpatialAggregate, error) {
	if reference == nil {
		return nil, fmt.Errorf("spatial_aggregate: reference table is required")
	}
	if opts.ReferencePivot == "" || opts.Pivot == "" || opts.Scale == "" {
		return nil, fmt.Errorf("spatial_aggregate: reference pivot, pivot and scale are required")
	}
	if err := reference.RequireColumn("spatial_aggregate", opts.ReferencePivot); err != nil {
		return nil, err
	}
	if err := reference.RequireColumn("spatial_aggregate", opts.Scale); err != nil {
		return nil, err
	}
	if opts.Reducer == nil {
		opts.Reducer = reduceMean
	}
	return &SpatialAggregate{
		reference: reference,
		refPivot:  opts.ReferencePivot,
		pivot:     opts.Pivot,
		scale:     opts.Scale,
		groupBy:   append([]string(nil), opts.GroupBy...),
		reducer:   opts.Reducer,
	}, nil
}

// Name returns the operator name
func (a *SpatialAggregate) Name() string { return "spatial_aggregate" }

// Transform implements Transformer
func (a *SpatialAggregate) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	if err := t.RequireColumn(a.Name(), a.pivot); err != nil {
		return nil, err
	}
	for _, g := range a.groupBy {
		if err := t.RequireColumn(a.Name(), g); err != nil {
			return nil, err
		}
	}

	lookup := a.buildLookup(ctx)

	var cols []string
	for _, c := range t.Columns() {
		if c != a.pivot {
			cols = append(cols, c)
		}
	}
	cols = table.UnionColumns(cols, a.scale)

	// attach the scale, dropping rows without a reference entry
	var scaled []table.Row
	for _, r := range t.Rows() {
		key, ok := table.Key(r.Get(a.pivot))
		if !ok {
			continue
		}
		scale, found := lookup[key]
		if !found {
			continue
		}
		out := r.Clone()
		delete(out, a.pivot)
		out.Set(a.scale, scale)
		scaled = append(scaled, out)
	}

	groupCols := append([]string{a.scale}, a.groupBy...)
	isGroupCol := make(map[string]struct{}, len(groupCols))
	for _, g := range groupCols {
		isGroupCol[g] = struct{}{}
	}

	index := make(map[string]int)
	var groups [][]table.Row
	for _, r := range scaled {
		key := groupKey(r, groupCols)
		pos, exists := index[key]
		if !exists {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, nil)
		}
		groups[pos] = append(groups[pos], r)
	}

	rows := make([]table.Row, 0, len(groups))
	for _, g := range groups {
		out := make(table.Row, len(cols))
		for _, c := range cols {
			if _, ok := isGroupCol[c]; ok {
				out.Set(c, g[0].Get(c))
				continue
			}
			var vals []float64
			for _, r := range g {
				v := r.Get(c)
				if v.IsMissing() {
					continue
				}
				f, err := v.Float()
				if err != nil {
					return nil, table.NewParseError(a.Name(), c, v.String(), err)
				}
				vals = append(vals, f)
			}
			if len(vals) == 0 {
				continue
			}
			if res := a.reducer(vals); !math.IsNaN(res) {
				out.Set(c, table.Number(res))
			}
		}
		rows = append(rows, out)
	}

	slog.DebugContext(ctx, "spatial_aggregate_completed",
		slog.Int("rows_in", t.Len()),
		slog.Int("rows_matched", len(scaled)),
		slog.Int("groups", len(rows)))

	return table.New(cols, rows)
}

// buildLookup maps each reference pivot to its scale value. The first
// occurrence of a pivot wins.
func (a *SpatialAggregate) buildLookup(ctx context.Context) map[string]table.Value {
	lookup := make(map[string]table.Value, a.reference.Len())
	for _, r := range a.reference.Rows() {
		key, ok := table.Key(r.Get(a.refPivot))
		if !ok {
			continue
		}
		if _, dup := lookup[key]; dup {
			slog.WarnContext(ctx, "duplicate_reference_pivot",
				slog.String("operator", a.Name()),
				slog.String("column", a.refPivot),
				slog.String("value", r.Get(a.refPivot).String()))
			continue
		}
		lookup[key] = r.Get(a.scale)
	}
	return lookup
}

// groupKey is like table.Key but keeps rows with missing group values,
// which group together
func groupKey(r table.Row, cols []string) string {
	var b strings.Builder
	for _, c := range cols {
		v := r.Get(c)
		if v.IsMissing() {
			b.WriteByte('-')
			continue
		}
		k, _ := table.Key(v)
		b.WriteString(k)
	}
	return b.String()
}
