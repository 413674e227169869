// Package transform provides the operators a pipeline folds over a table.
//
// Every operator returns a new table built from freshly allocated rows; the
// input table is never modified, so a table may safely be reused as the
// input of another pipeline (for example as the right side of a Join).
//
// Operators:
//
//   - Project: keep a subset of columns
//   - Filter: keep rows matching every typed predicate
//   - DropMissing: drop rows carrying a sentinel value
//   - Join: inner/left/right/full merge on composite keys
//   - SpatialAggregate: attach a scale from a reference file and reduce per group
//   - RollingMean: centered moving average in sorted order
//   - Center, Normalize: shift and scale by column moments
//   - DateWindow, FormatDate: date range selection and date rewriting
package transform

import (
	"context"

	"tabflow/internal/table"
)

// Transformer is a single pipeline transformation
type Transformer interface {
	// Name returns the operator name used in logs and errors
	Name() string

	// Transform returns a new table; t is left untouched
	Transform(ctx context.Context, t *table.Table) (*table.Table, error)
}

// intersect returns the requested columns present in t, in t's header order
func intersect(t *table.Table, requested []string) []string {
	want := make(map[string]struct{}, len(requested))
	for _, c := range requested {
		want[c] = struct{}{}
	}
	var out []string
	for _, c := range t.Columns() {
		if _, ok := want[c]; ok {
			out = append(out, c)
		}
	}
	return out
}
