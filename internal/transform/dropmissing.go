package transform

import (
	"context"

	"tabflow/internal/table"
)

// DropMissing removes every row carrying a sentinel value in any of its
// present fields. Sentinels may be text, numbers or an explicit null. A
// number sentinel also matches text cells holding the same number, so -999
// matches "-999" and "-999.0" read from a delimited file.
type DropMissing struct {
	Sentinels []table.Value
}

// NewDropMissing creates a missing-value dropper
func NewDropMissing(sentinels ...table.Value) *DropMissing {
	return &DropMissing{Sentinels: sentinels}
}

// Name returns the operator name
func (d *DropMissing) Name() string { return "drop_missing" }

// Transform implements Transformer. The output header is recomputed from the
// first surviving row.
func (d *DropMissing) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	var rows []table.Row
	for _, r := range t.Rows() {
		if d.isMissing(r) {
			continue
		}
		rows = append(rows, r.Clone())
	}
	var cols []string
	if len(rows) > 0 {
		cols = table.ColumnsOf(rows[0], t.Columns())
	}
	return table.New(cols, rows)
}

func (d *DropMissing) isMissing(r table.Row) bool {
	for _, v := range r {
		for _, s := range d.Sentinels {
			if matchesSentinel(v, s) {
				return true
			}
		}
	}
	return false
}

func matchesSentinel(v, sentinel table.Value) bool {
	if v.Equal(sentinel) {
		return true
	}
	if !sentinel.IsNumber() || v.Kind() != table.KindText {
		return false
	}
	f, err := v.Float()
	if err != nil {
		return false
	}
	want, _ := sentinel.Float()
	return f == want
}
