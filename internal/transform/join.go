package transform

import (
	"context"
	"fmt"
	"strings"

	"tabflow/internal/table"
)

// JoinMode selects which unmatched rows a Join keeps
type JoinMode string

const (
	JoinInner JoinMode = "inner"
	JoinLeft  JoinMode = "left"
	JoinRight JoinMode = "right"
	JoinFull  JoinMode = "full"
)

// ParseJoinMode parses a join mode, defaulting to inner
func ParseJoinMode(s string) (JoinMode, error) {
	switch m := JoinMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return JoinInner, nil
	case JoinInner, JoinLeft, JoinRight, JoinFull:
		return m, nil
	default:
		return "", fmt.Errorf("unknown join mode %q", s)
	}
}

func (m JoinMode) keepsLeft() bool  { return m == JoinLeft || m == JoinFull }
func (m JoinMode) keepsRight() bool { return m == JoinRight || m == JoinFull }

// Join merges the pipeline table (left) with a fixed right table on
// composite pivot keys.
//
// Right rows are indexed by key; when several right rows share a key the
// last one wins. A matched right entry is consumed, so a second left row
// with the same key is treated as unmatched.
type Join struct {
	right       *table.Table
	leftPivots  []string
	rightPivots []string
	mode        JoinMode
}

// NewJoin creates a join against right. Pivot lists must have the same,
// non-zero length.
func NewJoin(right *table.Table, leftPivots, rightPivots []string, mode JoinMode) (*Join, error) {
	if right == nil {
		return nil, fmt.Errorf("join: right table is required")
	}
	if len(leftPivots) == 0 || len(leftPivots) != len(rightPivots) {
		return nil, fmt.Errorf("join: pivot lists must be non-empty and of equal length (%d vs %d)",
			len(leftPivots), len(rightPivots))
	}
	if mode == "" {
		mode = JoinInner
	}
	if _, err := ParseJoinMode(string(mode)); err != nil {
		return nil, err
	}
	return &Join{
		right:       right,
		leftPivots:  append([]string(nil), leftPivots...),
		rightPivots: append([]string(nil), rightPivots...),
		mode:        mode,
	}, nil
}

// Name returns the operator name
func (j *Join) Name() string { return "join" }

// Mode returns the join mode
func (j *Join) Mode() JoinMode { return j.mode }

type joinEntry struct {
	row      table.Row
	consumed bool
}

// Transform implements Transformer
func (j *Join) Transform(_ context.Context, left *table.Table) (*table.Table, error) {
	for _, p := range j.leftPivots {
		if err := left.RequireColumn("join", p); err != nil {
			return nil, err
		}
	}
	for _, p := range j.rightPivots {
		if err := j.right.RequireColumn("join", p); err != nil {
			return nil, err
		}
	}

	// right pivots that are not copied into merged rows
	dropped := make(map[string]struct{}, len(j.rightPivots))
	for i, rp := range j.rightPivots {
		if rp != j.leftPivots[i] {
			dropped[rp] = struct{}{}
		}
	}

	index := make(map[string]int)
	var entries []*joinEntry
	for _, r := range j.right.Rows() {
		key, ok := pivotKey(r, j.rightPivots)
		if !ok {
			continue
		}
		if pos, exists := index[key]; exists {
			entries[pos].row = r
			continue
		}
		index[key] = len(entries)
		entries = append(entries, &joinEntry{row: r})
	}

	var rows []table.Row
	for _, l := range left.Rows() {
		key, ok := pivotKey(l, j.leftPivots)
		var entry *joinEntry
		if ok {
			if pos, exists := index[key]; exists && !entries[pos].consumed {
				entry = entries[pos]
			}
		}
		if entry == nil {
			if j.mode.keepsLeft() {
				rows = append(rows, l.Clone())
			}
			continue
		}
		merged := l.Clone()
		for k, v := range entry.row {
			if _, skip := dropped[k]; skip {
				continue
			}
			if !merged.Has(k) {
				merged.Set(k, v)
			}
		}
		rows = append(rows, merged)
		entry.consumed = true
	}

	if j.mode.keepsRight() {
		for _, e := range entries {
			if e.consumed {
				continue
			}
			out := e.row.Clone()
			for i, rp := range j.rightPivots {
				lp := j.leftPivots[i]
				if rp == lp {
					continue
				}
				v := out.Get(rp)
				delete(out, rp)
				out.Set(lp, v)
			}
			rows = append(rows, out)
		}
	}

	var rightCols []string
	pivots := make(map[string]struct{}, len(j.rightPivots))
	for _, rp := range j.rightPivots {
		pivots[rp] = struct{}{}
	}
	for _, c := range j.right.Columns() {
		if _, isPivot := pivots[c]; !isPivot {
			rightCols = append(rightCols, c)
		}
	}
	return table.New(table.UnionColumns(left.Columns(), rightCols...), rows)
}

func pivotKey(r table.Row, pivots []string) (string, bool) {
	vals := make([]table.Value, len(pivots))
	for i, p := range pivots {
		vals[i] = r.Get(p)
	}
	return table.Key(vals...)
}
