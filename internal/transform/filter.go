package transform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tabflow/internal/table"
)

// Operator is a comparison operator of a filter predicate
type Operator string

const (
	OpEqual    Operator = "="
	OpGreater  Operator = ">"
	OpLess     Operator = "<"
	OpNotEqual Operator = "!="
)

// ValueType tells a predicate how to coerce values before comparing
type ValueType string

const (
	TypeInt   ValueType = "int"
	TypeFloat ValueType = "float"
	TypeText  ValueType = "text"
	TypeDate  ValueType = "date"
)

// ParseValueType accepts the type names used in pipeline definitions
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "integer":
		return TypeInt, nil
	case "float", "number":
		return TypeFloat, nil
	case "", "str", "string", "text":
		return TypeText, nil
	case "date":
		return TypeDate, nil
	default:
		return "", fmt.Errorf("unknown predicate type %q", s)
	}
}

// Predicate compares one column against a literal
type Predicate struct {
	Column   string
	Operator Operator
	Literal  string
	Type     ValueType

	intLit   int64
	floatLit float64
	dateLit  time.Time
}

// Filter keeps the rows for which every predicate holds
type Filter struct {
	predicates []Predicate
}

// NewFilter validates operators and types and parses every literal once
func NewFilter(predicates ...Predicate) (*Filter, error) {
	parsed := make([]Predicate, len(predicates))
	for i, p := range predicates {
		if p.Column == "" {
			return nil, fmt.Errorf("predicate %d: column is required", i)
		}
		switch p.Operator {
		case OpEqual, OpGreater, OpLess, OpNotEqual:
		default:
			return nil, fmt.Errorf("predicate %d: unknown operator %q", i, p.Operator)
		}
		if p.Type == "" {
			p.Type = TypeText
		}
		lit := table.Text(p.Literal)
		var err error
		switch p.Type {
		case TypeInt:
			p.intLit, err = lit.Int()
		case TypeFloat:
			p.floatLit, err = lit.Float()
		case TypeDate:
			p.dateLit, err = table.ParseDate(p.Literal)
		case TypeText:
		default:
			return nil, fmt.Errorf("predicate %d: unknown type %q", i, p.Type)
		}
		if err != nil {
			return nil, table.NewParseError("filter", p.Column, p.Literal, err)
		}
		parsed[i] = p
	}
	return &Filter{predicates: parsed}, nil
}

// Name returns the operator name
func (f *Filter) Name() string { return "filter" }

// Predicates returns the parsed predicates
func (f *Filter) Predicates() []Predicate {
	return f.predicates
}

// Transform implements Transformer
func (f *Filter) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	for _, p := range f.predicates {
		if err := t.RequireColumn("filter", p.Column); err != nil {
			return nil, err
		}
	}
	var rows []table.Row
	for _, r := range t.Rows() {
		keep := true
		for _, p := range f.predicates {
			ok, err := p.eval(r.Get(p.Column))
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			rows = append(rows, r.Clone())
		}
	}
	return table.New(t.Columns(), rows)
}

// eval evaluates the predicate against a row value
func (p Predicate) eval(v table.Value) (bool, error) {
	var cmp int
	switch p.Type {
	case TypeText:
		if v.IsMissing() {
			switch p.Operator {
			case OpEqual:
				return false, nil
			case OpNotEqual:
				return true, nil
			}
			return false, p.parseError(v, fmt.Errorf("cannot order a %s value", v.Kind()))
		}
		cmp = strings.Compare(v.String(), p.Literal)
	case TypeInt:
		i, err := v.Int()
		if err != nil {
			return false, p.parseError(v, err)
		}
		cmp = compareOrdered(i, p.intLit)
	case TypeFloat:
		f, err := v.Float()
		if err != nil {
			return false, p.parseError(v, err)
		}
		cmp = compareOrdered(f, p.floatLit)
	case TypeDate:
		d, err := table.ParseDate(v.String())
		if err != nil {
			return false, p.parseError(v, err)
		}
		cmp = d.Compare(p.dateLit)
	}

	switch p.Operator {
	case OpEqual:
		return cmp == 0, nil
	case OpGreater:
		return cmp > 0, nil
	case OpLess:
		return cmp < 0, nil
	default:
		return cmp != 0, nil
	}
}

func (p Predicate) parseError(v table.Value, cause error) error {
	return table.NewParseError("filter", p.Column, v.String(),
		fmt.Errorf("%s %s %s (%s): %w", p.Column, p.Operator, p.Literal, p.Type, cause))
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
