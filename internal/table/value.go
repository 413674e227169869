package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies what a Value carries
type Kind uint8

const (
	// KindAbsent is the zero Kind: the row does not carry the column
	KindAbsent Kind = iota
	// KindNull is an explicit null coming from a source
	KindNull
	// KindText is a textual value
	KindText
	// KindNumber is a numeric value
	KindNumber
)

// String returns the name of the kind
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a single cell. The zero Value is absent.
type Value struct {
	kind Kind
	text string
	num  float64
}

// Null returns an explicit null value
func Null() Value {
	return Value{kind: KindNull}
}

// Text returns a textual value
func Text(s string) Value {
	return Value{kind: KindText, text: s}
}

// Number returns a numeric value
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Kind returns the kind of the value
func (v Value) Kind() Kind {
	return v.kind
}

// IsAbsent reports whether the value is absent
func (v Value) IsAbsent() bool {
	return v.kind == KindAbsent
}

// IsNull reports whether the value is an explicit null
func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// IsMissing reports whether the value is absent or null
func (v Value) IsMissing() bool {
	return v.kind == KindAbsent || v.kind == KindNull
}

// IsNumber reports whether the value is numeric
func (v Value) IsNumber() bool {
	return v.kind == KindNumber
}

// String renders the value as text. Absent and null render as "".
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Float converts the value to a float64
func (v Value) Float() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v.text)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s value is not a number", v.kind)
	}
}

// Int converts the value to an int64. Numbers are truncated toward zero.
func (v Value) Int() (int64, error) {
	switch v.kind {
	case KindNumber:
		return int64(v.num), nil
	case KindText:
		i, err := strconv.ParseInt(strings.TrimSpace(v.text), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not an integer", v.text)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%s value is not an integer", v.kind)
	}
}

// Equal reports whether two values have the same kind and payload
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindNumber:
		return v.num == o.num
	default:
		return true
	}
}

// Compare orders two values: numbers numerically when both are numbers,
// otherwise by their textual form. Missing values sort first.
func Compare(a, b Value) int {
	am, bm := a.IsMissing(), b.IsMissing()
	switch {
	case am && bm:
		return 0
	case am:
		return -1
	case bm:
		return 1
	}
	if a.kind == KindNumber && b.kind == KindNumber {
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a.String(), b.String())
}

// Row maps column names to values. A column missing from the map is absent.
type Row map[string]Value

// Get returns the value of a column, absent if the row does not carry it
func (r Row) Get(column string) Value {
	return r[column]
}

// Has reports whether the row carries the column
func (r Row) Has(column string) bool {
	_, ok := r[column]
	return ok
}

// Set stores a value. Storing an absent value removes the column from the row.
func (r Row) Set(column string, v Value) {
	if v.IsAbsent() {
		delete(r, column)
		return
	}
	r[column] = v
}

// Clone returns an independent copy of the row
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
