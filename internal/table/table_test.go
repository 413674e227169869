package table

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		wantErr bool
	}{
		{name: "unique columns", columns: []string{"nom", "age"}},
		{name: "no columns", columns: nil},
		{name: "duplicate column", columns: []string{"nom", "age", "nom"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := New(tt.columns, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrSchema))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, tbl.Len())
			assert.Len(t, tbl.Columns(), len(tt.columns))
		})
	}
}

func TestTable_ColumnsIsACopy(t *testing.T) {
	tbl := MustNew([]string{"a", "b"}, nil)
	cols := tbl.Columns()
	cols[0] = "z"
	assert.Equal(t, []string{"a", "b"}, tbl.Columns())
}

func TestTable_HasColumn(t *testing.T) {
	tbl := MustNew([]string{"a"}, []Row{
		{"a": Text("1")},
		{"a": Text("2"), "sparse": Number(3)},
	})

	assert.True(t, tbl.HasColumn("a"))
	assert.True(t, tbl.HasColumn("sparse"))
	assert.False(t, tbl.HasColumn("missing"))

	err := tbl.RequireColumn("filter", "missing")
	require.Error(t, err)
	assert.Equal(t, ErrorTypeSchema, GetErrorType(err))
	assert.Contains(t, err.Error(), `"missing"`)
}

func TestTable_CloneIsIndependent(t *testing.T) {
	tbl := MustNew([]string{"a"}, []Row{{"a": Text("x")}})
	clone := tbl.Clone()
	clone.Row(0).Set("a", Text("y"))

	assert.Equal(t, "x", tbl.Row(0).Get("a").String())
	assert.Equal(t, "y", clone.Row(0).Get("a").String())
}

func TestTable_String(t *testing.T) {
	tbl := MustNew([]string{"nom", "age"}, []Row{
		{"nom": Text("Anne"), "age": Number(23)},
		{"nom": Text("Thomas"), "age": Number(17)},
	})
	assert.Equal(t, "  Dimensions : 2 rows x 2 columns\n  Columns    : [nom, age]", tbl.String())

	empty := MustNew([]string{"nom"}, nil)
	assert.Contains(t, empty.String(), "0 rows x 0 columns")
}

func TestValue(t *testing.T) {
	var absent Value
	assert.True(t, absent.IsAbsent())
	assert.True(t, absent.IsMissing())
	assert.True(t, Null().IsMissing())
	assert.False(t, Null().IsAbsent())

	assert.Equal(t, "15", Number(15).String())
	assert.Equal(t, "0.125", Number(0.125).String())
	assert.Equal(t, "", Null().String())

	f, err := Text(" 12.5 ").Float()
	require.NoError(t, err)
	assert.Equal(t, 12.5, f)

	_, err = Text("mq").Float()
	assert.Error(t, err)
	_, err = Null().Float()
	assert.Error(t, err)

	i, err := Number(23.9).Int()
	require.NoError(t, err)
	assert.Equal(t, int64(23), i)
	_, err = Text("18.0").Int()
	assert.Error(t, err)

	assert.True(t, Text("NA").Equal(Text("NA")))
	assert.False(t, Text("1").Equal(Number(1)))
	assert.True(t, Null().Equal(Null()))
}

func TestRow_SetAbsentDeletes(t *testing.T) {
	r := Row{"a": Text("x")}
	r.Set("a", Value{})
	assert.False(t, r.Has("a"))
}

func TestCompare(t *testing.T) {
	tests := []struct {
		a, b Value
		want int
	}{
		{Number(2), Number(10), -1},
		{Text("2"), Text("10"), 1},
		{Text("2022-01-01"), Text("2022-01-02"), -1},
		{Value{}, Text("a"), -1},
		{Text("a"), Null(), 1},
		{Null(), Value{}, 0},
		{Number(3), Number(3), 0},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			assert.Equal(t, tt.want, Compare(tt.a, tt.b))
		})
	}
}

func TestKey_NoCollisions(t *testing.T) {
	k1, ok1 := Key(Text("a"), Text("bc"))
	k2, ok2 := Key(Text("ab"), Text("c"))
	require.True(t, ok1)
	require.True(t, ok2)
	assert.NotEqual(t, k1, k2)

	k3, _ := Key(Number(1), Text("x"))
	k4, _ := Key(Text("1"), Text("x"))
	assert.Equal(t, k3, k4, "keys compare textual forms")

	_, ok := Key(Text("a"), Value{})
	assert.False(t, ok)
}

func TestColumnsOf(t *testing.T) {
	row := Row{"b": Text("1"), "zz": Text("2"), "a": Text("3"), "extra": Text("4")}
	assert.Equal(t, []string{"a", "b", "extra", "zz"}, ColumnsOf(row, []string{"a", "b", "c"}))
}

func TestUnionColumns(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C", "D"}, UnionColumns([]string{"A", "B", "C"}, "C", "D", "A"))
}

func TestParseDate(t *testing.T) {
	valid := []string{
		"2022-01-01",
		"2022-01-01 03:00:00",
		"2022-01-01T03:00:00",
		"2022-01-01T03:00:00+01:00",
		"2022-01-01T03:00:00.123Z",
		"2022-01-01 03:00",
	}
	for _, s := range valid {
		_, err := ParseDate(s)
		assert.NoError(t, err, s)
	}

	_, err := ParseDate("01/02/2022")
	assert.Error(t, err)

	a, _ := ParseDate("2022-01-01 03:00:00")
	b, _ := ParseDate("2022-01-01T03:00:00")
	assert.True(t, a.Equal(b))
}

func TestConvertStrftime(t *testing.T) {
	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{format: "%Y%m%d%H%M%S", want: "20060102150405"},
		{format: "%Y-%m-%dT%H:%M:%S%z", want: "2006-01-02T15:04:05-0700"},
		{format: "%d/%m/%y", want: "02/01/06"},
		{format: "%Q", wantErr: true},
		{format: "%Y%", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got, err := ConvertStrftime(tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("stage failed: %w", NewParseError("filter", "age", "x", nil))
	assert.True(t, errors.Is(err, ErrParse))
	assert.False(t, errors.Is(err, ErrSchema))
	assert.Equal(t, ErrorTypeParse, GetErrorType(err))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
	assert.Equal(t, `[parse] filter: column "age": value "x": cannot convert value`, NewParseError("filter", "age", "x", nil).Error())
}
