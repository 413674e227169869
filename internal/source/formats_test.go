package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/api/option"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

func TestXLSXLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stations.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"ID", "Nom", "Altitude"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"07005", "ABBEVILLE", 69}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"07015", "LILLE-LESQUIN"}))
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Other", "A1", &[]interface{}{"k"}))
	require.NoError(t, f.SetSheetRow("Other", "A2", &[]interface{}{"v"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	src := NewXLSX(&config.Paths{DataDir: dir}, "stations.xlsx", "")
	assert.Equal(t, "xlsx", src.Name())

	tbl, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ID", "Nom", "Altitude"}, tbl.Columns())
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "69", tbl.Row(0).Get("Altitude").String())
	assert.True(t, tbl.Row(1).Get("Altitude").IsNull())

	other, err := NewXLSX(nil, path, "Other").Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, other.Columns())

	_, err = NewXLSX(nil, path, "Missing").Load(context.Background())
	assert.Error(t, err)
}

func TestParquetLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "obs.parquet")

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "numer_sta", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "t", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "n", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
		{Name: "ok", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	}, nil)

	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.StringBuilder).AppendValues([]string{"07005", "07015"}, nil)
	b.Field(1).(*array.Float64Builder).AppendValues([]float64{280.5, 0}, []bool{true, false})
	b.Field(2).(*array.Int64Builder).AppendValues([]int64{3, 4}, nil)
	b.Field(3).(*array.BooleanBuilder).AppendValues([]bool{true, false}, nil)
	rec := b.NewRecord()
	defer rec.Release()

	out, err := os.Create(path)
	require.NoError(t, err)
	w, err := pqarrow.NewFileWriter(schema, out, parquet.NewWriterProperties(), pqarrow.DefaultWriterProps())
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())

	src := NewParquet(&config.Paths{DataDir: dir}, ".")
	assert.Equal(t, "parquet", src.Name())

	tbl, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"numer_sta", "t", "n", "ok"}, tbl.Columns())
	require.Equal(t, 2, tbl.Len())

	assert.Equal(t, table.Text("07005"), tbl.Row(0).Get("numer_sta"))
	assert.Equal(t, table.Number(280.5), tbl.Row(0).Get("t"))
	assert.True(t, tbl.Row(1).Get("t").IsNull())
	assert.Equal(t, table.Number(4), tbl.Row(1).Get("n"))
	assert.Equal(t, table.Text("true"), tbl.Row(0).Get("ok"))
}

func TestSheetsLoad(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"range": "Stations!A1:C3",
			"majorDimension": "ROWS",
			"values": [["ID", "Nom", "Altitude"], ["07005", "ABBEVILLE", 69], ["07015", "LILLE-LESQUIN"]]
		}`))
	}))
	defer srv.Close()

	src, err := NewSheets("sheet-123", "Stations!A1:C3", SheetsOptions{
		ClientOptions: []option.ClientOption{
			option.WithEndpoint(srv.URL + "/"),
			option.WithoutAuthentication(),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "sheets", src.Name())

	tbl, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(gotPath, "/v4/spreadsheets/sheet-123/values/"), gotPath)

	assert.Equal(t, []string{"ID", "Nom", "Altitude"}, tbl.Columns())
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, table.Number(69), tbl.Row(0).Get("Altitude"))
	assert.True(t, tbl.Row(1).Get("Altitude").IsNull())
}

func TestSheetsErrors(t *testing.T) {
	_, err := NewSheets("", "A1:B2", SheetsOptions{})
	assert.Error(t, err)
	_, err = NewSheets("id", "", SheetsOptions{})
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 404, "message": "not found"}}`, http.StatusNotFound)
	}))
	defer srv.Close()

	src, err := NewSheets("id", "A1:B2", SheetsOptions{
		ClientOptions: []option.ClientOption{option.WithEndpoint(srv.URL + "/"), option.WithoutAuthentication()},
	})
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	assert.Error(t, err)
}
