package source

import (
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

// parquetBatchSize is the number of rows read per record batch
const parquetBatchSize = 64 * 1024

// Parquet reads Apache Parquet files. Integer and floating point columns
// become numbers, string columns text and nulls explicit nulls; other
// types are kept as their text rendering.
type Parquet struct {
	Path string

	discovery *Discovery
}

// NewParquet creates a Parquet source
func NewParquet(paths *config.Paths, path string) *Parquet {
	return &Parquet{Path: path, discovery: newDiscovery(paths)}
}

// Name returns the source type
func (p *Parquet) Name() string { return "parquet" }

// Load implements Source
func (p *Parquet) Load(ctx context.Context) (*table.Table, error) {
	return loadFiles(ctx, p.Name(), p.discovery, p.Path, ".parquet", headerFirst, p.readFile)
}

func (p *Parquet) readFile(ctx context.Context, path string) (fileContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileContent{}, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer f.Close()

	pf, err := file.NewParquetReader(f)
	if err != nil {
		return fileContent{}, fmt.Errorf("failed to create parquet reader: %w", err)
	}
	defer pf.Close()

	mem := memory.NewGoAllocator()
	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return fileContent{}, fmt.Errorf("failed to create arrow reader: %w", err)
	}

	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return fileContent{}, fmt.Errorf("failed to read parquet data: %w", err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	header := make([]string, schema.NumFields())
	for i, field := range schema.Fields() {
		header[i] = field.Name
	}

	content := fileContent{header: header}
	tr := array.NewTableReader(tbl, parquetBatchSize)
	defer tr.Release()

	for tr.Next() {
		rec := tr.Record()
		for rowIdx := 0; rowIdx < int(rec.NumRows()); rowIdx++ {
			row := make(table.Row, len(header))
			for colIdx, col := range rec.Columns() {
				row[header[colIdx]] = arrowValue(col, rowIdx)
			}
			content.rows = append(content.rows, row)
		}
	}
	if err := tr.Err(); err != nil {
		return fileContent{}, fmt.Errorf("error reading table: %w", err)
	}
	return content, nil
}

// arrowValue converts one cell of an Arrow array
func arrowValue(col arrow.Array, i int) table.Value {
	if col.IsNull(i) {
		return table.Null()
	}
	switch c := col.(type) {
	case *array.Float64:
		return table.Number(c.Value(i))
	case *array.Float32:
		return table.Number(float64(c.Value(i)))
	case *array.Int64:
		return table.Number(float64(c.Value(i)))
	case *array.Int32:
		return table.Number(float64(c.Value(i)))
	case *array.Int16:
		return table.Number(float64(c.Value(i)))
	case *array.Int8:
		return table.Number(float64(c.Value(i)))
	case *array.Uint64:
		return table.Number(float64(c.Value(i)))
	case *array.Uint32:
		return table.Number(float64(c.Value(i)))
	case *array.Uint16:
		return table.Number(float64(c.Value(i)))
	case *array.Uint8:
		return table.Number(float64(c.Value(i)))
	case *array.String:
		return table.Text(c.Value(i))
	case *array.LargeString:
		return table.Text(c.Value(i))
	default:
		return table.Text(col.ValueStr(i))
	}
}
