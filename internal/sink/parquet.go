package sink

import (
	"context"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

// Parquet writes an Apache Parquet file with snappy compression. A column
// is typed float64 when every present value is a number and string
// otherwise; absent and null values are written as null.
type Parquet struct {
	Path string

	paths *config.Paths
}

// NewParquet creates a Parquet sink
func NewParquet(paths *config.Paths, path string) *Parquet {
	return &Parquet{Path: path, paths: paths}
}

// Name returns the sink type
func (p *Parquet) Name() string { return "parquet" }

// Export implements Sink
func (p *Parquet) Export(ctx context.Context, t *table.Table) error {
	fullPath := outputPath(p.paths, p.Path)

	schema := arrowSchema(t)
	rec := buildRecord(memory.NewGoAllocator(), schema, t)
	defer rec.Release()

	if err := ctx.Err(); err != nil {
		return err
	}

	file, err := createFile(fullPath)
	if err != nil {
		return fmt.Errorf("parquet sink: %w", err)
	}
	defer file.Close()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

	writer, err := pqarrow.NewFileWriter(schema, file, props, arrowProps)
	if err != nil {
		return fmt.Errorf("parquet sink: failed to create writer: %w", err)
	}
	if err := writer.Write(rec); err != nil {
		writer.Close()
		return fmt.Errorf("parquet sink: failed to write record: %w", err)
	}
	// closes the underlying file
	if err := writer.Close(); err != nil {
		return fmt.Errorf("parquet sink: failed to close writer: %w", err)
	}

	logExport(ctx, p.Name(), fullPath, t)
	return nil
}

// arrowSchema types every column from its values
func arrowSchema(t *table.Table) *arrow.Schema {
	columns := t.Columns()
	fields := make([]arrow.Field, len(columns))
	for i, col := range columns {
		typ := arrow.DataType(arrow.PrimitiveTypes.Float64)
		for _, row := range t.Rows() {
			v := row.Get(col)
			if !v.IsMissing() && !v.IsNumber() {
				typ = arrow.BinaryTypes.String
				break
			}
		}
		fields[i] = arrow.Field{Name: col, Type: typ, Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

func buildRecord(mem memory.Allocator, schema *arrow.Schema, t *table.Table) arrow.Record {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	for i, field := range schema.Fields() {
		switch fb := b.Field(i).(type) {
		case *array.Float64Builder:
			for _, row := range t.Rows() {
				v := row.Get(field.Name)
				if v.IsMissing() {
					fb.AppendNull()
					continue
				}
				f, _ := v.Float()
				fb.Append(f)
			}
		case *array.StringBuilder:
			for _, row := range t.Rows() {
				v := row.Get(field.Name)
				if v.IsMissing() {
					fb.AppendNull()
					continue
				}
				fb.Append(v.String())
			}
		}
	}
	return b.NewRecord()
}
