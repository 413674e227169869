package sink

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

// DefaultSheet is the name of the sheet written by the XLSX sink
const DefaultSheet = "Sheet1"

// XLSX writes an Excel workbook with a single sheet. Numbers are written as
// numeric cells; absent and null values leave the cell empty.
type XLSX struct {
	Path  string
	Sheet string

	paths *config.Paths
}

// NewXLSX creates an Excel sink. An empty sheet name means Sheet1.
func NewXLSX(paths *config.Paths, path, sheet string) *XLSX {
	if sheet == "" {
		sheet = DefaultSheet
	}
	return &XLSX{Path: path, Sheet: sheet, paths: paths}
}

// Name returns the sink type
func (x *XLSX) Name() string { return "xlsx" }

// Export implements Sink
func (x *XLSX) Export(ctx context.Context, t *table.Table) error {
	fullPath := outputPath(x.paths, x.Path)

	f := excelize.NewFile()
	defer f.Close()

	if x.Sheet != DefaultSheet {
		if err := f.SetSheetName(DefaultSheet, x.Sheet); err != nil {
			return fmt.Errorf("xlsx sink: failed to name sheet: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(x.Sheet)
	if err != nil {
		return fmt.Errorf("xlsx sink: failed to create stream writer: %w", err)
	}

	columns := t.Columns()
	header := make([]interface{}, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("xlsx sink: failed to write headers: %w", err)
	}

	for i, row := range t.Rows() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells := make([]interface{}, len(columns))
		for j, col := range columns {
			cells[j] = cellValue(row.Get(col))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx sink: %w", err)
		}
		if err := sw.SetRow(cell, cells); err != nil {
			return fmt.Errorf("xlsx sink: failed to write record %d: %w", i, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("xlsx sink: failed to flush sheet: %w", err)
	}

	file, err := createFile(fullPath)
	if err != nil {
		return fmt.Errorf("xlsx sink: %w", err)
	}
	defer file.Close()

	if _, err := f.WriteTo(file); err != nil {
		return fmt.Errorf("xlsx sink: failed to write workbook: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("xlsx sink: failed to close file: %w", err)
	}

	logExport(ctx, x.Name(), fullPath, t)
	return nil
}

func cellValue(v table.Value) interface{} {
	switch v.Kind() {
	case table.KindNumber:
		f, _ := v.Float()
		return f
	case table.KindText:
		return v.String()
	default:
		return nil
	}
}
