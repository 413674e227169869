package source

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

// XLSX reads Excel workbooks. The first row of the sheet is the header;
// cell values are loaded as their formatted text.
type XLSX struct {
	Path string
	// Sheet defaults to the first sheet of each workbook
	Sheet string

	discovery *Discovery
}

// NewXLSX creates an Excel source
func NewXLSX(paths *config.Paths, path, sheet string) *XLSX {
	return &XLSX{Path: path, Sheet: sheet, discovery: newDiscovery(paths)}
}

// Name returns the source type
func (x *XLSX) Name() string { return "xlsx" }

// Load implements Source
func (x *XLSX) Load(ctx context.Context) (*table.Table, error) {
	return loadFiles(ctx, x.Name(), x.discovery, x.Path, ".xlsx", headerFirst, x.readFile)
}

func (x *XLSX) readFile(_ context.Context, path string) (fileContent, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fileContent{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	sheet := x.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return fileContent{}, fmt.Errorf("workbook has no sheet")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return fileContent{}, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return fileContent{}, nil
	}

	header := stripBOM(rows[0])
	return fileContent{header: header, rows: recordsToRows(header, rows[1:])}, nil
}
