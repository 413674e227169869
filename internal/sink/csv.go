package sink

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

// DefaultSeparator is the field separator used when none is configured
const DefaultSeparator = ';'

// CSV writes delimited text, optionally gzip-compressed. Absent and null
// values are written as empty fields.
type CSV struct {
	Path       string
	Separator  rune
	Compressed bool
	// BOMPrefix adds a UTF-8 BOM for Excel compatibility
	BOMPrefix bool

	paths *config.Paths
}

// NewCSV creates a delimited text sink. A zero separator means ';'.
func NewCSV(paths *config.Paths, path string, sep rune, bom bool) *CSV {
	if sep == 0 {
		sep = DefaultSeparator
	}
	return &CSV{Path: path, Separator: sep, BOMPrefix: bom, paths: paths}
}

// NewCSVGzip creates a gzip-compressed delimited text sink
func NewCSVGzip(paths *config.Paths, path string, sep rune, bom bool) *CSV {
	c := NewCSV(paths, path, sep, bom)
	c.Compressed = true
	return c
}

// Name returns the sink type
func (c *CSV) Name() string {
	if c.Compressed {
		return "csv.gz"
	}
	return "csv"
}

// Export implements Sink
func (c *CSV) Export(ctx context.Context, t *table.Table) error {
	fullPath := outputPath(c.paths, c.Path)

	file, err := createFile(fullPath)
	if err != nil {
		return fmt.Errorf("%s sink: %w", c.Name(), err)
	}
	defer file.Close()

	var w io.Writer = file
	var gz *gzip.Writer
	if c.Compressed {
		gz = gzip.NewWriter(file)
		w = gz
	}

	if err := c.write(ctx, w, t); err != nil {
		return fmt.Errorf("%s sink: %w", c.Name(), err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("%s sink: failed to close gzip stream: %w", c.Name(), err)
		}
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("%s sink: failed to close file: %w", c.Name(), err)
	}

	logExport(ctx, c.Name(), fullPath, t)
	return nil
}

func (c *CSV) write(ctx context.Context, w io.Writer, t *table.Table) error {
	if c.BOMPrefix {
		if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	writer.Comma = c.Separator

	columns := t.Columns()
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	record := make([]string, len(columns))
	for i, row := range t.Rows() {
		if i%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for j, col := range columns {
			record[j] = row.Get(col).String()
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
