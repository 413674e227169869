// Package source loads tables from flat files and remote spreadsheets.
//
// A source path may name one file or a directory. For a directory every
// file with the source's suffix is read in lexical order and the rows are
// concatenated. Supported formats:
//
//   - CSV: delimited text, plain or gzip-compressed
//   - JSONGzip: gzip JSON arrays of {"fields": {...}} records
//   - XLSX: Excel workbooks (excelize)
//   - Parquet: Apache Parquet files (arrow-go)
//   - Sheets: a Google Sheets range
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

// ErrNoFiles is returned when a source path matches no file
var ErrNoFiles = errors.New("no matching files")

// Source loads a table
type Source interface {
	// Name returns the source type used in logs and errors
	Name() string

	// Load reads the whole table
	Load(ctx context.Context) (*table.Table, error)
}

// fileContent is what a reader extracted from one file
type fileContent struct {
	header []string
	rows   []table.Row
}

// readFunc reads one file
type readFunc func(ctx context.Context, path string) (fileContent, error)

// headerMode tells loadFiles how to combine the headers of several files
type headerMode int

const (
	headerFirst headerMode = iota
	headerUnion
)

// loadFiles discovers the files of a source, reads them in order and
// concatenates the rows
func loadFiles(ctx context.Context, name string, disc *Discovery, path, suffix string, mode headerMode, read readFunc) (*table.Table, error) {
	files, err := disc.FindFiles(path, suffix)
	if err != nil {
		return nil, fmt.Errorf("%s source: %w", name, err)
	}

	var header []string
	var rows []table.Row
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content, err := read(ctx, f.Path)
		if err != nil {
			return nil, fmt.Errorf("%s source: %s: %w", name, f.Name, err)
		}
		switch {
		case i == 0 || len(header) == 0:
			header = content.header
		case mode == headerUnion:
			header = table.UnionColumns(header, content.header...)
		}
		rows = append(rows, content.rows...)
	}

	slog.InfoContext(ctx, "source_loaded",
		slog.String("source", name),
		slog.String("path", path),
		slog.Int("files", len(files)),
		slog.Int("rows", len(rows)))

	return table.New(header, rows)
}

// recordsToRows maps string records onto a header. Short records get an
// explicit null for the missing trailing fields; extra fields are dropped.
func recordsToRows(header []string, records [][]string) []table.Row {
	rows := make([]table.Row, 0, len(records))
	for _, rec := range records {
		r := make(table.Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				r[col] = table.Text(rec[i])
			} else {
				r[col] = table.Null()
			}
		}
		rows = append(rows, r)
	}
	return rows
}

// stripBOM removes a UTF-8 byte order mark from the first header cell
func stripBOM(header []string) []string {
	if len(header) > 0 && len(header[0]) >= 3 && header[0][:3] == "\xef\xbb\xbf" {
		header[0] = header[0][3:]
	}
	return header
}

// newDiscovery returns a discovery rooted at the data directory
func newDiscovery(paths *config.Paths) *Discovery {
	if paths == nil {
		return NewDiscovery("")
	}
	return NewDiscovery(paths.DataDir)
}
