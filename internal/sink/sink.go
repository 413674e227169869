// Package sink writes tables to files.
//
// Every sink writes the header in table column order. Relative paths are
// resolved against the configured output directory and parent directories
// are created as needed.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

// Sink writes a table
type Sink interface {
	// Name returns the sink type used in logs and errors
	Name() string

	// Export writes the whole table
	Export(ctx context.Context, t *table.Table) error
}

// outputPath resolves path against the output directory
func outputPath(paths *config.Paths, path string) string {
	if paths == nil {
		return path
	}
	return paths.Output(path)
}

// createFile creates the file at fullPath, truncating it, after making
// sure its directory exists
func createFile(fullPath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return file, nil
}

func logExport(ctx context.Context, name, fullPath string, t *table.Table) {
	slog.InfoContext(ctx, "sink_exported",
		slog.String("sink", name),
		slog.String("full_path", fullPath),
		slog.Int("record_count", t.Len()),
		slog.Int("column_count", len(t.Columns())))
}
