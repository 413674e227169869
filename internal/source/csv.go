package source

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"tabflow/internal/config"
	"tabflow/internal/table"
)

// DefaultSeparator is the field separator of the data files
const DefaultSeparator = ';'

// CSV reads delimited text files, plain (.csv) or gzip-compressed (.csv.gz).
// Every value is loaded as text.
type CSV struct {
	Path       string
	Separator  rune
	Compressed bool

	discovery *Discovery
}

// NewCSV creates a plain delimited text source. A zero separator selects
// DefaultSeparator.
func NewCSV(paths *config.Paths, path string, sep rune) *CSV {
	if sep == 0 {
		sep = DefaultSeparator
	}
	return &CSV{Path: path, Separator: sep, discovery: newDiscovery(paths)}
}

// NewCSVGzip creates a gzip-compressed delimited text source
func NewCSVGzip(paths *config.Paths, path string, sep rune) *CSV {
	c := NewCSV(paths, path, sep)
	c.Compressed = true
	return c
}

// Name returns the source type
func (c *CSV) Name() string {
	if c.Compressed {
		return "csv.gz"
	}
	return "csv"
}

// Load implements Source
func (c *CSV) Load(ctx context.Context) (*table.Table, error) {
	return loadFiles(ctx, c.Name(), c.discovery, c.Path, "."+c.Name(), headerFirst, c.readFile)
}

func (c *CSV) readFile(_ context.Context, path string) (fileContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return fileContent{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if c.Compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fileContent{}, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return readDelimited(r, c.Separator)
}

// readDelimited parses a header line followed by records
func readDelimited(r io.Reader, sep rune) (fileContent, error) {
	reader := csv.NewReader(r)
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return fileContent{}, nil
	}
	if err != nil {
		return fileContent{}, fmt.Errorf("failed to read header: %w", err)
	}
	header = stripBOM(header)

	records, err := reader.ReadAll()
	if err != nil {
		return fileContent{}, fmt.Errorf("failed to read records: %w", err)
	}
	return fileContent{header: header, rows: recordsToRows(header, records)}, nil
}
