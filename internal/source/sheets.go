package source

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"tabflow/internal/table"
)

// Sheets reads a range of a Google Sheets spreadsheet. The first row of the
// range is the header. Numeric cells (when the API renders unformatted
// values) become numbers, everything else text.
type Sheets struct {
	SpreadsheetID string
	Range         string

	opts []option.ClientOption
}

// SheetsOptions configures access to the Sheets API
type SheetsOptions struct {
	// CredentialsFile is a service account JSON key file
	CredentialsFile string
	// APIKey may be used instead of credentials for public spreadsheets
	APIKey string
	// ClientOptions are appended as-is (endpoint overrides, HTTP clients)
	ClientOptions []option.ClientOption
}

// NewSheets creates a Google Sheets source
func NewSheets(spreadsheetID, rng string, opts SheetsOptions) (*Sheets, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("sheets source: spreadsheet id is required")
	}
	if rng == "" {
		return nil, fmt.Errorf("sheets source: range is required")
	}

	var clientOpts []option.ClientOption
	switch {
	case opts.CredentialsFile != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.CredentialsFile))
	case opts.APIKey != "":
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)

	return &Sheets{SpreadsheetID: spreadsheetID, Range: rng, opts: clientOpts}, nil
}

// Name returns the source type
func (s *Sheets) Name() string { return "sheets" }

// Load implements Source
func (s *Sheets) Load(ctx context.Context) (*table.Table, error) {
	srv, err := sheets.NewService(ctx, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets source: failed to create service: %w", err)
	}

	resp, err := srv.Spreadsheets.Values.Get(s.SpreadsheetID, s.Range).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets source: failed to read range %s: %w", s.Range, err)
	}

	if len(resp.Values) == 0 {
		return table.New(nil, nil)
	}

	header := make([]string, len(resp.Values[0]))
	for i, cell := range resp.Values[0] {
		header[i] = fmt.Sprint(cell)
	}
	header = stripBOM(header)

	rows := make([]table.Row, 0, len(resp.Values)-1)
	for _, values := range resp.Values[1:] {
		row := make(table.Row, len(header))
		for i, col := range header {
			if i >= len(values) {
				row[col] = table.Null()
				continue
			}
			row[col] = sheetValue(values[i])
		}
		rows = append(rows, row)
	}

	slog.InfoContext(ctx, "source_loaded",
		slog.String("source", s.Name()),
		slog.String("spreadsheet_id", s.SpreadsheetID),
		slog.String("range", s.Range),
		slog.Int("rows", len(rows)))

	return table.New(header, rows)
}

// sheetValue converts a cell decoded from the API response
func sheetValue(cell interface{}) table.Value {
	switch v := cell.(type) {
	case nil:
		return table.Null()
	case float64:
		return table.Number(v)
	case string:
		return table.Text(v)
	default:
		return table.Text(fmt.Sprint(v))
	}
}
