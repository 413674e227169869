package transform

import (
	"context"
	"fmt"
	"time"

	"tabflow/internal/table"
)

// DateWindow keeps the rows whose date column lies between Start and End,
// both inclusive
type DateWindow struct {
	column     string
	start, end time.Time
}

// NewDateWindow parses the ISO-8601 bounds of a date window
func NewDateWindow(column, start, end string) (*DateWindow, error) {
	if column == "" {
		return nil, fmt.Errorf("date_window: column is required")
	}
	s, err := table.ParseDate(start)
	if err != nil {
		return nil, table.NewParseError("date_window", column, start, err)
	}
	e, err := table.ParseDate(end)
	if err != nil {
		return nil, table.NewParseError("date_window", column, end, err)
	}
	if e.Before(s) {
		return nil, fmt.Errorf("date_window: end %s is before start %s", end, start)
	}
	return &DateWindow{column: column, start: s, end: e}, nil
}

// Name returns the operator name
func (w *DateWindow) Name() string { return "date_window" }

// Transform implements Transformer
func (w *DateWindow) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	if err := t.RequireColumn(w.Name(), w.column); err != nil {
		return nil, err
	}
	var rows []table.Row
	for _, r := range t.Rows() {
		v := r.Get(w.column)
		d, err := table.ParseDate(v.String())
		if err != nil {
			return nil, table.NewParseError(w.Name(), w.column, v.String(), err)
		}
		if d.Before(w.start) || d.After(w.end) {
			continue
		}
		rows = append(rows, r.Clone())
	}
	return table.New(t.Columns(), rows)
}

// DateFormat pairs a column with the strftime-style layout its values use
type DateFormat struct {
	Column string
	Format string

	layout string
}

// FormatDate rewrites date columns into the naive ISO layout
// "YYYY-MM-DD HH:MM:SS". Time zone offsets are dropped without conversion.
// Missing values are left untouched.
type FormatDate struct {
	formats []DateFormat
}

// NewFormatDate validates every layout
func NewFormatDate(formats ...DateFormat) (*FormatDate, error) {
	if len(formats) == 0 {
		return nil, fmt.Errorf("format_date: at least one column is required")
	}
	parsed := make([]DateFormat, len(formats))
	for i, f := range formats {
		if f.Column == "" {
			return nil, fmt.Errorf("format_date: column %d has no name", i)
		}
		layout, err := table.ConvertStrftime(f.Format)
		if err != nil {
			return nil, fmt.Errorf("format_date: column %q: %w", f.Column, err)
		}
		f.layout = layout
		parsed[i] = f
	}
	return &FormatDate{formats: parsed}, nil
}

// Name returns the operator name
func (f *FormatDate) Name() string { return "format_date" }

// Transform implements Transformer
func (f *FormatDate) Transform(_ context.Context, t *table.Table) (*table.Table, error) {
	for _, df := range f.formats {
		if err := t.RequireColumn(f.Name(), df.Column); err != nil {
			return nil, err
		}
	}
	rows := t.CloneRows()
	for _, r := range rows {
		for _, df := range f.formats {
			v := r.Get(df.Column)
			if v.IsMissing() {
				continue
			}
			d, err := time.Parse(df.layout, v.String())
			if err != nil {
				return nil, table.NewParseError(f.Name(), df.Column, v.String(), err)
			}
			r.Set(df.Column, table.Text(d.Format(table.DateLayout)))
		}
	}
	return table.New(t.Columns(), rows)
}
