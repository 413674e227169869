package geocode

import (
	"context"
	"fmt"
	"log/slog"

	"tabflow/internal/infrastructure"
	"tabflow/internal/table"
)

// Enricher appends administrative echelons to a table of places. It
// implements transform.Transformer, so it runs as a pipeline stage.
type Enricher struct {
	resolver Resolver
	lat      string
	lon      string
	echelons []Echelon
	logger   *slog.Logger
}

// NewEnricher creates an enricher reading coordinates from the lat and lon
// columns. Unknown echelon names are ignored.
func NewEnricher(resolver Resolver, lat, lon string, echelons []string) (*Enricher, error) {
	if resolver == nil {
		return nil, fmt.Errorf("geocode: resolver is required")
	}
	if lat == "" || lon == "" {
		return nil, fmt.Errorf("geocode: latitude and longitude columns are required")
	}
	return &Enricher{
		resolver: resolver,
		lat:      lat,
		lon:      lon,
		echelons: ParseEchelons(echelons),
		logger:   infrastructure.WithComponent(nil, "geocode"),
	}, nil
}

// Name returns the operator name
func (e *Enricher) Name() string { return "geocode" }

// Echelons returns the echelons the enricher adds, in column order
func (e *Enricher) Echelons() []Echelon {
	return append([]Echelon(nil), e.echelons...)
}

// Transform resolves every row and sets the echelon columns. Echelons the
// address cannot provide are written as null.
func (e *Enricher) Transform(ctx context.Context, t *table.Table) (*table.Table, error) {
	if err := t.RequireColumn(e.Name(), e.lat); err != nil {
		return nil, err
	}
	if err := t.RequireColumn(e.Name(), e.lon); err != nil {
		return nil, err
	}

	cols := t.Columns()
	for _, ech := range e.echelons {
		cols = table.UnionColumns(cols, string(ech))
	}

	rows := t.CloneRows()
	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lat, lon := r.Get(e.lat), r.Get(e.lon)
		if lat.IsMissing() || lon.IsMissing() {
			return nil, table.NewParseError(e.Name(), e.lat, "", fmt.Errorf("row %d has no coordinates", i))
		}

		addr, err := e.resolver.Resolve(ctx, lat.String(), lon.String())
		if err != nil {
			return nil, fmt.Errorf("geocode row %d: %w", i, err)
		}
		for _, ech := range e.echelons {
			if v, ok := ech.Value(addr); ok {
				r.Set(string(ech), table.Text(v))
			} else {
				r.Set(string(ech), table.Null())
			}
		}
	}

	e.logger.InfoContext(ctx, "places_geocoded",
		slog.Int("rows", len(rows)),
		slog.Int("echelons", len(e.echelons)))

	return table.New(cols, rows)
}
