package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabflow/internal/config"
	"tabflow/internal/pipeline"
	"tabflow/internal/sink"
	"tabflow/internal/source"
	"tabflow/internal/table"
	"tabflow/internal/transform"
)

func TestAddressEchelons(t *testing.T) {
	tests := []struct {
		name        string
		address     Address
		region      string
		departement string
		country     string
	}{
		{
			name: "mainland France",
			address: Address{"region": "France métropolitaine", "state": "Hauts-de-France",
				"county": "Somme", "country": "France"},
			region: "Hauts-de-France", departement: "Somme", country: "France",
		},
		{
			name:    "no region",
			address: Address{"state": "Corse", "county": "Haute-Corse", "country": "France"},
			region:  "Corse", departement: "Corse", country: "France",
		},
		{
			name: "overseas",
			address: Address{"region": "La Réunion", "state": "La Réunion",
				"municipality": "Saint-Pierre", "country": "France"},
			region: "La Réunion", departement: "Saint-Pierre", country: "France",
		},
		{
			name:    "empty",
			address: Address{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.region, tt.address.Region())
			assert.Equal(t, tt.departement, tt.address.Departement())
			assert.Equal(t, tt.country, tt.address.Country())
		})
	}
}

func TestParseEchelons(t *testing.T) {
	got := ParseEchelons([]string{"region", "DEPARTEMENT", "commune", " pays ", "Region"})
	assert.Equal(t, []Echelon{EchelonRegion, EchelonDepartement, EchelonPays}, got)
	assert.Empty(t, ParseEchelons(nil))
}

func TestNominatimResolver(t *testing.T) {
	var mu sync.Mutex
	var queries []string
	var agents []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		queries = append(queries, r.URL.RawQuery)
		agents = append(agents, r.Header.Get("User-Agent"))
		mu.Unlock()

		assert.Equal(t, "/reverse", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("lat") == "0" {
			_, _ = w.Write([]byte(`{"error": "Unable to geocode"}`))
			return
		}
		_, _ = w.Write([]byte(`{"place_id": 1, "address": {"state": "Hauts-de-France", "region": "France métropolitaine", "county": "Somme", "country": "France"}}`))
	}))
	defer srv.Close()

	r, err := NewNominatimResolver(config.GeocoderConfig{BaseURL: srv.URL + "/", UserAgent: "tabflow-test"})
	require.NoError(t, err)

	addr, err := r.Resolve(context.Background(), "50.136", "1.834")
	require.NoError(t, err)
	assert.Equal(t, "Somme", addr.Departement())

	_, err = r.Resolve(context.Background(), "0", "0")
	assert.Error(t, err)

	require.Len(t, queries, 2)
	assert.Equal(t, "format=jsonv2&lat=50.136&lon=1.834", queries[0])
	assert.Equal(t, "tabflow-test", agents[0])
}

func TestNominatimResolverErrors(t *testing.T) {
	_, err := NewNominatimResolver(config.GeocoderConfig{})
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	r, err := NewNominatimResolver(config.GeocoderConfig{BaseURL: srv.URL, UserAgent: "ua"})
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), "1", "2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNominatimResolverRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"address": {}}`))
	}))
	defer srv.Close()

	r, err := NewNominatimResolver(config.GeocoderConfig{BaseURL: srv.URL, UserAgent: "ua", Interval: time.Hour})
	require.NoError(t, err)

	_, err = r.Resolve(context.Background(), "1", "2")
	require.NoError(t, err)

	// the second call would wait an hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = r.Resolve(ctx, "1", "2")
	assert.Error(t, err)
}

func fakeResolver(addresses map[string]Address) Resolver {
	return ResolverFunc(func(_ context.Context, lat, lon string) (Address, error) {
		a, ok := addresses[lat+","+lon]
		if !ok {
			return nil, errors.New("unknown place")
		}
		return a, nil
	})
}

func TestEnricherTransform(t *testing.T) {
	resolver := fakeResolver(map[string]Address{
		"50.136,1.834": {"region": "France métropolitaine", "state": "Hauts-de-France", "county": "Somme", "country": "France"},
		"41.918,8.793": {"state": "Corse", "country": "France"},
	})
	e, err := NewEnricher(resolver, "Latitude", "Longitude", []string{"region", "departement", "pays", "canton"})
	require.NoError(t, err)
	assert.Equal(t, "geocode", e.Name())
	assert.Equal(t, []Echelon{EchelonRegion, EchelonDepartement, EchelonPays}, e.Echelons())

	in := table.MustNew([]string{"ID", "Latitude", "Longitude"}, []table.Row{
		{"ID": table.Text("07005"), "Latitude": table.Text("50.136"), "Longitude": table.Text("1.834")},
		{"ID": table.Text("07761"), "Latitude": table.Text("41.918"), "Longitude": table.Text("8.793")},
	})
	out, err := e.Transform(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "Latitude", "Longitude", "Region", "Departement", "Pays"}, out.Columns())
	assert.Equal(t, table.Text("Hauts-de-France"), out.Row(0).Get("Region"))
	assert.Equal(t, table.Text("Somme"), out.Row(0).Get("Departement"))
	assert.Equal(t, table.Text("Corse"), out.Row(1).Get("Departement"))
	assert.False(t, in.Row(0).Has("Region"))

	_, err = e.Transform(context.Background(), table.MustNew([]string{"ID"}, []table.Row{{"ID": table.Text("x")}}))
	assert.ErrorIs(t, err, table.ErrSchema)

	unknown := table.MustNew([]string{"Latitude", "Longitude"}, []table.Row{
		{"Latitude": table.Text("1"), "Longitude": table.Text("1")},
	})
	_, err = e.Transform(context.Background(), unknown)
	assert.Error(t, err)
}

func TestEnricherPipeline(t *testing.T) {
	dir := t.TempDir()
	paths := &config.Paths{DataDir: dir, OutputDir: dir}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "postesSynop.csv"),
		[]byte("ID;Nom;Latitude;Longitude\n07005;ABBEVILLE;50.136;1.834\n"), 0644))

	e, err := NewEnricher(fakeResolver(map[string]Address{
		"50.136,1.834": {"region": "France métropolitaine", "state": "Hauts-de-France", "county": "Somme", "country": "France"},
	}), "Latitude", "Longitude", []string{"Region", "Departement"})
	require.NoError(t, err)

	p, err := pipeline.New("geocode",
		source.NewCSV(paths, "postesSynop.csv", ';'),
		[]transform.Transformer{e},
		sink.NewCSV(paths, "postesSynopAvecRegions.csv", ',', false))
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))

	data, err := os.ReadFile(filepath.Join(dir, "postesSynopAvecRegions.csv"))
	require.NoError(t, err)
	assert.Equal(t, "ID,Nom,Latitude,Longitude,Region,Departement\n07005,ABBEVILLE,50.136,1.834,Hauts-de-France,Somme\n", string(data))
}
