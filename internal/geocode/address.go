// Package geocode attaches administrative areas to places from their
// coordinates, using a reverse geocoding service.
package geocode

import (
	"context"
	"strings"
)

// Address holds the address attributes of a place ("state", "county",
// "country", ...). Missing attributes are absent from the map.
type Address map[string]string

// Resolver finds the address of a coordinate pair. Coordinates are passed
// as read from the data, in decimal degrees.
type Resolver interface {
	Resolve(ctx context.Context, lat, lon string) (Address, error)
}

// ResolverFunc adapts a function to Resolver
type ResolverFunc func(ctx context.Context, lat, lon string) (Address, error)

// Resolve implements Resolver
func (f ResolverFunc) Resolve(ctx context.Context, lat, lon string) (Address, error) {
	return f(ctx, lat, lon)
}

// metropolitanFrance is the region Nominatim reports for mainland France,
// where the administrative region is in "state"
const metropolitanFrance = "France métropolitaine"

// Echelon is an administrative level derived from an address
type Echelon string

const (
	EchelonRegion      Echelon = "Region"
	EchelonDepartement Echelon = "Departement"
	EchelonPays        Echelon = "Pays"
)

// ParseEchelons normalizes echelon names: matching is case-insensitive,
// unknown names and duplicates are dropped, order is kept.
func ParseEchelons(names []string) []Echelon {
	var out []Echelon
	seen := make(map[Echelon]bool)
	for _, n := range names {
		e := Echelon(capitalize(strings.TrimSpace(n)))
		switch e {
		case EchelonRegion, EchelonDepartement, EchelonPays:
		default:
			continue
		}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// Value derives the echelon from an address. ok is false when the address
// has no such information.
func (e Echelon) Value(a Address) (string, bool) {
	var v string
	switch e {
	case EchelonRegion:
		v = a.Region()
	case EchelonDepartement:
		v = a.Departement()
	case EchelonPays:
		v = a.Country()
	}
	return v, v != ""
}

// Region returns the administrative region. In mainland France, or when
// no region is given, it is the "state" attribute.
func (a Address) Region() string {
	region, ok := a["region"]
	if !ok || region == metropolitanFrance {
		return a["state"]
	}
	return region
}

// Departement returns the French département: "county" in mainland France,
// "state" without region (Corsica, overseas), "municipality" otherwise.
func (a Address) Departement() string {
	region := a["region"]
	switch {
	case region == metropolitanFrance:
		return a["county"]
	case region == "":
		return a["state"]
	default:
		return a["municipality"]
	}
}

// Country returns the country name
func (a Address) Country() string {
	return a["country"]
}
