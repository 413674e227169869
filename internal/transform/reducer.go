package transform

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Reducer folds the values of one column of a group into a single number.
// It is never called with an empty slice.
type Reducer func(values []float64) float64

// reducers holds the built-in reducers by name
var reducers = map[string]Reducer{
	"mean":   reduceMean,
	"sum":    reduceSum,
	"min":    reduceMin,
	"max":    reduceMax,
	"median": reduceMedian,
	"count":  reduceCount,
	"stdev":  reduceStdDev,
}

// ReducerNames lists the built-in reducers
func ReducerNames() []string {
	names := make([]string, 0, len(reducers))
	for n := range reducers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseReducer returns the built-in reducer with the given name. The empty
// name selects the arithmetic mean.
func ParseReducer(name string) (Reducer, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return reduceMean, nil
	}
	r, ok := reducers[name]
	if !ok {
		return nil, fmt.Errorf("unknown reducer %q (available: %s)", name, strings.Join(ReducerNames(), ", "))
	}
	return r, nil
}

func reduceSum(values []float64) float64 {
	var s float64
	for _, v := range values {
		s += v
	}
	return s
}

func reduceMean(values []float64) float64 {
	return reduceSum(values) / float64(len(values))
}

func reduceMin(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Min(m, v)
	}
	return m
}

func reduceMax(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		m = math.Max(m, v)
	}
	return m
}

func reduceMedian(values []float64) float64 {
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func reduceCount(values []float64) float64 {
	return float64(len(values))
}

// reduceStdDev is the sample standard deviation; a single value has none
func reduceStdDev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	mean := reduceMean(values)
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return math.Sqrt(ss / float64(len(values)-1))
}
