// Package estimator computes first and second moments of table columns.
//
// Results are rounded to three decimal places so that exported reports stay
// stable across platforms.
package estimator

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"tabflow/internal/table"
)

// Precision is the number of decimal places kept by Mean and StdDev
const Precision = 3

// Mean returns the arithmetic mean of a column over the rows carrying a
// non-null value
func Mean(t *table.Table, column string) (float64, error) {
	return MeanRows(t.Rows(), column)
}

// StdDev returns the sample standard deviation (n-1) of a column
func StdDev(t *table.Table, column string) (float64, error) {
	return StdDevRows(t.Rows(), column)
}

// MeanRows is Mean over a slice of rows
func MeanRows(rows []table.Row, column string) (float64, error) {
	vals, err := values(rows, column, "mean")
	if err != nil {
		return 0, err
	}
	if len(vals) == 0 {
		return 0, table.NewDegenerateError("mean", column, "no values to average")
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return Round(sum / float64(len(vals))), nil
}

// StdDevRows is StdDev over a slice of rows
func StdDevRows(rows []table.Row, column string) (float64, error) {
	vals, err := values(rows, column, "stdev")
	if err != nil {
		return 0, err
	}
	if len(vals) <= 1 {
		return 0, table.NewDegenerateError("stdev", column, "at least two values are required")
	}
	mean, err := MeanRows(rows, column)
	if err != nil {
		return 0, err
	}
	var ss float64
	for _, v := range vals {
		ss += (v - mean) * (v - mean)
	}
	return Round(math.Sqrt(ss / float64(len(vals)-1))), nil
}

// Round rounds the exact binary value of f half to even at Precision
// decimal places, so 0.1235 (stored just below the half) gives 0.123. NaN
// and infinities are returned unchanged.
func Round(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return f
	}
	r, _ := exactDecimal(f).RoundBank(Precision).Float64()
	return r
}

// exactDecimal expands a finite float without loss: its denominator is a
// power of two 2^k, and n/2^k = n*5^k/10^k.
func exactDecimal(f float64) decimal.Decimal {
	rat := new(big.Rat).SetFloat64(f)
	k := rat.Denom().BitLen() - 1
	scale := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(k)), nil)
	return decimal.NewFromBigInt(new(big.Int).Mul(rat.Num(), scale), int32(-k))
}

// values collects the numeric values of a column, skipping missing ones
func values(rows []table.Row, column, operator string) ([]float64, error) {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		v := r.Get(column)
		if v.IsMissing() {
			continue
		}
		f, err := v.Float()
		if err != nil {
			return nil, table.NewParseError(operator, column, v.String(), err)
		}
		out = append(out, f)
	}
	return out, nil
}
