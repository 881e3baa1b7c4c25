// Package stats holds the summary statistics used by the report tables and
// plots.
package stats

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Clean drops NaN values, the marker for a missing error.
func Clean(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// Min returns the smallest non-NaN value, NaN for an empty input.
func Min(xs []float64) float64 {
	xs = Clean(xs)
	if len(xs) == 0 {
		return math.NaN()
	}
	return floats.Min(xs)
}

// Max returns the largest non-NaN value, NaN for an empty input.
func Max(xs []float64) float64 {
	xs = Clean(xs)
	if len(xs) == 0 {
		return math.NaN()
	}
	return floats.Max(xs)
}

// Mean returns the arithmetic mean of the non-NaN values.
func Mean(xs []float64) float64 {
	xs = Clean(xs)
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.Mean(xs, nil)
}

// Variance is the population variance of the non-NaN values.
func Variance(xs []float64) float64 {
	xs = Clean(xs)
	if len(xs) == 0 {
		return math.NaN()
	}
	return stat.PopVariance(xs, nil)
}

// Median returns the middle value, averaging the two middle values of an
// even-length input.
func Median(xs []float64) float64 {
	return Percentile(xs, 50)
}

// Percentile returns the p-th percentile (0..100) interpolating linearly
// between the closest ranks.
func Percentile(xs []float64, p float64) float64 {
	xs = Clean(xs)
	if len(xs) == 0 {
		return math.NaN()
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return percentileSorted(sorted, p)
}

func percentileSorted(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo < 0 {
		return sorted[0]
	}
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// FormatNumber prints errors with two decimals, or four when below one.
func FormatNumber(x float64) string {
	if x > 1 {
		return fmt.Sprintf("%.2f", x)
	}
	return fmt.Sprintf("%.4f", x)
}

// AccumulatedMin returns the running minimum of xs.
func AccumulatedMin(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		if i == 0 || x < out[i-1] {
			out[i] = x
		} else {
			out[i] = out[i-1]
		}
	}
	return out
}

// RollingMean returns the mean over a trailing window. The first window-1
// positions are NaN.
func RollingMean(xs []float64, window int) []float64 {
	return rolling(xs, window, func(w []float64) float64 { return stat.Mean(w, nil) })
}

// RollingMin returns the minimum over a trailing window.
func RollingMin(xs []float64, window int) []float64 {
	return rolling(xs, window, floats.Min)
}

// RollingMax returns the maximum over a trailing window.
func RollingMax(xs []float64, window int) []float64 {
	return rolling(xs, window, floats.Max)
}

func rolling(xs []float64, window int, fn func([]float64) float64) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if window <= 0 || i+1 < window {
			out[i] = math.NaN()
			continue
		}
		out[i] = fn(xs[i+1-window : i+1])
	}
	return out
}
