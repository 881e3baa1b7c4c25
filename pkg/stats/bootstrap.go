package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Bootstrap defaults of the index tables: the best of four runs, resampled
// 100k times.
const (
	DefaultBestOf     = 4
	DefaultIterations = 100000
)

// IntNer is the part of *rand.Rand the bootstrap needs.
type IntNer interface {
	IntN(n int) int
}

// Estimate is a bootstrapped statistic with the width of its 95% interval.
type Estimate struct {
	Mean float64 `json:"mean"`
	CI   float64 `json:"ci"`
}

// BootstrapBestOf estimates the expected minimum of k runs drawn with
// replacement from values. CI is the distance between the 2.5th and 97.5th
// percentiles of the resampled minima. NaN values are ignored; an empty input
// gives NaN.
func BootstrapBestOf(values []float64, k, iterations int, rng IntNer) Estimate {
	values = Clean(values)
	if len(values) == 0 || k <= 0 || iterations <= 0 {
		return Estimate{Mean: math.NaN(), CI: math.NaN()}
	}

	minima := make([]float64, iterations)
	for i := range minima {
		best := math.Inf(1)
		for j := 0; j < k; j++ {
			if v := values[rng.IntN(len(values))]; v < best {
				best = v
			}
		}
		minima[i] = best
	}

	mean := stat.Mean(minima, nil)
	sort.Float64s(minima)
	return Estimate{
		Mean: mean,
		CI:   percentileSorted(minima, 97.5) - percentileSorted(minima, 2.5),
	}
}
