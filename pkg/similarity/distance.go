// Package similarity compares MCPS flows and clusters them by configuration
// and by error.
package similarity

import (
	"fmt"
	"io"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Weights of the flow columns: missing values, outliers, transformation,
// dimensionality reduction, sampling, predictor and meta. Columns past the
// end (extra ensemble predictors) weigh 1.
var Weights = []float64{1, 1, 1, 1, 1, 2, 1.5}

func weight(k int) float64 {
	if k < len(Weights) {
		return Weights[k]
	}
	return 1
}

// match returns the weight of the columns a and b agree on and the total
// weight of the columns either of them has.
func match(a, b []string) (same, total float64) {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for k := 0; k < n; k++ {
		w := weight(k)
		total += w
		if k < len(a) && k < len(b) && a[k] == b[k] {
			same += w
		}
	}
	return same, total
}

// ConfigurationDistance returns the weighted dissimilarity of every pair of
// flows: 1 minus the weight of the matching columns over the total weight.
// The matrix is symmetric with a zero diagonal and values in [0, 1].
func ConfigurationDistance(flows [][]string) *mat.SymDense {
	n := len(flows)
	if n == 0 {
		return &mat.SymDense{}
	}
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			same, total := match(flows[i], flows[j])
			v := 0.0
			if total > 0 {
				v = 1 - same/total
			}
			d.SetSym(i, j, v)
		}
	}
	return d
}

// ConfigurationSimilarity is 1 - ConfigurationDistance.
func ConfigurationSimilarity(flows [][]string) *mat.SymDense {
	n := len(flows)
	if n == 0 {
		return &mat.SymDense{}
	}
	d := ConfigurationDistance(flows)
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, 1-d.At(i, j))
		}
	}
	return s
}

// ErrorDistance returns |e_i - e_j| for every pair of errors.
func ErrorDistance(errors []float64) *mat.SymDense {
	n := len(errors)
	if n == 0 {
		return &mat.SymDense{}
	}
	d := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, math.Abs(errors[i]-errors[j]))
		}
	}
	return d
}

// MeanDistance averages a distance matrix over its n*n cells, counting each
// pair once: (sum / 2) / (n*n / 2).
func MeanDistance(m mat.Symmetric) float64 {
	n := m.SymmetricDim()
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sum += m.At(i, j)
		}
	}
	return (sum / 2) / (float64(n*n) / 2)
}

// AverageSimilarity is the unweighted mean fraction of equal columns over
// every pair of flows, relative to the width of the first flow.
func AverageSimilarity(flows [][]string) float64 {
	if len(flows) < 2 {
		return 0
	}
	columns := len(flows[0])
	if columns == 0 {
		return 0
	}
	var sims []float64
	for i := 0; i < len(flows); i++ {
		for j := i + 1; j < len(flows); j++ {
			same := 0
			for k := 0; k < columns && k < len(flows[i]) && k < len(flows[j]); k++ {
				if flows[i][k] == flows[j][k] {
					same++
				}
			}
			sims = append(sims, float64(same)/float64(columns))
		}
	}
	return floats.Sum(sims) / float64(len(sims))
}

// WriteCSV writes m as comma separated rows with six decimals.
func WriteCSV(w io.Writer, m mat.Matrix) error {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		cells := make([]string, c)
		for j := 0; j < c; j++ {
			cells[j] = fmt.Sprintf("%.6f", m.At(i, j))
		}
		if _, err := fmt.Fprintln(w, strings.Join(cells, ",")); err != nil {
			return err
		}
	}
	return nil
}
