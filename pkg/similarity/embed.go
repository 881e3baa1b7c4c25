package similarity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/mds"
)

// Position is a 2-D coordinate
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Embedding places every flow on a plane so that Euclidean distances follow
// the configuration distances.
type Embedding struct {
	Positions []Position `json:"positions"`
	// Stress is the sum of squared differences between the original and the
	// embedded distances.
	Stress float64 `json:"stress"`
}

// Embed computes 2-D coordinates for a distance matrix with classical
// (Torgerson) multidimensional scaling.
func Embed(d mat.Symmetric) (*Embedding, error) {
	n := d.SymmetricDim()
	if n == 0 {
		return nil, fmt.Errorf("empty distance matrix")
	}
	if n == 1 || allZero(d) {
		// a single point, or identical flows, all sit at the origin
		return &Embedding{Positions: make([]Position, n)}, nil
	}

	var coords mat.Dense
	k, _ := mds.TorgersonScaling(&coords, nil, d)
	if k == 0 {
		return nil, fmt.Errorf("no positive eigenvalues found in MDS")
	}

	_, cols := coords.Dims()
	e := &Embedding{Positions: make([]Position, n)}
	for i := 0; i < n; i++ {
		e.Positions[i].X = coords.At(i, 0)
		if cols > 1 {
			e.Positions[i].Y = coords.At(i, 1)
		}
	}
	e.Stress = stress(d, e.Positions)
	return e, nil
}

func allZero(d mat.Symmetric) bool {
	n := d.SymmetricDim()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if d.At(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

func stress(d mat.Symmetric, pos []Position) float64 {
	s := 0.0
	for i := range pos {
		for j := i + 1; j < len(pos); j++ {
			dx := pos[i].X - pos[j].X
			dy := pos[i].Y - pos[j].Y
			diff := d.At(i, j) - math.Sqrt(dx*dx+dy*dy)
			s += diff * diff
		}
	}
	return s
}
