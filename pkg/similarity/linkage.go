package similarity

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Method is the cluster distance update rule of Linkage.
type Method string

const (
	Single   Method = "single"
	Complete Method = "complete"
	Average  Method = "average"
)

// ParseMethod validates a linkage method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case Single, Complete, Average:
		return m, nil
	}
	return "", fmt.Errorf("unknown linkage method %q", s)
}

// Merge joins clusters A and B at Distance into a cluster of Size leaves.
// Leaves are numbered 0..n-1 and the cluster formed by the i-th merge is
// n+i.
type Merge struct {
	A        int     `json:"a"`
	B        int     `json:"b"`
	Distance float64 `json:"distance"`
	Size     int     `json:"size"`
}

// Linkage is the n-1 merges of an agglomerative clustering.
type Linkage []Merge

// Leaves returns the number of clustered observations.
func (z Linkage) Leaves() int {
	return len(z) + 1
}

// Cluster runs agglomerative hierarchical clustering on the distance matrix
// d. Each step merges the closest pair of clusters, the earliest pair on
// ties, and lists the smaller cluster id first.
func Cluster(d mat.Symmetric, method Method) (Linkage, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	n := d.SymmetricDim()
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 observations to cluster, got %d", n)
	}

	// dist holds the current cluster distances; ids and sizes track the
	// clusters still active at each slot.
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			dist[i][j] = d.At(i, j)
		}
	}
	ids := make([]int, n)
	sizes := make([]int, n)
	active := make([]bool, n)
	for i := range ids {
		ids[i] = i
		sizes[i] = 1
		active[i] = true
	}

	z := make(Linkage, 0, n-1)
	for step := 0; step < n-1; step++ {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if active[j] && dist[i][j] < best {
					best, bi, bj = dist[i][j], i, j
				}
			}
		}
		if bi < 0 {
			// only infinite or NaN distances remain
			return nil, fmt.Errorf("distance matrix has no finite distance at step %d", step)
		}

		a, b := ids[bi], ids[bj]
		if a > b {
			a, b = b, a
		}
		size := sizes[bi] + sizes[bj]
		z = append(z, Merge{A: a, B: b, Distance: best, Size: size})

		for k := 0; k < n; k++ {
			if !active[k] || k == bi || k == bj {
				continue
			}
			var v float64
			switch method {
			case Single:
				v = math.Min(dist[bi][k], dist[bj][k])
			case Complete:
				v = math.Max(dist[bi][k], dist[bj][k])
			case Average:
				v = (float64(sizes[bi])*dist[bi][k] + float64(sizes[bj])*dist[bj][k]) / float64(size)
			}
			dist[bi][k], dist[k][bi] = v, v
		}
		active[bj] = false
		ids[bi] = n + step
		sizes[bi] = size
	}
	return z, nil
}

// Link is one inverted-U segment of a dendrogram, drawn through the four
// points (X[i], Y[i]).
type Link struct {
	X [4]float64 `json:"x"`
	Y [4]float64 `json:"y"`
}

// DendrogramLayout places the leaves of a linkage along the x axis.
type DendrogramLayout struct {
	// Leaves is the observation shown at each position, left to right.
	Leaves []int `json:"leaves"`
	// Links are in merge order.
	Links []Link `json:"links"`
}

// Dendrogram lays out z with leaf i of Leaves at x = 5 + 10*i, link heights
// at the merge distance.
func Dendrogram(z Linkage) DendrogramLayout {
	n := z.Leaves()
	layout := DendrogramLayout{Links: make([]Link, len(z))}
	if len(z) == 0 {
		layout.Leaves = []int{0}
		return layout
	}

	var order func(id int)
	order = func(id int) {
		if id < n {
			layout.Leaves = append(layout.Leaves, id)
			return
		}
		m := z[id-n]
		order(m.A)
		order(m.B)
	}
	order(n + len(z) - 1)

	x := make(map[int]float64, 2*n)
	for pos, leaf := range layout.Leaves {
		x[leaf] = 5 + 10*float64(pos)
	}
	height := func(id int) float64 {
		if id < n {
			return 0
		}
		return z[id-n].Distance
	}
	for i, m := range z {
		xa, xb := x[m.A], x[m.B]
		layout.Links[i] = Link{
			X: [4]float64{xa, xa, xb, xb},
			Y: [4]float64{height(m.A), m.Distance, m.Distance, height(m.B)},
		}
		x[n+i] = (xa + xb) / 2
	}
	return layout
}
