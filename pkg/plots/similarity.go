package plots

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/similarity"
)

// Dendrogram draws a dendrogram layout with labels[leaf] under every leaf.
func Dendrogram(layout similarity.DendrogramLayout, labels []string, title string) (*plot.Plot, error) {
	p := newPlot(title, "", "Distance")
	style := draw.LineStyle{Color: color.Black, Width: vg.Points(1)}
	for _, link := range layout.Links {
		pts := make(plotter.XYs, 4)
		for i := range pts {
			pts[i] = plotter.XY{X: link.X[i], Y: link.Y[i]}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, err
		}
		line.LineStyle = style
		p.Add(line)
	}

	ticks := make(plot.ConstantTicks, len(layout.Leaves))
	for i, leaf := range layout.Leaves {
		label := fmt.Sprint(leaf)
		if leaf < len(labels) {
			label = labels[leaf]
		}
		ticks[i] = plot.Tick{Value: 5 + 10*float64(i), Label: label}
	}
	p.X.Tick.Marker = ticks
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter
	p.X.Min = 0
	p.X.Max = 10 * float64(len(layout.Leaves))
	p.Y.Min = 0
	return p, nil
}

// upperTriangle shows the entries on and above the diagonal of a symmetric
// matrix. Column c of the grid is matrix column c, row r is matrix row r.
type upperTriangle struct{ m mat.Symmetric }

func (u upperTriangle) Dims() (c, r int) {
	n := u.m.SymmetricDim()
	return n, n
}

func (u upperTriangle) Z(c, r int) float64 {
	if r > c {
		return math.NaN()
	}
	return u.m.At(r, c)
}

func (u upperTriangle) X(c int) float64 { return float64(c) }
func (u upperTriangle) Y(r int) float64 { return float64(r) }

// SimilarityMatrix draws the upper triangle of a [0, 1] similarity matrix as
// a ten-color heat map.
func SimilarityMatrix(m mat.Symmetric, title string) (*plot.Plot, error) {
	if m.SymmetricDim() == 0 {
		return nil, fmt.Errorf("empty matrix for %s", title)
	}
	p := newPlot(title, "Batch", "Batch")
	h := plotter.NewHeatMap(upperTriangle{m}, palette.Rainbow(10, palette.Blue, palette.Red, 1, 1, 1))
	h.Min, h.Max = 0, 1
	h.NaN = color.White
	p.Add(h)
	p.Add(plotter.NewGrid())
	return p, nil
}

// DistancePoint is one experiment in the dissimilarity plot.
type DistancePoint struct {
	Key models.ExperimentKey
	// Dissimilarity is the mean configuration distance of its runs,
	// Variance the mean error distance.
	Dissimilarity float64
	Variance      float64
}

var distanceGlyphs = map[string]draw.GlyphDrawer{
	models.StrategyRandom: draw.TriangleGlyph{},
	models.StrategySMAC:   draw.CircleGlyph{},
	models.StrategyTPE:    draw.PlusGlyph{},
}

// Distances plots error variance against configuration dissimilarity with
// one marker shape per strategy and one color per dataset, datasets taking
// their color from their position in datasets.
func Distances(points []DistancePoint, datasets []string) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no distances to plot")
	}
	index := make(map[string]int, len(datasets))
	for i, d := range datasets {
		index[d] = i
	}
	spread := math.Max(float64(len(datasets)), 25)

	p := newPlot("error variance vs configuration dissimilarity", "MCPS dissimilarity", "Error variance")
	for _, pt := range points {
		if !finite(pt.Dissimilarity) || !finite(pt.Variance) {
			continue
		}
		sc, err := plotter.NewScatter(plotter.XYs{{X: pt.Dissimilarity, Y: pt.Variance}})
		if err != nil {
			return nil, err
		}
		shape, ok := distanceGlyphs[strings.ToUpper(pt.Key.Strategy)]
		if !ok {
			shape = draw.CrossGlyph{}
		}
		sc.GlyphStyle = draw.GlyphStyle{
			Color:  hsv(float64(index[pt.Key.Dataset])/spread, 0.75),
			Radius: vg.Points(3),
			Shape:  shape,
		}
		p.Add(sc)
	}
	return p, nil
}
