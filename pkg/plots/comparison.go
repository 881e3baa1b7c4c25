package plots

import (
	"fmt"
	"image/color"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

// BoxplotGroups collects the errors of results by "strategy-generation".
// Column "error" uses the full CV error when available and the CV error
// otherwise; "test_error" uses the test error.
func BoxplotGroups(results []models.Result, column string) (map[string][]float64, error) {
	var value func(r models.Result) *float64
	switch column {
	case "error":
		value = func(r models.Result) *float64 {
			if r.FullCVError != nil {
				return r.FullCVError
			}
			return r.Error
		}
	case "test_error":
		value = func(r models.Result) *float64 { return r.TestError }
	default:
		return nil, fmt.Errorf("unknown boxplot column %q", column)
	}

	groups := make(map[string][]float64)
	for _, r := range results {
		v := value(r)
		if v == nil || !finite(*v) {
			continue
		}
		key := r.Strategy + "-" + r.Generation
		groups[key] = append(groups[key], *v)
	}
	return groups, nil
}

// Boxplot draws one box per group, in name order.
func Boxplot(dataset string, groups map[string][]float64) (*plot.Plot, error) {
	if len(groups) == 0 {
		return nil, fmt.Errorf("no results for %s", dataset)
	}
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	p := newPlot(dataset, "Strategy", "Error")
	for i, name := range names {
		box, err := plotter.NewBoxPlot(vg.Points(20), float64(i), plotter.Values(groups[name]))
		if err != nil {
			return nil, fmt.Errorf("failed to box %s: %w", name, err)
		}
		p.Add(box)
	}
	p.NominalX(names...)
	return p, nil
}

type strategyStyle struct {
	label string
	glyph draw.GlyphStyle
}

func glyph(c color.Color, shape draw.GlyphDrawer) draw.GlyphStyle {
	return draw.GlyphStyle{Color: c, Radius: vg.Points(3), Shape: shape}
}

// strategyStyles are the markers of the CV vs test comparison, in legend
// order.
var strategyStyles = []struct {
	strategy string
	style    strategyStyle
}{
	{models.StrategyDefault, strategyStyle{"WEKA-DEF", glyph(color.RGBA{R: 0xff, A: 0x80}, draw.CircleGlyph{})}},
	{models.StrategyRandom, strategyStyle{models.StrategyRandom, glyph(color.RGBA{B: 0xff, A: 0x80}, draw.TriangleGlyph{})}},
	{models.StrategySMAC, strategyStyle{models.StrategySMAC, glyph(color.RGBA{R: 0xbf, G: 0xbf, A: 0x80}, draw.PyramidGlyph{})}},
	{models.StrategyTPE, strategyStyle{models.StrategyTPE, glyph(color.RGBA{G: 0x80, A: 0x80}, draw.SquareGlyph{})}},
}

// CVvsTest plots the CV error against the test error of every result, one
// marker per strategy. Results without both errors are skipped.
func CVvsTest(results []models.Result) (*plot.Plot, error) {
	x := make(map[string][]float64)
	y := make(map[string][]float64)
	points := 0
	for _, r := range results {
		if r.Error == nil || r.TestError == nil {
			continue
		}
		x[r.Strategy] = append(x[r.Strategy], *r.Error)
		y[r.Strategy] = append(y[r.Strategy], *r.TestError)
		points++
	}
	if points == 0 {
		return nil, fmt.Errorf("no points with both CV and test error")
	}

	p := newPlot("CV error vs Test error", "% CV error", "% Test error")
	for _, s := range strategyStyles {
		data := xys(x[s.strategy], y[s.strategy])
		if len(data) == 0 {
			continue
		}
		sc, err := plotter.NewScatter(data)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle = s.style.glyph
		p.Add(sc)
		p.Legend.Add(s.style.label, sc)
	}
	if err := addDiagonal(p, 0, 100); err != nil {
		return nil, err
	}
	return p, nil
}

// SeedPair is the full CV error of one seed under both generations.
type SeedPair struct {
	Seed string
	CV   float64
	DPS  float64
}

// PairBySeed matches the CV and DPS results of one strategy by seed. Both
// lists must hold the same seeds.
func PairBySeed(cv, dps []models.Result) ([]SeedPair, error) {
	if len(cv) != len(dps) {
		return nil, fmt.Errorf("different number of seeds: %d CV, %d DPS", len(cv), len(dps))
	}
	bySeed := make(map[string]models.Result, len(dps))
	for _, r := range dps {
		bySeed[r.Seed] = r
	}
	var pairs []SeedPair
	for _, c := range cv {
		d, ok := bySeed[c.Seed]
		if !ok {
			return nil, fmt.Errorf("seed %s has no DPS result", c.Seed)
		}
		if c.FullCVError == nil || d.FullCVError == nil {
			continue
		}
		pairs = append(pairs, SeedPair{Seed: c.Seed, CV: *c.FullCVError, DPS: *d.FullCVError})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Seed < pairs[j].Seed })
	return pairs, nil
}

// CVvsDPS plots the error reached with CV data against the one reached with
// DPS data, both axes on the same range.
func CVvsDPS(dataset, strategy string, pairs []SeedPair) (*plot.Plot, error) {
	x := make([]float64, len(pairs))
	y := make([]float64, len(pairs))
	for i, pr := range pairs {
		x[i], y[i] = pr.CV, pr.DPS
	}
	data := xys(x, y)
	if len(data) == 0 {
		return nil, fmt.Errorf("no paired results for %s / %s", dataset, strategy)
	}

	p := newPlot(dataset+" / "+strategy, "RMSE on CV", "RMSE on DPS")
	sc, err := plotter.NewScatter(data)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle = glyph(color.RGBA{B: 0xff, A: 0xff}, draw.CircleGlyph{})
	p.Add(sc)

	xmin, xmax, ymin, ymax := plotter.XYRange(data)
	min, max := math.Min(xmin, ymin), math.Max(xmax, ymax)
	if min == max {
		min, max = min-1, max+1
	}
	if err := addDiagonal(p, min, max); err != nil {
		return nil, err
	}
	return p, nil
}
