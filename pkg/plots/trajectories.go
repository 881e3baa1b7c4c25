package plots

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/stats"
)

// TrajectoryOptions controls how errors are drawn.
type TrajectoryOptions struct {
	// Regression plots log10(RMSE); classification plots the % error on a
	// fixed 0..100 axis.
	Regression bool
	// NumberSeeds spreads the seed colors over the hue circle.
	NumberSeeds int
}

func (o TrajectoryOptions) yLabel() string {
	if o.Regression {
		return "log(RMSE)"
	}
	return "% class. error"
}

func (o TrajectoryOptions) value(err float64) float64 {
	if o.Regression {
		return math.Log10(err)
	}
	return err
}

func (o TrajectoryOptions) limitY(p *plot.Plot) {
	if !o.Regression {
		p.Y.Min, p.Y.Max = 0, 100
	}
}

func hours(seconds float64) float64 { return seconds / 60 / 60 }

// TrajectoriesScatter draws the incumbents of every seed over time, one color
// per seed.
func TrajectoriesScatter(points []models.TrajectoryPoint, title string, opts TrajectoryOptions) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no trajectory points for %s", title)
	}
	bySeed := make(map[string][]models.TrajectoryPoint)
	var seeds []string
	for _, pt := range points {
		if _, ok := bySeed[pt.Seed]; !ok {
			seeds = append(seeds, pt.Seed)
		}
		bySeed[pt.Seed] = append(bySeed[pt.Seed], pt)
	}
	sort.Strings(seeds)

	n := opts.NumberSeeds
	if n <= 0 {
		n = len(seeds)
	}

	p := newPlot(title, "Time (h)", opts.yLabel())
	for i, seed := range seeds {
		pts := bySeed[seed]
		sort.SliceStable(pts, func(a, b int) bool { return pts[a].Time < pts[b].Time })
		x := make([]float64, len(pts))
		y := make([]float64, len(pts))
		for j, pt := range pts {
			x[j] = hours(pt.Time)
			y[j] = opts.value(pt.Error)
		}
		data := xys(x, y)
		if len(data) == 0 {
			continue
		}

		index := float64(i)
		if v, err := strconv.Atoi(seed); err == nil {
			index = float64(v)
		}
		c := hsv(index/float64(n), 0.75)

		line, scatter, err := plotter.NewLinePoints(data)
		if err != nil {
			return nil, err
		}
		line.LineStyle = draw.LineStyle{Color: c, Width: vg.Points(0.5)}
		scatter.GlyphStyle = draw.GlyphStyle{Color: c, Radius: vg.Points(2.5), Shape: draw.CircleGlyph{}}
		p.Add(line, scatter)
	}
	opts.limitY(p)
	return p, nil
}

// AccumulatedMin sorts points by time and returns, for each, the lowest error
// seen so far over all seeds.
func AccumulatedMin(points []models.TrajectoryPoint) (times, errors []float64) {
	sorted := sortByTime(points)
	times = make([]float64, len(sorted))
	errors = make([]float64, len(sorted))
	for i, pt := range sorted {
		times[i], errors[i] = pt.Time, pt.Error
	}
	return times, stats.AccumulatedMin(errors)
}

func sortByTime(points []models.TrajectoryPoint) []models.TrajectoryPoint {
	sorted := append([]models.TrajectoryPoint(nil), points...)
	sort.SliceStable(sorted, func(a, b int) bool { return sorted[a].Time < sorted[b].Time })
	return sorted
}

// TrajectoriesAggregated draws the accumulated minimum error of all seeds
// over time.
func TrajectoriesAggregated(points []models.TrajectoryPoint, title string, opts TrajectoryOptions) (*plot.Plot, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("no trajectory points for %s", title)
	}
	times, errs := AccumulatedMin(points)
	x := make([]float64, len(times))
	y := make([]float64, len(errs))
	for i := range times {
		x[i] = hours(times[i])
		y[i] = opts.value(errs[i])
	}

	data := xys(x, y)
	if len(data) == 0 {
		return nil, fmt.Errorf("no finite errors for %s", title)
	}

	p := newPlot(title, "Time (h)", opts.yLabel())
	line, err := plotter.NewLine(data)
	if err != nil {
		return nil, err
	}
	line.LineStyle = draw.LineStyle{Color: red, Width: vg.Points(1)}
	p.Add(line)
	p.Legend.Add("Accumulated min", line)
	opts.limitY(p)
	return p, nil
}
