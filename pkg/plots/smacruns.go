package plots

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/stats"
)

// RollingWindow is the number of consecutive evaluations averaged by the
// rolling SMAC runs plot.
const RollingWindow = 5

func SMACRunsFile(title string) string        { return "smac-runs-" + title + ".individual.png" }
func SMACRunsRollingFile(title string) string { return "smac-runs-" + title + ".rolling.png" }

var band = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0x80}

// SMACRunsRolling draws the rolling mean of every evaluation error, sorted by
// time over all seeds, inside the band between the rolling min and max.
func SMACRunsRolling(points []models.TrajectoryPoint, title string, opts TrajectoryOptions, window int) (*plot.Plot, error) {
	sorted := sortByTime(points)
	x := make([]float64, len(sorted))
	y := make([]float64, len(sorted))
	for i, pt := range sorted {
		x[i] = hours(pt.Time)
		y[i] = opts.value(pt.Error)
	}
	mean := stats.RollingMean(y, window)
	lower := stats.RollingMin(y, window)
	upper := stats.RollingMax(y, window)

	data := xys(x, mean)
	if len(data) == 0 {
		return nil, fmt.Errorf("fewer than %d evaluations for %s", window, title)
	}

	var outline plotter.XYs
	for i := range x {
		if finite(x[i]) && finite(upper[i]) && finite(lower[i]) {
			outline = append(outline, plotter.XY{X: x[i], Y: upper[i]})
		}
	}
	for i := len(x) - 1; i >= 0; i-- {
		if finite(x[i]) && finite(upper[i]) && finite(lower[i]) {
			outline = append(outline, plotter.XY{X: x[i], Y: lower[i]})
		}
	}

	p := newPlot(title, "Time (h)", opts.yLabel())
	poly, err := plotter.NewPolygon(outline)
	if err != nil {
		return nil, err
	}
	poly.Color = band
	poly.LineStyle.Width = 0
	p.Add(poly)

	line, err := plotter.NewLine(data)
	if err != nil {
		return nil, err
	}
	line.LineStyle = draw.LineStyle{Color: red, Width: vg.Points(1)}
	p.Add(line)
	p.Legend.Add("Rolling mean", line)
	opts.limitY(p)
	return p, nil
}
