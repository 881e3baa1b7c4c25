// Package plots draws the experiment figures. Every figure is returned as a
// *plot.Plot and written with Save, whose file extension (.png, .svg, .pdf)
// selects the output format.
package plots

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Figure size used by Save.
var (
	Width  = 8 * vg.Inch
	Height = 6 * vg.Inch
)

// Save writes p to path, creating the parent directory.
func Save(p *plot.Plot, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create plot directory: %w", err)
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// Output file names, relative to the plots directory.
func TrajectoryScatterFile(title string) string    { return "trajectories-" + title + ".scatter.png" }
func TrajectoryAggregatedFile(title string) string { return "trajectories-" + title + ".aggregated.png" }
func CVvsDPSFile(dataset, strategy string) string  { return "comparison." + dataset + "." + strategy + ".png" }
func SignalFile(title string) string               { return "signal." + title + ".png" }
func ScoresFile(title string) string               { return "scores." + title + ".png" }

const CVvsTestFile = "comparison-cv-test.png"

var (
	gray     = color.Gray{Y: 0x4d}
	red      = color.RGBA{R: 0xff, A: 0xff}
	diagonal = draw.LineStyle{Color: gray, Width: vg.Points(1), Dashes: []vg.Length{vg.Points(4), vg.Points(4)}}
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// xys keeps the points where both coordinates are finite.
func xys(x, y []float64) plotter.XYs {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	out := make(plotter.XYs, 0, n)
	for i := 0; i < n; i++ {
		if finite(x[i]) && finite(y[i]) {
			out = append(out, plotter.XY{X: x[i], Y: y[i]})
		}
	}
	return out
}

// hsv picks the color at fraction f of the hue circle, like matplotlib's hsv
// color map.
func hsv(f, alpha float64) color.Color {
	f = math.Mod(f, 1)
	if f < 0 {
		f++
	}
	return palette.HSVA{H: f, S: 1, V: 1, A: alpha}
}

// newPlot returns a plot with its title and axis labels set.
func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	return p
}

// addDiagonal draws a dashed y = x line over [min, max] and fixes both axes to
// that range.
func addDiagonal(p *plot.Plot, min, max float64) error {
	line, err := plotter.NewLine(plotter.XYs{{X: min, Y: min}, {X: max, Y: max}})
	if err != nil {
		return err
	}
	line.LineStyle = diagonal
	p.Add(line)
	p.X.Min, p.X.Max = min, max
	p.Y.Min, p.Y.Max = min, max
	return nil
}
