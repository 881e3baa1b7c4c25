package plots

import (
	"fmt"
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/gilchrisn/mcps-experiments/pkg/stats"
)

// readPredictions reads the actual and predicted values of a Weka
// predictions CSV, NaN where a value is not a number.
func readPredictions(path string) (targets, predictions []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open predictions: %w", err)
	}
	defer f.Close()

	preds, err := stats.ReadPredictions(f)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return stats.NumericColumn(preds, false), stats.NumericColumn(preds, true), nil
}

// Signal is the target and predicted series of the training data followed by
// the test data.
type Signal struct {
	Targets     []float64
	Predictions []float64
	// Limit is the index of the first test instance.
	Limit int
}

// ReadSignal joins the training and test predictions of one run.
func ReadSignal(trainingPath, testPath string) (Signal, error) {
	trainT, trainP, err := readPredictions(trainingPath)
	if err != nil {
		return Signal{}, err
	}
	testT, testP, err := readPredictions(testPath)
	if err != nil {
		return Signal{}, err
	}
	return Signal{
		Targets:     append(trainT, testT...),
		Predictions: append(trainP, testP...),
		Limit:       len(trainT),
	}, nil
}

func series(values []float64) plotter.XYs {
	x := make([]float64, len(values))
	for i := range x {
		x[i] = float64(i)
	}
	return xys(x, values)
}

// SignalPlot draws targets and predictions against the instance index with a
// dashed red line where the test data starts.
func SignalPlot(s Signal, title string) (*plot.Plot, error) {
	targets, predictions := series(s.Targets), series(s.Predictions)
	if len(targets) == 0 && len(predictions) == 0 {
		return nil, fmt.Errorf("no values to plot for %s", title)
	}

	p := newPlot(title, "", "")
	colors := []color.Color{color.RGBA{B: 0xb4, G: 0x77, R: 0x1f, A: 0xff}, color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}}
	for i, data := range []plotter.XYs{targets, predictions} {
		if len(data) == 0 {
			continue
		}
		line, err := plotter.NewLine(data)
		if err != nil {
			return nil, err
		}
		line.LineStyle = draw.LineStyle{Color: colors[i], Width: vg.Points(1)}
		p.Add(line)
	}

	all := append(append(plotter.XYs{}, targets...), predictions...)
	_, _, ymin, ymax := plotter.XYRange(all)
	limit, err := plotter.NewLine(plotter.XYs{{X: float64(s.Limit), Y: ymin}, {X: float64(s.Limit), Y: ymax}})
	if err != nil {
		return nil, err
	}
	limit.LineStyle = draw.LineStyle{Color: red, Width: vg.Points(1), Dashes: []vg.Length{vg.Points(4), vg.Points(4)}}
	p.Add(limit)

	p.X.Min, p.X.Max = 0, float64(len(s.Targets))
	return p, nil
}

// Scores draws the scores reported by the Auto-WEKA subprocess wrapper
// against the accumulated evaluation time.
func Scores(times, scores []float64, title string) (*plot.Plot, error) {
	cum := make([]float64, len(times))
	total := 0.0
	for i, t := range times {
		total += t
		cum[i] = total
	}
	data := xys(cum, scores)
	if len(data) == 0 {
		return nil, fmt.Errorf("no scores for %s", title)
	}

	p := newPlot(title, "Time (s)", "Score")
	line, sc, err := plotter.NewLinePoints(data)
	if err != nil {
		return nil, err
	}
	line.LineStyle = draw.LineStyle{Color: gray, Width: vg.Points(0.5)}
	sc.GlyphStyle = glyph(red, draw.CircleGlyph{})
	p.Add(line, sc)
	return p, nil
}
