package report

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/stats"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
)

// Format selects how index tables are written.
type Format string

const (
	FormatHTML      Format = "html"
	FormatLatexCV   Format = "latex_cv"
	FormatLatexTest Format = "latex_test"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatHTML, FormatLatexCV, FormatLatexTest:
		return f, nil
	}
	return "", fmt.Errorf("unknown table format %q", s)
}

// IndexStrategies are the columns of the index tables, in order.
var IndexStrategies = []string{models.StrategyDefault, models.StrategyRandom, models.StrategySMAC, models.StrategyTPE}

// StrategyHeader is the column title of a strategy.
func StrategyHeader(strategy string) string {
	if strategy == models.StrategyDefault {
		return "WEKA-DEF"
	}
	return strategy
}

func headers() []string {
	h := make([]string, len(IndexStrategies))
	for i, s := range IndexStrategies {
		h[i] = StrategyHeader(s)
	}
	return h
}

type cell struct {
	Text string
	Bold bool
	CI   string
}

type indexRow struct {
	Dataset string
	Cells   []cell
}

const missing = "-"

func valueCell(v *float64) cell {
	if v == nil || math.IsNaN(*v) {
		return cell{Text: missing}
	}
	return cell{Text: stats.FormatNumber(*v)}
}

// boldMin marks the cell holding the lowest of values; nil values never win.
func boldMin(cells []cell, values []*float64, index func(i int) int) {
	best := -1
	for i, v := range values {
		if v == nil || math.IsNaN(*v) {
			continue
		}
		if best < 0 || *v < *values[best] {
			best = i
		}
	}
	if best >= 0 {
		cells[index(best)].Bold = true
	}
}

func writeLatexRow(w io.Writer, dataset string, cells []cell) error {
	parts := make([]string, 0, len(cells)+1)
	parts = append(parts, dataset)
	for _, c := range cells {
		if c.Bold {
			parts = append(parts, `\textbf{`+c.Text+`}`)
		} else {
			parts = append(parts, c.Text)
		}
	}
	_, err := fmt.Fprintln(w, strings.Join(parts, " & ")+` \\`)
	return err
}

// MinMaxRow holds the CV generation aggregates of one dataset per strategy.
type MinMaxRow struct {
	Dataset    string
	ByStrategy map[string]store.Aggregate
}

// NewMinMaxRow keeps the CV aggregates of dataset.
func NewMinMaxRow(dataset string, aggregates []store.Aggregate) MinMaxRow {
	row := MinMaxRow{Dataset: dataset, ByStrategy: make(map[string]store.Aggregate)}
	for _, a := range aggregates {
		if a.Generation == models.GenerationCV {
			row.ByStrategy[a.Strategy] = a
		}
	}
	return row
}

func (r MinMaxRow) pick(get func(store.Aggregate) *float64) []*float64 {
	out := make([]*float64, len(IndexStrategies))
	for i, s := range IndexStrategies {
		if a, ok := r.ByStrategy[s]; ok {
			out[i] = get(a)
		}
	}
	return out
}

// IndexMinMax writes the best and worst CV and test error of every strategy
// per dataset, the lowest best error of each side in bold.
func IndexMinMax(w io.Writer, rows []MinMaxRow, format Format) error {
	var out []indexRow
	for _, r := range rows {
		minCV := r.pick(func(a store.Aggregate) *float64 { return a.MinError })
		maxCV := r.pick(func(a store.Aggregate) *float64 { return a.MaxError })
		minTest := r.pick(func(a store.Aggregate) *float64 { return a.MinTestError })
		maxTest := r.pick(func(a store.Aggregate) *float64 { return a.MaxTestError })

		n := len(IndexStrategies)
		cv := make([]cell, 0, 2*n)
		test := make([]cell, 0, 2*n)
		for i := 0; i < n; i++ {
			cv = append(cv, valueCell(minCV[i]), valueCell(maxCV[i]))
			test = append(test, valueCell(minTest[i]), valueCell(maxTest[i]))
		}
		pairIndex := func(i int) int { return 2 * i }
		boldMin(cv, minCV, pairIndex)
		boldMin(test, minTest, pairIndex)

		switch format {
		case FormatLatexCV:
			if err := writeLatexRow(w, r.Dataset, cv); err != nil {
				return err
			}
		case FormatLatexTest:
			if err := writeLatexRow(w, r.Dataset, test); err != nil {
				return err
			}
		default:
			out = append(out, indexRow{Dataset: r.Dataset, Cells: append(cv, test...)})
		}
	}
	if format != FormatHTML {
		return nil
	}
	return render(w, "index_minmax.html", struct {
		Span    int
		Headers []string
		Rows    []indexRow
	}{2 * len(IndexStrategies), headers(), out})
}

// BootstrapCell is the estimated best-of-k error of one strategy. Estimates
// of DEFAULT runs are plain minima with no interval.
type BootstrapCell struct {
	Error     stats.Estimate
	TestError stats.Estimate
	// Exact is set for minima that need no confidence interval.
	Exact bool
}

// BootstrapRow holds the estimates of one dataset per strategy.
type BootstrapRow struct {
	Dataset    string
	ByStrategy map[string]BootstrapCell
}

// NewBootstrapRow estimates, for every strategy run with the CV generation,
// the expected best error of k runs by resampling results. DEFAULT runs
// report their minimum.
func NewBootstrapRow(dataset string, results []models.Result, k, iterations int, rng stats.IntNer) BootstrapRow {
	errs := make(map[string][]float64)
	tests := make(map[string][]float64)
	for _, r := range results {
		if r.Dataset != dataset || r.Generation != models.GenerationCV {
			continue
		}
		if r.Error != nil {
			errs[r.Strategy] = append(errs[r.Strategy], *r.Error)
		}
		if r.TestError != nil {
			tests[r.Strategy] = append(tests[r.Strategy], *r.TestError)
		}
	}

	row := BootstrapRow{Dataset: dataset, ByStrategy: make(map[string]BootstrapCell)}
	for _, s := range IndexStrategies {
		e, t := errs[s], tests[s]
		if len(e) == 0 && len(t) == 0 {
			continue
		}
		if s == models.StrategyDefault {
			row.ByStrategy[s] = BootstrapCell{
				Error:     stats.Estimate{Mean: stats.Min(e)},
				TestError: stats.Estimate{Mean: stats.Min(t)},
				Exact:     true,
			}
			continue
		}
		row.ByStrategy[s] = BootstrapCell{
			Error:     stats.BootstrapBestOf(e, k, iterations, rng),
			TestError: stats.BootstrapBestOf(t, k, iterations, rng),
		}
	}
	return row
}

func estimateCell(c BootstrapCell, ok bool, test bool) (cell, *float64) {
	if !ok {
		return cell{Text: missing}, nil
	}
	e := c.Error
	if test {
		e = c.TestError
	}
	if math.IsNaN(e.Mean) {
		return cell{Text: missing}, nil
	}
	out := cell{Text: stats.FormatNumber(e.Mean)}
	if !c.Exact {
		out.CI = stats.FormatNumber(e.CI)
	}
	v := e.Mean
	return out, &v
}

// IndexBootstrap writes the bootstrapped best-of-k errors per dataset, with
// their 95% interval width.
func IndexBootstrap(w io.Writer, rows []BootstrapRow, format Format) error {
	var out []indexRow
	for _, r := range rows {
		n := len(IndexStrategies)
		cv := make([]cell, n)
		test := make([]cell, n)
		cvValues := make([]*float64, n)
		testValues := make([]*float64, n)
		for i, s := range IndexStrategies {
			c, ok := r.ByStrategy[s]
			cv[i], cvValues[i] = estimateCell(c, ok, false)
			test[i], testValues[i] = estimateCell(c, ok, true)
		}
		same := func(i int) int { return i }
		boldMin(cv, cvValues, same)
		boldMin(test, testValues, same)

		switch format {
		case FormatLatexCV:
			if err := writeLatexRow(w, r.Dataset, cv); err != nil {
				return err
			}
		case FormatLatexTest:
			if err := writeLatexRow(w, r.Dataset, test); err != nil {
				return err
			}
		default:
			out = append(out, indexRow{Dataset: r.Dataset, Cells: append(cv, test...)})
		}
	}
	if format != FormatHTML {
		return nil
	}
	return render(w, "index_bootstrap.html", struct {
		Span    int
		Headers []string
		Rows    []indexRow
	}{len(IndexStrategies), headers(), out})
}
