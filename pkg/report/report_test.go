package report

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/stats"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

var smacKey = models.ExperimentKey{Dataset: "abalone", Strategy: "SMAC", Generation: "CV"}

func testResults(key models.ExperimentKey) []models.Result {
	return []models.Result{
		{ExperimentKey: key, Seed: "0", Error: models.Float(12.5), TestError: models.Float(11), Configuration: "weka.classifiers.trees.J48 -C 0.25"},
		{ExperimentKey: key, Seed: "1", Error: models.Float(10), Configuration: "weka.classifiers.lazy.IBk -K 1"},
	}
}

func TestConfigurationsPage(t *testing.T) {
	table := NewConfigurationsTable(context.Background(), wekaopt.NativeParser{}, smacKey, testResults(smacKey), "1", "0")
	require.Len(t, table.Rows, 2)
	assert.True(t, table.Complete)

	var buf bytes.Buffer
	require.NoError(t, ConfigurationsPage(&buf, table, TrajectoryPlot(smacKey)))
	html := buf.String()

	assert.Contains(t, html, `$("#myTable").tablesorter();`)
	assert.Contains(t, html, "<h2>Dataset: abalone - Strategy: SMAC - Generation: CV</h2>")
	assert.Contains(t, html, "<th>dimensionality reduction</th>")
	assert.Contains(t, html, `<tr style="border: 2px solid lightblue;"><td>abalone</td><td>SMAC</td><td>CV</td><td>0</td>`)
	assert.Contains(t, html, `<tr style="border: 2px solid lightgreen;"><td>abalone</td><td>SMAC</td><td>CV</td><td>1</td>`)
	assert.Contains(t, html, "<td>weka.classifiers.trees.J48<br/><small>-C 0.25</small></td>")
	assert.Contains(t, html, "<td>12.5</td><td>11</td>")
	assert.Contains(t, html, "<td>10</td><td>None</td>")
	assert.Contains(t, html, "<strong>missing_values</strong><ul><li>Nothing: 2</li></ul>")
	assert.Contains(t, html, "<ul><li>weka.classifiers.lazy.IBk: 1</li><li>weka.classifiers.trees.J48: 1</li></ul>")
	assert.Contains(t, html, `<img src="../plots/trajectories-abalone.SMAC.CV.scatter.png" />`)
}

func TestConfigurationsPageDefault(t *testing.T) {
	key := models.ExperimentKey{Dataset: "abalone", Strategy: "DEFAULT", Generation: "CV"}
	results := []models.Result{{ExperimentKey: key, Seed: "0", Error: models.Float(20), Configuration: "weka.classifiers.trees.J48"}}
	table := NewConfigurationsTable(context.Background(), wekaopt.NativeParser{}, key, results, "0", "-1")
	assert.False(t, table.Complete)

	var buf bytes.Buffer
	require.NoError(t, ConfigurationsPage(&buf, table, TrajectoryPlot(key)))
	html := buf.String()
	assert.Contains(t, html, "<th>seed</th><th>predictor</th><th>CV error</th>")
	assert.NotContains(t, html, "<th>outliers</th>")
	assert.NotContains(t, html, "<img")

	empty := ConfigurationsTable{Key: smacKey, Complete: true}
	buf.Reset()
	require.NoError(t, ConfigurationsPage(&buf, empty, ""))
	assert.Contains(t, buf.String(), "<strong>sampling</strong>Component not available!")
}

func TestTopConfigurationsPage(t *testing.T) {
	tpe := models.ExperimentKey{Dataset: "abalone", Strategy: "TPE", Generation: "CV"}
	tables := []ConfigurationsTable{
		NewConfigurationsTable(context.Background(), wekaopt.NativeParser{}, smacKey, testResults(smacKey), "1", "0"),
		NewConfigurationsTable(context.Background(), wekaopt.NativeParser{}, tpe, testResults(tpe), "1", "0"),
	}
	var buf bytes.Buffer
	require.NoError(t, TopConfigurationsPage(&buf, tables))
	html := buf.String()
	assert.Contains(t, html, "Strategy: SMAC")
	assert.Contains(t, html, "Strategy: TPE")
	assert.Equal(t, 2, strings.Count(html, "Frequencies for each component"))
}

func TestStrategiesAndIndexPages(t *testing.T) {
	aggregates := []store.Aggregate{
		{ExperimentKey: models.ExperimentKey{Dataset: "abalone", Strategy: "DEFAULT", Generation: "CV"}, Evaluations: 10, MinError: models.Float(20)},
		{ExperimentKey: smacKey, Evaluations: 300, MinError: models.Float(10.5), MinTestError: models.Float(11)},
	}
	var buf bytes.Buffer
	require.NoError(t, StrategiesPage(&buf, "abalone", aggregates))
	html := buf.String()
	assert.Contains(t, html, "<h1>Results of dataset: abalone</h1>")
	assert.Contains(t, html, `<td>DEFAULT</td><td>CV</td><td>50</td><td>20</td><td>None</td><td><a href="abalone.DEFAULT.CV.html">Results</a></td>`)
	assert.Contains(t, html, `<td>300</td><td>10.5</td><td>11</td>`)
	assert.Contains(t, html, `<img src="../plots/boxplot.test_error.abalone.png" width="100%"/>`)

	buf.Reset()
	require.NoError(t, IndexPage(&buf, []string{"abalone", "car"}))
	assert.Contains(t, buf.String(), `<tr><td><a href="car.html">car</a></td></tr>`)
}

func minMaxRows() []MinMaxRow {
	aggregates := []store.Aggregate{
		{ExperimentKey: models.ExperimentKey{Dataset: "abalone", Strategy: "DEFAULT", Generation: "CV"},
			MinError: models.Float(20), MaxError: models.Float(30), MinTestError: models.Float(21), MaxTestError: models.Float(31)},
		{ExperimentKey: models.ExperimentKey{Dataset: "abalone", Strategy: "RAND", Generation: "CV"},
			MinError: models.Float(0.5), MaxError: models.Float(0.9), MinTestError: models.Float(25), MaxTestError: models.Float(35)},
		{ExperimentKey: smacKey,
			MinError: models.Float(10.5), MaxError: models.Float(15), MinTestError: models.Float(12), MaxTestError: models.Float(16)},
		{ExperimentKey: models.ExperimentKey{Dataset: "abalone", Strategy: "SMAC", Generation: "DPS"},
			MinError: models.Float(0.1), MaxError: models.Float(0.2)},
	}
	return []MinMaxRow{NewMinMaxRow("abalone", aggregates)}
}

func TestIndexMinMax(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatLatexCV, `abalone & 20.00 & 30.00 & \textbf{0.5000} & 0.9000 & 10.50 & 15.00 & - & - \\` + "\n"},
		{FormatLatexTest, `abalone & 21.00 & 31.00 & 25.00 & 35.00 & \textbf{12.00} & 16.00 & - & - \\` + "\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, IndexMinMax(&buf, minMaxRows(), tt.format))
			assert.Equal(t, tt.want, buf.String())
		})
	}

	t.Run("html", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, IndexMinMax(&buf, minMaxRows(), FormatHTML))
		html := buf.String()
		assert.Contains(t, html, `<th colspan="8">10-fold CV performance (%)</th>`)
		assert.Contains(t, html, `<th colspan="2">WEKA-DEF</th>`)
		assert.Contains(t, html, "<td><b>0.5000</b></td>")
		assert.Contains(t, html, "<td><b>12.00</b></td>")
	})
}

type zeroRand struct{}

func (zeroRand) IntN(int) int { return 0 }

func TestIndexBootstrap(t *testing.T) {
	def := models.ExperimentKey{Dataset: "abalone", Strategy: "DEFAULT", Generation: "CV"}
	results := []models.Result{
		{ExperimentKey: def, Seed: "0", Error: models.Float(25), TestError: models.Float(26)},
		{ExperimentKey: def, Seed: "1", Error: models.Float(20), TestError: models.Float(30)},
		{ExperimentKey: smacKey, Seed: "0", Error: models.Float(10), TestError: models.Float(40)},
		{ExperimentKey: smacKey, Seed: "1", Error: models.Float(12)},
		{ExperimentKey: models.ExperimentKey{Dataset: "car", Strategy: "SMAC", Generation: "CV"}, Seed: "0", Error: models.Float(1)},
	}
	row := NewBootstrapRow("abalone", results, stats.DefaultBestOf, 10, zeroRand{})
	require.Len(t, row.ByStrategy, 2)
	assert.True(t, row.ByStrategy["DEFAULT"].Exact)
	assert.Equal(t, 20.0, row.ByStrategy["DEFAULT"].Error.Mean)
	assert.Equal(t, 26.0, row.ByStrategy["DEFAULT"].TestError.Mean)
	assert.Equal(t, stats.Estimate{Mean: 10, CI: 0}, row.ByStrategy["SMAC"].Error)

	var buf bytes.Buffer
	require.NoError(t, IndexBootstrap(&buf, []BootstrapRow{row}, FormatLatexCV))
	assert.Equal(t, `abalone & 20.00 & - & \textbf{10.00} & - \\`+"\n", buf.String())

	buf.Reset()
	require.NoError(t, IndexBootstrap(&buf, []BootstrapRow{row}, FormatLatexTest))
	assert.Equal(t, `abalone & \textbf{26.00} & - & 40.00 & - \\`+"\n", buf.String())

	buf.Reset()
	require.NoError(t, IndexBootstrap(&buf, []BootstrapRow{row}, FormatHTML))
	html := buf.String()
	assert.Contains(t, html, "<td>20.00</td><td>-</td><td><b>10.00</b> &#177; 0.0000</td><td>-</td>")
}

func TestBestConfigurationsLatex(t *testing.T) {
	p, err := wekaopt.Parse("weka.classifiers.trees.J48 -C 0.25", true)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, BestConfigurationsLatex(&buf, []BestConfiguration{{Dataset: "abalone", Pipeline: p}}))
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, `\begin{table*}`))
	assert.Contains(t, out, `\caption{Best pre-processing configuration for each dataset}`)
	assert.Contains(t, out, "abalone & Nothing & Nothing & Nothing & Nothing & Nothing \\\\\n")
	assert.Contains(t, out, "abalone & J48 & Nothing \\\\\n")
}

func TestParameters(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "classifiers"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "filters"), 0755))
	j48 := "C [0.05, 0.5] [0.25]\nM [1, 64] [2]\nU {true, false} [false]\nW {weka.classifiers.trees.J48} [weka.classifiers.trees.J48]\n\nX [0, 1] [0]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "classifiers", "J48.params"), []byte(j48), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "filters", "AllFilter.params"), nil, 0644))

	params, err := ReadParameters(dir)
	require.NoError(t, err)
	assert.Equal(t, []ParameterCount{
		{Method: "AllFilter"},
		{Method: "J48", Numerical: 2, Simple: 1, Complex: 1},
	}, params)

	var buf bytes.Buffer
	require.NoError(t, ParametersLatex(&buf, params))
	assert.Equal(t, "method & numerical & categorical (simple:complex)\nAllFilter & 0 & 0:0\nJ48 & 2 & 1:1\n", buf.String())
}

func TestFlowMeasuresCSV(t *testing.T) {
	p, err := wekaopt.Parse("weka.classifiers.trees.J48", true)
	require.NoError(t, err)
	m := stats.ComputeFlowMeasures([]*wekaopt.Pipeline{p, p}, 3)

	var buf bytes.Buffer
	require.NoError(t, FlowMeasuresCSV(&buf, []FlowMeasuresRow{{Key: smacKey, Measures: m}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "dataset, strategy, generation, missing_values, outliers"))
	assert.Equal(t, "abalone, SMAC, CV, 1, 1, 1, 1, 1, 0, 0, 0.00, 0.00", lines[1])
	assert.Equal(t, "0.00,0.00,0.00,0.00,0.00", PercentUsedLine(m))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables", IndexFile)
	require.NoError(t, WriteFile(path, func(w io.Writer) error { return IndexPage(w, []string{"abalone"}) }))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<a href="abalone.html">abalone</a>`)
}
