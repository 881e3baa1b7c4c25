package report

import (
	"context"
	"html/template"
	"io"
	"sort"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

// Row highlights of the configurations table.
const (
	BestErrorStyle = template.CSS("border: 2px solid lightgreen;")
	BestTestStyle  = template.CSS("border: 2px solid lightblue;")
)

// ConfigurationRow is a result with its configuration broken into stages.
type ConfigurationRow struct {
	models.Result
	Pipeline *wekaopt.Pipeline
}

// Cells returns the methods of stages, in order.
func (r ConfigurationRow) Cells(stages []models.Stage) []wekaopt.Method {
	cells := make([]wekaopt.Method, len(stages))
	for i, s := range stages {
		cells[i] = r.Pipeline.Stage(s)
	}
	return cells
}

// ConfigurationsTable is the components table of one experiment.
type ConfigurationsTable struct {
	Key           models.ExperimentKey
	Rows          []ConfigurationRow
	BestErrorSeed string
	BestTestSeed  string
	// Complete tables show every stage; default-hyperparameter runs only
	// have a predictor.
	Complete bool
}

// NewConfigurationsTable parses the configuration of every result. A
// configuration the parser cannot read is shown whole in the predictor
// column.
func NewConfigurationsTable(ctx context.Context, parser wekaopt.Parser, key models.ExperimentKey, results []models.Result, bestErrorSeed, bestTestSeed string) ConfigurationsTable {
	t := ConfigurationsTable{
		Key:           key,
		BestErrorSeed: bestErrorSeed,
		BestTestSeed:  bestTestSeed,
		Complete:      key.Strategy != models.StrategyDefault,
	}
	for _, r := range results {
		p, err := parser.Parse(ctx, r.Configuration, t.Complete)
		if err != nil {
			p = &wekaopt.Pipeline{}
			p.Stages[models.StagePredictor] = wekaopt.Method{Name: r.Configuration}
		}
		t.Rows = append(t.Rows, ConfigurationRow{Result: r, Pipeline: p})
	}
	return t
}

// Stages are the columns of the table.
func (t ConfigurationsTable) Stages() []models.Stage {
	if t.Complete {
		return models.Stages
	}
	return []models.Stage{models.StagePredictor}
}

// RowStyle marks the seed with the best CV error, or else the best test error.
func (t ConfigurationsTable) RowStyle(seed string) template.CSS {
	switch seed {
	case t.BestErrorSeed:
		return BestErrorStyle
	case t.BestTestSeed:
		return BestTestStyle
	}
	return ""
}

// MethodCount is how many rows chose a method.
type MethodCount struct {
	Method string
	Count  int
}

// StageFrequency lists the methods chosen for a stage, most frequent first.
type StageFrequency struct {
	Stage  models.Stage
	Counts []MethodCount
}

// Frequencies counts the methods chosen for every column of the table.
func (t ConfigurationsTable) Frequencies() []StageFrequency {
	stages := t.Stages()
	out := make([]StageFrequency, len(stages))
	for i, s := range stages {
		counts := make(map[string]int)
		for _, r := range t.Rows {
			counts[r.Pipeline.Stage(s).Name]++
		}
		f := StageFrequency{Stage: s}
		for m, c := range counts {
			f.Counts = append(f.Counts, MethodCount{Method: m, Count: c})
		}
		sort.Slice(f.Counts, func(a, b int) bool {
			if f.Counts[a].Count != f.Counts[b].Count {
				return f.Counts[a].Count > f.Counts[b].Count
			}
			return f.Counts[a].Method < f.Counts[b].Method
		})
		out[i] = f
	}
	return out
}

// TrajectoryPlot is the scatter plot linked from the configurations page of
// key, or "" when the strategy has no trajectory.
func TrajectoryPlot(key models.ExperimentKey) string {
	if !key.HasTrajectory() {
		return ""
	}
	return "../plots/trajectories-" + key.Name() + ".scatter.png"
}

// ConfigurationsPage renders the components of every run of one experiment.
func ConfigurationsPage(w io.Writer, table ConfigurationsTable, plotImage string) error {
	return render(w, "configurations.html", struct {
		Table     ConfigurationsTable
		PlotImage string
	}{table, plotImage})
}

// TopConfigurationsPage renders the best runs of every experiment on a
// dataset, one table per experiment.
func TopConfigurationsPage(w io.Writer, tables []ConfigurationsTable) error {
	return render(w, "top.html", struct {
		Tables []ConfigurationsTable
	}{tables})
}
