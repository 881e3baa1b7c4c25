package report

import (
	"io"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
)

// defaultMethodsPerRun is how many predictors one DEFAULT run evaluates.
const defaultMethodsPerRun = 5

type strategyRow struct {
	store.Aggregate
	Link string
}

// StrategiesPage summarises every strategy and generation run on dataset,
// with the error boxplots below.
func StrategiesPage(w io.Writer, dataset string, aggregates []store.Aggregate) error {
	rows := make([]strategyRow, len(aggregates))
	for i, a := range aggregates {
		if a.Strategy == models.StrategyDefault {
			a.Evaluations *= defaultMethodsPerRun
		}
		rows[i] = strategyRow{Aggregate: a, Link: ConfigurationsFile(a.ExperimentKey)}
	}
	return render(w, "strategies.html", struct {
		Dataset      string
		Rows         []strategyRow
		ErrorBoxplot string
		TestBoxplot  string
	}{
		Dataset:      dataset,
		Rows:         rows,
		ErrorBoxplot: "../plots/" + BoxplotFile("error", dataset),
		TestBoxplot:  "../plots/" + BoxplotFile("test_error", dataset),
	})
}

// BoxplotFile names the boxplot of column ("error" or "test_error") for
// dataset.
func BoxplotFile(column, dataset string) string {
	return "boxplot." + column + "." + dataset + ".png"
}
