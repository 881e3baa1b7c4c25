package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gilchrisn/mcps-experiments/pkg/config"
	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/stats"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
)

// PredictionsFile is the test set predictions file of one seeded run.
func PredictionsFile(experimentsDir string, key models.ExperimentKey, seed string) string {
	return filepath.Join(experimentsDir, key.FolderName(), "predictions."+seed+".csv")
}

// PredictionError recomputes a test error from a Weka predictions file: the
// RMSE for regression, otherwise the percentage of misclassified instances
// with missing predictions counted as wrong.
func PredictionError(path string, regression bool) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open predictions: %w", err)
	}
	defer f.Close()

	preds, err := stats.ReadPredictions(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if len(preds) == 0 {
		return 0, fmt.Errorf("%s: no predictions", path)
	}
	errs := stats.PredictionErrors(preds, regression)
	if regression {
		return stats.RMSE(errs), nil
	}
	return stats.MisclassificationRate(errs, len(preds)), nil
}

// TestErrorCheck compares the stored test error of a run with the one
// recomputed from its predictions.
type TestErrorCheck struct {
	models.ExperimentKey
	Seed       string   `json:"seed"`
	Stored     *float64 `json:"stored"`
	Recomputed *float64 `json:"recomputed"`
}

// Differs reports whether the two errors disagree to three decimals.
func (c TestErrorCheck) Differs() bool {
	return formatError(c.Stored) != formatError(c.Recomputed)
}

// String renders the check as "dataset,strategy,generation,seed,stored,recomputed".
func (c TestErrorCheck) String() string {
	return strings.Join([]string{c.Dataset, c.Strategy, c.Generation, c.Seed,
		formatError(c.Stored), formatError(c.Recomputed)}, ",")
}

// TestErrors recomputes the test error of every selected run that has a
// predictions file. With update, stored results whose test error differs
// are overwritten.
func (im *Importer) TestErrors(ctx context.Context, experimentsDir string, sel config.Selection, regression, update bool) ([]TestErrorCheck, error) {
	var out []TestErrorCheck
	for _, key := range selectedKeys(sel) {
		results, err := im.store.Results(ctx, key)
		if err != nil && !errors.Is(err, store.ErrNoResults) {
			return nil, err
		}
		stored := make(map[string]models.Result, len(results))
		for _, r := range results {
			if r.Batch == nil {
				stored[r.Seed] = r
			}
		}

		for _, seed := range sel.Seeds {
			path := PredictionsFile(experimentsDir, key, seed)
			v, err := PredictionError(path, regression)
			if err != nil {
				im.logger.Debug().Err(err).Str("predictions", path).Msg("No usable predictions")
				continue
			}
			check := TestErrorCheck{ExperimentKey: key, Seed: seed, Recomputed: models.Float(v)}
			r, ok := stored[seed]
			if ok {
				check.Stored = r.TestError
			}
			out = append(out, check)

			if !update || !ok || !check.Differs() {
				continue
			}
			im.logger.Info().Str("run", key.RunName(seed)).Float64("test_error", v).Msg("Updating test error")
			if err := im.store.UpdateTestError(ctx, r, check.Recomputed); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func selectedKeys(sel config.Selection) []models.ExperimentKey {
	var keys []models.ExperimentKey
	for _, d := range sel.Datasets {
		for _, s := range sel.Strategies {
			for _, g := range sel.Generations {
				keys = append(keys, models.ExperimentKey{Dataset: d, Strategy: s, Generation: g})
			}
		}
	}
	return keys
}
