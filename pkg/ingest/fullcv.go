package ingest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gilchrisn/mcps-experiments/pkg/config"
	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/stats"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
)

// DefaultRepetitions is the number of seeded cross-validations behind a
// full CV error.
const DefaultRepetitions = 10

// DefaultConfiguration wraps a default-parameter method in the filtered
// classifier with an empty preprocessing filter.
func DefaultConfiguration(method string) string {
	return "-F weka.filters.AllFilter -W " + method
}

// FullCV repeats the cross-validation of every run of key that has no full
// CV error yet and stores the median RMSE. An empty seed selects every seed.
// Runs where no repetition produced an error get NULL. It returns the number
// of runs updated.
func (im *Importer) FullCV(ctx context.Context, key models.ExperimentKey, seed, datasetsFolder string, repetitions int) (int, error) {
	candidates, err := im.store.FullCVCandidates(ctx, key, seed)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		im.logger.Info().Str("experiment", key.Name()).Str("seed", seed).Msg("No results")
		return 0, nil
	}

	train, err := im.store.TrainFile(ctx, key.Dataset)
	if err != nil {
		return 0, err
	}
	train = filepath.Join(datasetsFolder, train)

	for _, r := range candidates {
		configuration := r.Configuration
		if key.Strategy == models.StrategyDefault {
			configuration = DefaultConfiguration(configuration)
		}

		var errs []float64
		for rep := 0; rep < repetitions; rep++ {
			v, err := im.java.EvaluateConfiguration(ctx, rep, train, configuration)
			if err != nil {
				if ctx.Err() != nil {
					return 0, ctx.Err()
				}
				im.logger.Error().Err(err).Str("run", r.RunName(r.Seed)).Int("repetition", rep).
					Msg("Cross-validation failed")
				continue
			}
			im.logger.Debug().Str("run", r.RunName(r.Seed)).Int("repetition", rep).Float64("rmse", v).Msg("Cross-validation")
			errs = append(errs, v)
		}

		var value *float64
		if len(errs) > 0 {
			value = models.Float(stats.Median(errs))
		}
		im.logger.Info().Str("run", r.RunName(r.Seed)).Interface("full_cv_error", value).Msg("Full CV error")
		if err := im.store.UpdateFullCVError(ctx, r, value); err != nil {
			return 0, err
		}
	}
	return len(candidates), nil
}

// ErrFailedValidation marks a SMAC validation log with a TIMEOUT or CRASH run.
var ErrFailedValidation = errors.New("validation run failed")

// ValidationCVError recomputes the CV error from a SMAC
// rawValidationExecutionResults log: the sum of the SAT rows' result column
// divided by numFolds.
func ValidationCVError(path string, numFolds int) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	sum := 0.0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "TIMEOUT") || strings.Contains(line, "CRASH") {
			return 0, ErrFailedValidation
		}
		if !strings.Contains(line, "SAT") {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 8 {
			return 0, fmt.Errorf("short validation row %q", line)
		}
		v, err := strconv.ParseFloat(strings.Trim(strings.TrimSpace(fields[7]), `"`), 64)
		if err != nil {
			return 0, fmt.Errorf("malformed validation result %q: %w", fields[7], err)
		}
		sum += v
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return sum / float64(numFolds), nil
}

// CVMismatch is a run whose stored error differs from the one in its SMAC
// validation log.
type CVMismatch struct {
	models.ExperimentKey
	Seed       string   `json:"seed"`
	Stored     *float64 `json:"stored"`
	Recomputed *float64 `json:"recomputed"`
}

// CheckCVErrors compares, to three decimals, the stored error of every
// selected SMAC run with the error recomputed from its validation log.
func (im *Importer) CheckCVErrors(ctx context.Context, experimentsDir string, sel config.Selection, numFolds int) ([]CVMismatch, error) {
	var out []CVMismatch
	for _, dataset := range sel.Datasets {
		for _, generation := range sel.Generations {
			key := models.ExperimentKey{Dataset: dataset, Strategy: models.StrategySMAC, Generation: generation}
			results, err := im.store.Results(ctx, key)
			if err != nil && !errors.Is(err, store.ErrNoResults) {
				return nil, err
			}
			stored := make(map[string]*float64, len(results))
			for _, r := range results {
				stored[r.Seed] = r.Error
			}

			for _, seed := range sel.Seeds {
				logFile := filepath.Join(experimentsDir, key.FolderName(), "out", "autoweka",
					fmt.Sprintf("rawValidationExecutionResults-tunertime-run%s.csv", seed))
				var recomputed *float64
				if v, err := ValidationCVError(logFile, numFolds); err == nil {
					recomputed = &v
				} else {
					im.logger.Debug().Err(err).Str("log", logFile).Msg("No usable validation log")
				}

				if formatError(stored[seed]) != formatError(recomputed) {
					out = append(out, CVMismatch{ExperimentKey: key, Seed: seed, Stored: stored[seed], Recomputed: recomputed})
				}
			}
		}
	}
	return out, nil
}

func formatError(v *float64) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%.3f", *v)
}

// String renders the mismatch as "dataset,strategy,generation,seed,stored,recomputed".
func (m CVMismatch) String() string {
	return strings.Join([]string{m.Dataset, m.Strategy, m.Generation, m.Seed,
		formatError(m.Stored), formatError(m.Recomputed)}, ",")
}

var subProcessPattern = regexp.MustCompile(`SubProcessWrapper: Time\(([0-9.]+)\) Score\(([0-9.]+)\)`)

// ScorePoint is one evaluation reported by the Auto-WEKA subprocess wrapper.
type ScorePoint struct {
	Time  float64 `json:"time"`
	Score float64 `json:"score"`
}

// ParseSubProcessLog extracts the "SubProcessWrapper: Time(t) Score(s)"
// lines of an Auto-WEKA log.
func ParseSubProcessLog(path string) ([]ScorePoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()

	var out []ScorePoint
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		m := subProcessPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		t, err1 := strconv.ParseFloat(m[1], 64)
		s, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, ScorePoint{Time: t, Score: s})
	}
	return out, scanner.Err()
}
