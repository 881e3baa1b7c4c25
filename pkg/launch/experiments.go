package launch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/mcps-experiments/pkg/config"
)

// DatasetPlaceholder is replaced by the dataset name in experiment templates.
const DatasetPlaceholder = "{DATASET}"

// Constructor builds experiment folders from a batch file.
type Constructor interface {
	ConstructExperiment(ctx context.Context, batchFile string) error
}

// CreateExperiments instantiates template for every dataset, writes it to
// <experimentsDir>/<dataset>.batch and runs the experiment constructor on it.
// It returns the batch files written.
func CreateExperiments(ctx context.Context, c Constructor, template, experimentsDir string, datasets []string, logger zerolog.Logger) ([]string, error) {
	if err := os.MkdirAll(experimentsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create experiments directory: %w", err)
	}
	var files []string
	for _, d := range datasets {
		path := filepath.Join(experimentsDir, d+".batch")
		content := strings.ReplaceAll(template, DatasetPlaceholder, d)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return files, fmt.Errorf("failed to write %s: %w", path, err)
		}
		files = append(files, path)
		logger.Info().Str("dataset", d).Str("file", path).Msg("Constructing experiment")
		if err := c.ConstructExperiment(ctx, path); err != nil {
			logger.Warn().Err(err).Str("dataset", d).Msg("Experiment construction failed")
		}
	}
	return files, nil
}

// Predictor applies a trained model to a data file.
type Predictor interface {
	GeneratePredictions(ctx context.Context, modelFile, dataFile, outFile string) error
}

// PredictionFiles are the inputs and output of one training-set prediction.
type PredictionFiles struct {
	Model  string
	Data   string
	Output string
}

// TrainingPredictionFiles locates the model of cell and where its
// predictions on the 70% training split go.
func (o Options) TrainingPredictionFiles(c Cell) PredictionFiles {
	folder := o.ExperimentFolder(c.ExperimentKey)
	return PredictionFiles{
		Model:  filepath.Join(folder, "trained."+c.Seed+".model"),
		Data:   filepath.Join(o.underHome(o.DatasetsFolder), c.Dataset+"-train70perc.arff"),
		Output: filepath.Join(folder, "training.predictions."+c.Seed+".csv"),
	}
}

// TrainingPredictions writes the training-set predictions of every optimized
// run in sel. Failures are logged and skipped; the number of successful runs
// is returned.
func TrainingPredictions(ctx context.Context, p Predictor, opts Options, sel config.Selection, logger zerolog.Logger) (int, error) {
	done := 0
	for _, c := range Grid(sel) {
		if !optimized(c.Strategy) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return done, err
		}
		files := opts.TrainingPredictionFiles(c)
		if err := p.GeneratePredictions(ctx, files.Model, files.Data, files.Output); err != nil {
			logger.Warn().Err(err).Str("run", c.RunName(c.Seed)).Msg("Prediction failed")
			continue
		}
		done++
	}
	return done, nil
}
