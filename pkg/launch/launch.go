// Package launch submits optimization runs and their follow-up jobs to the
// cluster scheduler.
package launch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gilchrisn/mcps-experiments/pkg/autoweka"
	"github.com/gilchrisn/mcps-experiments/pkg/config"
	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

// Cell is one experiment run of the grid.
type Cell struct {
	models.ExperimentKey
	Seed string
}

// Grid expands a selection into dataset × strategy × generation × seed
// cells, in that nesting order.
func Grid(sel config.Selection) []Cell {
	cells := make([]Cell, 0, len(sel.Datasets)*len(sel.Strategies)*len(sel.Generations)*len(sel.Seeds))
	for _, d := range sel.Datasets {
		for _, s := range sel.Strategies {
			for _, g := range sel.Generations {
				for _, seed := range sel.Seeds {
					cells = append(cells, Cell{
						ExperimentKey: models.ExperimentKey{Dataset: d, Strategy: s, Generation: g},
						Seed:          seed,
					})
				}
			}
		}
	}
	return cells
}

// Recorder keeps the log of submitted commands.
type Recorder interface {
	RecordSubmissions(ctx context.Context, subs []models.Submission) error
}

// Options locate the scripts and folders the submitted jobs run against.
type Options struct {
	// Home is the Auto-WEKA installation (AUTOWEKA_PATH).
	Home string
	// ExperimentsFolder is relative to Home unless absolute.
	ExperimentsFolder string
	DatasetsFolder    string

	SubmitCommand  string
	Queue          string
	SingleScript   string
	AdaptiveScript string
	// DefaultScript is relative to Home unless absolute.
	DefaultScript string
	CVScript      string

	// ManifestDir receives launch-<batch>.yaml; empty disables manifests.
	ManifestDir string
	// Pretend prints the commands without submitting or recording them.
	Pretend bool
}

// OptionsFromConfig fills Options from the configuration.
func OptionsFromConfig(cfg *config.Config, home string) Options {
	return Options{
		Home:              home,
		ExperimentsFolder: cfg.ExperimentsFolder(),
		DatasetsFolder:    cfg.DatasetsFolder(),
		SubmitCommand:     cfg.SubmitCommand(),
		Queue:             cfg.Queue(),
		SingleScript:      cfg.SingleScript(),
		AdaptiveScript:    cfg.AdaptiveScript(),
		DefaultScript:     cfg.DefaultScript(),
		CVScript:          cfg.CVScript(),
	}
}

func (o Options) underHome(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(o.Home, p)
}

// ExperimentFolder is the Auto-WEKA folder of key.
func (o Options) ExperimentFolder(key models.ExperimentKey) string {
	return filepath.Join(o.underHome(o.ExperimentsFolder), key.FolderName())
}

// Launcher submits jobs through the scheduler command.
type Launcher struct {
	exec     autoweka.Executor
	recorder Recorder
	opts     Options
	logger   zerolog.Logger
	out      io.Writer
	now      func() time.Time
}

// NewLauncher creates a launcher. recorder may be nil when submissions are
// not logged to the store.
func NewLauncher(exec autoweka.Executor, recorder Recorder, opts Options, logger zerolog.Logger) *Launcher {
	return &Launcher{
		exec:     exec,
		recorder: recorder,
		opts:     opts,
		logger:   logger,
		out:      os.Stdout,
		now:      time.Now,
	}
}

// SetOutput changes where commands are echoed.
func (l *Launcher) SetOutput(w io.Writer) { l.out = w }

// Job is one scheduler submission before it is sent.
type Job struct {
	Name string
	Cell Cell
	Args []string
}

// Batch is the outcome of one launch.
type Batch struct {
	ID          string              `yaml:"batch_id"`
	Kind        string              `yaml:"kind"`
	CreatedAt   time.Time           `yaml:"created_at"`
	Submissions []models.Submission `yaml:"submissions"`
}

// Failed counts the submissions the scheduler rejected.
func (b *Batch) Failed() int {
	n := 0
	for _, s := range b.Submissions {
		if s.Status == models.SubmissionFailed {
			n++
		}
	}
	return n
}

// ExperimentOptions controls Experiments.
type ExperimentOptions struct {
	// Batches > 0 launches adaptive runs split in that many batches.
	Batches      int
	InitialBatch int
}

// Experiments submits one optimization run per grid cell.
func (l *Launcher) Experiments(ctx context.Context, sel config.Selection, opts ExperimentOptions) (*Batch, error) {
	initial := opts.InitialBatch
	if initial <= 0 {
		initial = 1
	}
	var jobs []Job
	for _, c := range Grid(sel) {
		folder := l.opts.ExperimentFolder(c.ExperimentKey)
		name := c.RunName(c.Seed)
		args := []string{"-N", name, "-l", "q=" + l.opts.Queue}
		if opts.Batches > 0 {
			args = append(args, l.opts.AdaptiveScript, folder, strconv.Itoa(opts.Batches), c.Seed, strconv.Itoa(initial))
		} else {
			args = append(args, l.opts.SingleScript, folder, c.Seed)
		}
		jobs = append(jobs, Job{Name: name, Cell: c, Args: args})
	}
	return l.submit(ctx, "experiments", jobs)
}

// Defaults submits one default-hyperparameter run per dataset, method and
// seed.
func (l *Launcher) Defaults(ctx context.Context, datasets, methods, seeds []string) (*Batch, error) {
	script := l.opts.underHome(l.opts.DefaultScript)
	var jobs []Job
	for _, d := range datasets {
		for _, m := range methods {
			for _, s := range seeds {
				name := fmt.Sprintf("%s.%s.%s", d, m, s)
				jobs = append(jobs, Job{
					Name: name,
					Cell: Cell{ExperimentKey: models.ExperimentKey{Dataset: d, Strategy: models.StrategyDefault}, Seed: s},
					Args: []string{"-N", name, "-l", "q=" + l.opts.Queue, script, d, m, s},
				})
			}
		}
	}
	return l.submit(ctx, "defaults", jobs)
}

// FullCV submits the repeated cross-validation of every optimized run.
// DEFAULT and RAND runs have no trained incumbent to validate and are skipped.
func (l *Launcher) FullCV(ctx context.Context, sel config.Selection) (*Batch, error) {
	var jobs []Job
	for _, c := range Grid(sel) {
		if !optimized(c.Strategy) {
			continue
		}
		name := fmt.Sprintf("%s_%s_%s_%s", c.Dataset, c.Strategy, c.Generation, c.Seed)
		jobs = append(jobs, Job{
			Name: name,
			Cell: c,
			Args: []string{"-N", name, "-l", "q=" + l.opts.Queue, l.opts.CVScript, c.Dataset, c.Strategy, c.Generation, c.Seed},
		})
	}
	return l.submit(ctx, "full-cv", jobs)
}

func optimized(strategy string) bool {
	return strategy != models.StrategyDefault && strategy != models.StrategyRandom
}

func (l *Launcher) submit(ctx context.Context, kind string, jobs []Job) (*Batch, error) {
	batch := &Batch{
		ID:        uuid.New().String(),
		Kind:      kind,
		CreatedAt: l.now(),
	}
	logger := l.logger.With().Str("batch", batch.ID).Str("kind", kind).Logger()

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		line := autoweka.CommandLine(l.opts.SubmitCommand, job.Args...)
		fmt.Fprintln(l.out, line)

		sub := models.Submission{
			BatchID:     batch.ID,
			Name:        job.Name,
			Command:     line,
			Dataset:     job.Cell.Dataset,
			Strategy:    job.Cell.Strategy,
			Generation:  job.Cell.Generation,
			Seed:        job.Cell.Seed,
			SubmittedAt: l.now(),
		}
		if l.opts.Pretend {
			sub.Status = models.SubmissionPretend
			batch.Submissions = append(batch.Submissions, sub)
			continue
		}

		out, err := l.exec.Output(ctx, "", l.opts.SubmitCommand, job.Args...)
		sub.Output = out
		if err != nil {
			logger.Warn().Err(err).Str("command", line).Msg("Submission failed")
			sub.Status = models.SubmissionFailed
		} else {
			sub.Status = models.SubmissionSubmitted
		}
		batch.Submissions = append(batch.Submissions, sub)
	}

	if l.opts.Pretend {
		return batch, nil
	}
	if l.recorder != nil && len(batch.Submissions) > 0 {
		if err := l.recorder.RecordSubmissions(ctx, batch.Submissions); err != nil {
			return batch, fmt.Errorf("failed to record batch %s: %w", batch.ID, err)
		}
	}
	if l.opts.ManifestDir != "" {
		if _, err := WriteManifest(l.opts.ManifestDir, batch); err != nil {
			return batch, err
		}
	}

	logger.Info().
		Int("submitted", len(batch.Submissions)-batch.Failed()).
		Int("failed", batch.Failed()).
		Msg("Launch complete")
	return batch, nil
}
