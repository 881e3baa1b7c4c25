package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/mcps-experiments/pkg/launch"
)

var (
	launchBatches      int
	launchInitialBatch int
	launchPretend      bool
	launchManifestDir  string

	templateFile string
)

// newLauncher builds a launcher recording to the store unless pretending.
// The returned close function releases the store.
func newLauncher(cmd *cobra.Command) (*launch.Launcher, func() error, error) {
	h, err := home()
	if err != nil {
		return nil, nil, err
	}
	opts := launch.OptionsFromConfig(cfg, h)
	opts.ManifestDir = launchManifestDir
	opts.Pretend = launchPretend

	var recorder launch.Recorder
	done := func() error { return nil }
	if !launchPretend {
		st, err := openStore()
		if err != nil {
			return nil, nil, err
		}
		recorder = st
		done = st.Close
	}
	l := launch.NewLauncher(executor(cmd.OutOrStdout()), recorder, opts, logger)
	l.SetOutput(cmd.OutOrStdout())
	return l, done, nil
}

func reportBatch(batch *launch.Batch) error {
	if batch == nil {
		return nil
	}
	logger.Info().Str("batch_id", batch.ID).Int("jobs", len(batch.Submissions)).Int("failed", batch.Failed()).Msg("Launch finished")
	if n := batch.Failed(); n > 0 {
		return fmt.Errorf("%d of %d submissions failed", n, len(batch.Submissions))
	}
	return nil
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Submit one optimisation job per dataset, strategy, generation and seed",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		l, done, err := newLauncher(cmd)
		if err != nil {
			return err
		}
		defer done()

		batch, err := l.Experiments(cmd.Context(), sel, launch.ExperimentOptions{
			Batches:      launchBatches,
			InitialBatch: launchInitialBatch,
		})
		if err != nil {
			return err
		}
		return reportBatch(batch)
	},
}

var launchDefaultsCmd = &cobra.Command{
	Use:   "launch-defaults",
	Short: "Submit default-parameter runs of every method",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		l, done, err := newLauncher(cmd)
		if err != nil {
			return err
		}
		defer done()

		batch, err := l.Defaults(cmd.Context(), sel.Datasets, cfg.Methods(), sel.Seeds)
		if err != nil {
			return err
		}
		return reportBatch(batch)
	},
}

var launchCVCmd = &cobra.Command{
	Use:   "launch-cv",
	Short: "Submit the full cross-validation of every optimised run",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		l, done, err := newLauncher(cmd)
		if err != nil {
			return err
		}
		defer done()

		batch, err := l.FullCV(cmd.Context(), sel)
		if err != nil {
			return err
		}
		return reportBatch(batch)
	},
}

var predictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "Predict the training split with every trained model",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		h, err := home()
		if err != nil {
			return err
		}
		runner, err := newRunner(cmd)
		if err != nil {
			return err
		}
		n, err := launch.TrainingPredictions(cmd.Context(), runner, launch.OptionsFromConfig(cfg, h), sel, logger)
		logger.Info().Int("runs", n).Msg("Training predictions written")
		return err
	},
}

var createExperimentsCmd = &cobra.Command{
	Use:   "create-experiments",
	Short: "Write one batch file per dataset from a template and construct the experiments",
	RunE: func(cmd *cobra.Command, args []string) error {
		template, err := os.ReadFile(templateFile)
		if err != nil {
			return fmt.Errorf("failed to read template: %w", err)
		}
		dir, err := experimentsDir()
		if err != nil {
			return err
		}
		runner, err := newRunner(cmd)
		if err != nil {
			return err
		}
		files, err := launch.CreateExperiments(cmd.Context(), runner, string(template), dir, cfg.Datasets(), logger)
		logger.Info().Int("batch_files", len(files)).Msg("Experiments created")
		return err
	},
}

func init() {
	for _, cmd := range []*cobra.Command{launchCmd, launchDefaultsCmd, launchCVCmd} {
		addSelectionFlags(cmd, true)
		cmd.Flags().BoolVar(&launchPretend, "pretend", false, "print the submit commands without running them")
		cmd.Flags().StringVar(&launchManifestDir, "manifest-dir", "", "write a YAML manifest of the launch to this directory")
	}
	launchCmd.Flags().IntVar(&launchBatches, "batches", 0, "number of batches of adaptive runs (0 for single runs)")
	launchCmd.Flags().IntVar(&launchInitialBatch, "initial-batch", 0, "first batch of adaptive runs")

	addSelectionFlags(predictionsCmd, true)

	createExperimentsCmd.Flags().StringVar(&templateFile, "template", "", "experiment batch template with a "+launch.DatasetPlaceholder+" placeholder")
	_ = createExperimentsCmd.MarkFlagRequired("template")
}
