package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/mcps-experiments/pkg/ingest"
	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
)

var (
	dbCreateTables         bool
	dbInsertDatasets       bool
	dbInsertExperiments    bool
	dbInsertFile           string
	dbConvertConfiguration bool
	dbPretend              bool
	dbAdaptive             bool

	trajectoriesRecreate bool

	pointsBatches int
	pointsOutput  string

	defaultPointsDir string

	fullCVRepetitions int

	testErrorsUpdate bool

	quiet bool
)

// newImporter opens the store and, when needed, the Java tools behind it.
func newImporter(cmd *cobra.Command, java bool) (*ingest.Importer, *store.Store, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	var tools ingest.Java
	if java {
		runner, err := newRunner(cmd)
		if err != nil {
			st.Close()
			return nil, nil, err
		}
		tools = runner
	}
	im := ingest.NewImporter(st, tools, logger)
	im.Quiet = quiet
	return im, st, nil
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Create the results database and load result files into it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		im, st, err := newImporter(cmd, dbConvertConfiguration)
		if err != nil {
			return err
		}
		defer st.Close()
		if dbPretend {
			st.SetPretend(cmd.OutOrStdout())
		}

		if dbCreateTables {
			if err := st.CreateTables(ctx, dbAdaptive); err != nil {
				return err
			}
		}
		if dbInsertDatasets {
			datasets := make([]models.Dataset, 0, len(cfg.Datasets()))
			for _, d := range cfg.Datasets() {
				datasets = append(datasets, models.NewDataset(d))
			}
			if err := st.InsertDatasets(ctx, datasets); err != nil {
				return err
			}
		}
		if dbInsertExperiments {
			var keys []models.ExperimentKey
			for _, d := range cfg.Datasets() {
				for _, s := range cfg.Strategies() {
					for _, g := range cfg.Generations() {
						keys = append(keys, models.ExperimentKey{Dataset: d, Strategy: s, Generation: g})
					}
				}
			}
			if err := st.InsertExperiments(ctx, keys); err != nil {
				return err
			}
		}
		if dbInsertFile != "" {
			n, err := im.ImportResults(ctx, dbInsertFile, ingest.ImportOptions{ConvertConfiguration: dbConvertConfiguration})
			if err != nil {
				return err
			}
			logger.Info().Int("results", n).Str("file", dbInsertFile).Msg("Results inserted")
		}
		return nil
	},
}

var trajectoriesCmd = &cobra.Command{
	Use:   "trajectories",
	Short: "Load every trajectory file of the experiments folder",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dir, err := experimentsDir()
		if err != nil {
			return err
		}
		im, st, err := newImporter(cmd, true)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.CreateTrajectoriesTable(ctx, trajectoriesRecreate); err != nil {
			return err
		}
		n, err := im.ImportTrajectories(ctx, dir, cfg.Datasets())
		if err != nil {
			return err
		}
		logger.Info().Int("points", n).Msg("Trajectories loaded")
		return nil
	},
}

var bestPointsCmd = &cobra.Command{
	Use:   "best-points",
	Short: "Extract the best configuration of every run as result lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		im, st, err := newImporter(cmd, true)
		if err != nil {
			return err
		}
		defer st.Close()

		w, done, err := output(cmd, pointsOutput)
		if err != nil {
			return err
		}
		n, err := im.BestPoints(cmd.Context(), cfg.ExperimentsFolder(), sel, pointsBatches, w)
		if cerr := done(); err == nil {
			err = cerr
		}
		logger.Info().Int("lines", n).Msg("Best points extracted")
		return err
	},
}

var randomPointsCmd = &cobra.Command{
	Use:   "random-points",
	Short: "Extract the best random-search point of every RAND run",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := experimentsDir()
		if err != nil {
			return err
		}
		im, st, err := newImporter(cmd, false)
		if err != nil {
			return err
		}
		defer st.Close()

		w, done, err := output(cmd, pointsOutput)
		if err != nil {
			return err
		}
		n, err := im.RandomPoints(cmd.Context(), dir, cfg.Datasets(), cfg.NumFolds(), w)
		if cerr := done(); err == nil {
			err = cerr
		}
		logger.Info().Int("lines", n).Msg("Random points extracted")
		return err
	},
}

var defaultPointsCmd = &cobra.Command{
	Use:       "default-points <CV|Test>",
	Short:     "Pick the best default-parameter method per dataset and seed",
	Args:      cobra.ExactValidArgs(1),
	ValidArgs: []string{"CV", "Test"},
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := underHome(defaultPointsDir)
		if err != nil {
			return err
		}
		w, done, err := output(cmd, pointsOutput)
		if err != nil {
			return err
		}
		best, err := ingest.DefaultPoints(dir, cfg.Datasets(), cfg.Methods(), cfg.Seeds(), args[0], w)
		if cerr := done(); err == nil {
			err = cerr
		}
		logger.Info().Int("lines", len(best)).Str("validation", args[0]).Msg("Default points extracted")
		return err
	},
}

var checkCVCmd = &cobra.Command{
	Use:   "check-cv",
	Short: "Compare stored SMAC errors with their validation logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		dir, err := experimentsDir()
		if err != nil {
			return err
		}
		im, st, err := newImporter(cmd, false)
		if err != nil {
			return err
		}
		defer st.Close()

		mismatches, err := im.CheckCVErrors(cmd.Context(), dir, sel, cfg.NumFolds())
		if err != nil {
			return err
		}
		for _, m := range mismatches {
			fmt.Fprintln(cmd.OutOrStdout(), m.String())
		}
		logger.Info().Int("mismatches", len(mismatches)).Msg("CV errors checked")
		return nil
	},
}

var fullCVCmd = &cobra.Command{
	Use:   "full-cv",
	Short: "Store the median of repeated cross-validations of every run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		sel, err := selection()
		if err != nil {
			return err
		}
		datasets, err := underHome(cfg.DatasetsFolder())
		if err != nil {
			return err
		}
		im, st, err := newImporter(cmd, true)
		if err != nil {
			return err
		}
		defer st.Close()

		total := 0
		for _, d := range sel.Datasets {
			for _, s := range sel.Strategies {
				for _, g := range sel.Generations {
					key := models.ExperimentKey{Dataset: d, Strategy: s, Generation: g}
					n, err := im.FullCV(ctx, key, filter.Seed, datasets, fullCVRepetitions)
					if err != nil {
						if ctx.Err() != nil {
							return err
						}
						logger.Warn().Err(err).Str("experiment", key.Name()).Msg("Full CV failed")
						continue
					}
					total += n
				}
			}
		}
		logger.Info().Int("runs", total).Msg("Full CV errors stored")
		return nil
	},
}

var testErrorsCmd = &cobra.Command{
	Use:   "test-errors",
	Short: "Recompute test errors from the prediction files of every run",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		dir, err := experimentsDir()
		if err != nil {
			return err
		}
		im, st, err := newImporter(cmd, false)
		if err != nil {
			return err
		}
		defer st.Close()

		checks, err := im.TestErrors(cmd.Context(), dir, sel, cfg.IsRegression(), testErrorsUpdate)
		if err != nil {
			return err
		}
		differ := 0
		for _, c := range checks {
			if c.Differs() {
				differ++
			}
			fmt.Fprintln(cmd.OutOrStdout(), c.String())
		}
		logger.Info().Int("runs", len(checks)).Int("differing", differ).Bool("updated", testErrorsUpdate).Msg("Test errors recomputed")
		return nil
	},
}

func init() {
	f := dbCmd.Flags()
	f.BoolVar(&dbCreateTables, "create-tables", false, "create the datasets, experiments and results tables")
	f.BoolVar(&dbInsertDatasets, "insert-datasets", false, "register the configured datasets")
	f.BoolVar(&dbInsertExperiments, "insert-experiments", false, "register every dataset/strategy/generation")
	f.StringVar(&dbInsertFile, "insert", "", "results file to insert")
	f.BoolVar(&dbConvertConfiguration, "convert-configuration", false, "convert configurations with WekaArgumentConverter")
	f.BoolVar(&dbPretend, "pretend", false, "print the SQL instead of running it")
	f.BoolVar(&dbAdaptive, "adaptive", false, "create the results table with a batch column")

	trajectoriesCmd.Flags().BoolVar(&trajectoriesRecreate, "recreate", false, "drop the trajectories table first")
	trajectoriesCmd.Flags().BoolVar(&quiet, "quiet", false, "hide progress bars")

	addSelectionFlags(bestPointsCmd, true)
	bestPointsCmd.Flags().IntVar(&pointsBatches, "batches", 0, "evaluate every batch of adaptive runs")
	for _, cmd := range []*cobra.Command{bestPointsCmd, randomPointsCmd, defaultPointsCmd} {
		cmd.Flags().StringVarP(&pointsOutput, "output", "o", "", "results file (default stdout)")
	}
	defaultPointsCmd.Flags().StringVar(&defaultPointsDir, "dir", filepath.Join("default", "results"), "directory of the default-parameter error files")

	addSelectionFlags(checkCVCmd, true)

	addSelectionFlags(fullCVCmd, true)
	fullCVCmd.Flags().IntVar(&fullCVRepetitions, "repetitions", ingest.DefaultRepetitions, "cross-validations per run")

	addSelectionFlags(testErrorsCmd, true)
	testErrorsCmd.Flags().BoolVar(&testErrorsUpdate, "update", false, "store the recomputed test errors that differ")
}
