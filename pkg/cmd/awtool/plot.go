package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot"

	"github.com/gilchrisn/mcps-experiments/pkg/ingest"
	"github.com/gilchrisn/mcps-experiments/pkg/launch"
	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/plots"
	"github.com/gilchrisn/mcps-experiments/pkg/report"
	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

var (
	dpsStrategy  string
	scoresPlot   bool
	skipCrashes  bool
	rollingSize  int
	boxplotNames = []string{"error", "test_error"}
)

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Draw the result plots",
}

func plotsDir() string {
	return outputDir(cfg.PlotsDir())
}

// savePlot writes p under the plots directory.
func savePlot(p *plot.Plot, name string) error {
	path := filepath.Join(plotsDir(), name)
	logger.Info().Str("file", path).Msg("Saving plot")
	return plots.Save(p, path)
}

var trajectoriesPlotCmd = &cobra.Command{
	Use:   "trajectories",
	Short: "Incumbent error over time of every run, and its running minimum",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		opts := plots.TrajectoryOptions{Regression: cfg.IsRegression(), NumberSeeds: cfg.NumberSeeds()}
		limit := cfg.TimeLimit().Seconds()
		for _, d := range sel.Datasets {
			for _, s := range sel.Strategies {
				for _, g := range sel.Generations {
					key := models.ExperimentKey{Dataset: d, Strategy: s, Generation: g}
					if !key.HasTrajectory() {
						continue
					}
					points, err := st.TrajectoryPoints(cmd.Context(), key, limit)
					if err != nil {
						return err
					}
					if len(points) == 0 {
						logger.Debug().Str("experiment", key.Name()).Msg("No trajectory")
						continue
					}
					scatter, err := plots.TrajectoriesScatter(points, key.Name(), opts)
					if err != nil {
						return err
					}
					if err := savePlot(scatter, plots.TrajectoryScatterFile(key.Name())); err != nil {
						return err
					}
					aggregated, err := plots.TrajectoriesAggregated(points, key.Name(), opts)
					if err != nil {
						logger.Warn().Err(err).Str("experiment", key.Name()).Msg("Skipping aggregated trajectory")
						continue
					}
					if err := savePlot(aggregated, plots.TrajectoryAggregatedFile(key.Name())); err != nil {
						return err
					}
				}
			}
		}
		return nil
	},
}

var boxplotCmd = &cobra.Command{
	Use:   "boxplot",
	Short: "Error and test error of every strategy per dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		for _, d := range cfg.Datasets() {
			results, err := st.DatasetResults(cmd.Context(), d)
			if skippable(err) {
				continue
			}
			if err != nil {
				return err
			}
			for _, column := range boxplotNames {
				groups, err := plots.BoxplotGroups(results, column)
				if err != nil {
					return err
				}
				if len(groups) == 0 {
					continue
				}
				p, err := plots.Boxplot(d, groups)
				if err != nil {
					return err
				}
				if err := savePlot(p, report.BoxplotFile(column, d)); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

var cvTestCmd = &cobra.Command{
	Use:   "cv-test",
	Short: "CV error against test error of every CV-generation run",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := st.GenerationResults(cmd.Context(), models.GenerationCV)
		if err != nil {
			return err
		}
		p, err := plots.CVvsTest(results)
		if err != nil {
			return err
		}
		return savePlot(p, plots.CVvsTestFile)
	},
}

var cvDPSCmd = &cobra.Command{
	Use:   "cv-dps",
	Short: "CV error against DPS error, seed by seed, per dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validStrategy(dpsStrategy); err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		for _, d := range cfg.Datasets() {
			cv, err := st.Results(ctx, models.ExperimentKey{Dataset: d, Strategy: dpsStrategy, Generation: models.GenerationCV})
			if skippable(err) {
				continue
			}
			if err != nil {
				return err
			}
			dps, err := st.Results(ctx, models.ExperimentKey{Dataset: d, Strategy: dpsStrategy, Generation: models.GenerationDPS})
			if skippable(err) {
				continue
			}
			if err != nil {
				return err
			}
			pairs, err := plots.PairBySeed(cv, dps)
			if err != nil {
				logger.Warn().Err(err).Str("dataset", d).Msg("Skipping CV/DPS comparison")
				continue
			}
			p, err := plots.CVvsDPS(d, dpsStrategy, pairs)
			if err != nil {
				logger.Warn().Err(err).Str("dataset", d).Msg("Skipping CV/DPS comparison")
				continue
			}
			if err := savePlot(p, plots.CVvsDPSFile(d, dpsStrategy)); err != nil {
				return err
			}
		}
		return nil
	},
}

func validStrategy(s string) error {
	for _, known := range cfg.Strategies() {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("unknown strategy %q", s)
}

var distancesPlotCmd = &cobra.Command{
	Use:   "distances",
	Short: "Error variance against configuration dissimilarity of every experiment",
	RunE: func(cmd *cobra.Command, args []string) error {
		parser, err := newParser(cmd)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		points, err := distancePoints(cmd, st, parser)
		if err != nil {
			return err
		}
		return saveDistanceSummary(points)
	},
}

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Targets and predictions of the training and test data of every run",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		h, err := home()
		if err != nil {
			return err
		}
		opts := launch.OptionsFromConfig(cfg, h)
		for _, c := range launch.Grid(sel) {
			if !c.HasTrajectory() {
				continue
			}
			files := opts.TrainingPredictionFiles(c)
			testFile := filepath.Join(opts.ExperimentFolder(c.ExperimentKey), "predictions."+c.Seed+".csv")
			s, err := plots.ReadSignal(files.Output, testFile)
			if err != nil {
				logger.Warn().Err(err).Str("run", c.RunName(c.Seed)).Msg("Skipping signal")
				continue
			}
			p, err := plots.SignalPlot(s, c.RunName(c.Seed))
			if err != nil {
				return err
			}
			if err := savePlot(p, plots.SignalFile(c.RunName(c.Seed))); err != nil {
				return err
			}
		}
		return nil
	},
}

var subProcessLogCmd = &cobra.Command{
	Use:   "subprocess-log",
	Short: "Scores reported by the evaluation subprocess over time",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		dir, err := experimentsDir()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, c := range launch.Grid(sel) {
			run := c.RunName(c.Seed)
			path := filepath.Join(dir, c.FolderName(), "out", "logs", c.Seed+".log")
			points, err := ingest.ParseSubProcessLog(path)
			if err != nil {
				logger.Warn().Err(err).Str("run", run).Msg("Skipping log")
				continue
			}
			times := make([]float64, len(points))
			scores := make([]float64, len(points))
			for i, sp := range points {
				times[i], scores[i] = sp.Time, sp.Score
				fmt.Fprintf(out, "%s %g %g\n", run, sp.Time, sp.Score)
			}
			if !scoresPlot || len(points) == 0 {
				continue
			}
			p, err := plots.Scores(times, scores, run)
			if err != nil {
				logger.Warn().Err(err).Str("run", run).Msg("Skipping scores plot")
				continue
			}
			if err := savePlot(p, plots.ScoresFile(run)); err != nil {
				return err
			}
		}
		return nil
	},
}

var smacRunsCmd = &cobra.Command{
	Use:   "smac-runs",
	Short: "Every evaluation of the SMAC runs over time, per seed and as a rolling mean",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		dir, err := experimentsDir()
		if err != nil {
			return err
		}

		opts := plots.TrajectoryOptions{Regression: cfg.IsRegression(), NumberSeeds: cfg.NumberSeeds()}
		var keys []models.ExperimentKey
		for _, d := range sel.Datasets {
			for _, s := range sel.Strategies {
				if s != models.StrategySMAC {
					continue
				}
				for _, g := range sel.Generations {
					keys = append(keys, models.ExperimentKey{Dataset: d, Strategy: s, Generation: g})
				}
			}
		}
		for _, key := range keys {
			points, missing, err := ingest.SMACRuns(dir, key, sel.Seeds, skipCrashes)
			if err != nil {
				return err
			}
			for _, seed := range missing {
				logger.Debug().Str("run", key.RunName(seed)).Msg("No SMAC runs")
			}
			if len(points) == 0 {
				continue
			}
			individual, err := plots.TrajectoriesScatter(points, key.Name(), opts)
			if err != nil {
				return err
			}
			if err := savePlot(individual, plots.SMACRunsFile(key.Name())); err != nil {
				return err
			}
			rolling, err := plots.SMACRunsRolling(points, key.Name(), opts, rollingSize)
			if err != nil {
				logger.Warn().Err(err).Str("experiment", key.Name()).Msg("Skipping rolling SMAC runs")
				continue
			}
			if err := savePlot(rolling, plots.SMACRunsRollingFile(key.Name())); err != nil {
				return err
			}
		}
		return nil
	},
}

// flowchartFile names the flowchart of the best run of key.
func flowchartFile(key models.ExperimentKey, seed string) string {
	return filepath.Join(plotsDir(), "flowcharts", "flow."+key.RunName(seed)+".dot")
}

var flowCmd = &cobra.Command{
	Use:   "flow",
	Short: "Graphviz flowchart of the stages of the best configuration of every experiment",
	RunE: func(cmd *cobra.Command, args []string) error {
		parser, err := newParser(cmd)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		return forEachKey(cmd, st, func(key models.ExperimentKey, results []models.Result) error {
			best, ok := bestResult(results)
			if !ok {
				return nil
			}
			p, err := parser.Parse(cmd.Context(), best.Configuration, key.Strategy != models.StrategyDefault)
			if err != nil {
				logger.Warn().Err(err).Str("run", key.RunName(best.Seed)).Msg("Failed to parse best configuration")
				return nil
			}
			data, err := wekaopt.NewFlowchart(p).MarshalDOT()
			if err != nil {
				return err
			}
			path := flowchartFile(key, best.Seed)
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return err
			}
			logger.Info().Str("file", path).Msg("Saving flowchart")
			return os.WriteFile(path, data, 0644)
		})
	},
}

func init() {
	plotCmd.AddCommand(trajectoriesPlotCmd, boxplotCmd, cvTestCmd, cvDPSCmd, distancesPlotCmd, signalCmd,
		subProcessLogCmd, smacRunsCmd, flowCmd)

	addSelectionFlags(trajectoriesPlotCmd, false)
	addSelectionFlags(distancesPlotCmd, false)
	addSelectionFlags(signalCmd, true)
	addSelectionFlags(subProcessLogCmd, true)

	cvDPSCmd.Flags().StringVar(&dpsStrategy, "strategy", models.StrategySMAC, "strategy run with both generations")
	subProcessLogCmd.Flags().BoolVar(&scoresPlot, "plot", false, "also draw the scores")

	addSelectionFlags(smacRunsCmd, true)
	smacRunsCmd.Flags().BoolVar(&skipCrashes, "skip-crashes", false, "drop crashed and timed out evaluations")
	smacRunsCmd.Flags().IntVar(&rollingSize, "window", plots.RollingWindow, "evaluations averaged by the rolling mean")

	addSelectionFlags(flowCmd, false)
}
