package main

import (
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/report"
	"github.com/gilchrisn/mcps-experiments/pkg/stats"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

const topConfigurations = 5

var (
	tableFormat    string
	tableOutput    string
	bootstrapK     int
	bootstrapIters int
	bootstrapSeed  uint64
	parametersDir  string
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Write the HTML and LaTeX result tables",
}

func tablesDir() string {
	return outputDir(cfg.TablesDir())
}

// forEachKey calls fn for every experiment of the selection that has
// results.
func forEachKey(cmd *cobra.Command, st *store.Store, fn func(key models.ExperimentKey, results []models.Result) error) error {
	sel, err := selection()
	if err != nil {
		return err
	}
	for _, d := range sel.Datasets {
		for _, s := range sel.Strategies {
			for _, g := range sel.Generations {
				key := models.ExperimentKey{Dataset: d, Strategy: s, Generation: g}
				results, err := st.Results(cmd.Context(), key)
				if skippable(err) {
					logger.Debug().Str("experiment", key.Name()).Msg("No results")
					continue
				}
				if err != nil {
					return err
				}
				if err := fn(key, results); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

var configurationsTableCmd = &cobra.Command{
	Use:   "configurations",
	Short: "One page per experiment listing the components of every run",
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

		ctx := cmd.Context()
		return forEachKey(cmd, st, func(key models.ExperimentKey, results []models.Result) error {
			bestErr, bestTest, err := st.BestSeeds(ctx, key)
			if err != nil {
				return err
			}
			table := report.NewConfigurationsTable(ctx, parser, key, results, bestErr, bestTest)
			path := filepath.Join(tablesDir(), report.ConfigurationsFile(key))
			logger.Info().Str("file", path).Msg("Writing configurations table")
			return report.WriteFile(path, func(w io.Writer) error {
				return report.ConfigurationsPage(w, table, report.TrajectoryPlot(key))
			})
		})
	},
}

var topTableCmd = &cobra.Command{
	Use:   "top",
	Short: "One page per dataset with the best runs of every experiment",
	RunE: func(cmd *cobra.Command, args []string) error {
		sel, err := selection()
		if err != nil {
			return err
		}
		parser, err := newParser(cmd)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()
		for _, d := range sel.Datasets {
			var tables []report.ConfigurationsTable
			for _, s := range sel.Strategies {
				for _, g := range sel.Generations {
					key := models.ExperimentKey{Dataset: d, Strategy: s, Generation: g}
					results, err := st.TopResults(ctx, key, topConfigurations)
					if err != nil {
						return err
					}
					if len(results) == 0 {
						continue
					}
					tables = append(tables, report.NewConfigurationsTable(ctx, parser, key, results, results[0].Seed, store.NoSeed))
				}
			}
			if len(tables) == 0 {
				continue
			}
			path := filepath.Join(tablesDir(), report.TopConfigurationsFile(d))
			if err := report.WriteFile(path, func(w io.Writer) error {
				return report.TopConfigurationsPage(w, tables)
			}); err != nil {
				return err
			}
		}
		return nil
	},
}

var strategiesTableCmd = &cobra.Command{
	Use:   "strategies",
	Short: "One summary page per dataset and the index linking them",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		for _, d := range cfg.Datasets() {
			aggregates, err := st.Aggregates(cmd.Context(), d)
			if err != nil {
				return err
			}
			path := filepath.Join(tablesDir(), report.StrategiesFile(d))
			if err := report.WriteFile(path, func(w io.Writer) error {
				return report.StrategiesPage(w, d, aggregates)
			}); err != nil {
				return err
			}
		}
		return writeIndex()
	},
}

func writeIndex() error {
	return report.WriteFile(filepath.Join(tablesDir(), report.IndexFile), func(w io.Writer) error {
		return report.IndexPage(w, cfg.Datasets())
	})
}

var indexTableCmd = &cobra.Command{
	Use:   "index",
	Short: "The index page listing every dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeIndex()
	},
}

// indexOutput writes HTML tables to name in the tables directory and LaTeX
// to --output.
func indexOutput(cmd *cobra.Command, format report.Format, name string, render func(io.Writer) error) error {
	if format == report.FormatHTML && tableOutput == "" {
		return report.WriteFile(filepath.Join(tablesDir(), name), render)
	}
	w, done, err := output(cmd, tableOutput)
	if err != nil {
		return err
	}
	err = render(w)
	if cerr := done(); err == nil {
		err = cerr
	}
	return err
}

var indexLatexCmd = &cobra.Command{
	Use:   "index-latex",
	Short: "Minimum and maximum error of every strategy per dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(tableFormat)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		var rows []report.MinMaxRow
		for _, d := range cfg.Datasets() {
			aggregates, err := st.Aggregates(cmd.Context(), d)
			if err != nil {
				return err
			}
			rows = append(rows, report.NewMinMaxRow(d, aggregates))
		}
		return indexOutput(cmd, format, report.IndexMinMaxFile, func(w io.Writer) error {
			return report.IndexMinMax(w, rows, format)
		})
	},
}

var indexBootstrapCmd = &cobra.Command{
	Use:   "index-bootstrap",
	Short: "Bootstrapped best-of-k error of every strategy per dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(tableFormat)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		rng := rand.New(rand.NewPCG(bootstrapSeed, bootstrapSeed))
		var rows []report.BootstrapRow
		for _, d := range cfg.Datasets() {
			results, err := st.DatasetResults(cmd.Context(), d)
			if skippable(err) {
				results = nil
			} else if err != nil {
				return err
			}
			rows = append(rows, report.NewBootstrapRow(d, results, bootstrapK, bootstrapIters, rng))
		}
		return indexOutput(cmd, format, report.IndexBootstrapFile, func(w io.Writer) error {
			return report.IndexBootstrap(w, rows, format)
		})
	},
}

// bestResult is the run with the lowest error, if any.
func bestResult(results []models.Result) (models.Result, bool) {
	var best models.Result
	found := false
	for _, r := range results {
		if r.Error == nil {
			continue
		}
		if !found || *r.Error < *best.Error {
			best, found = r, true
		}
	}
	return best, found
}

var configurationsLatexCmd = &cobra.Command{
	Use:   "configurations-latex",
	Short: "LaTeX tables of the best configuration of every dataset",
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

		ctx := cmd.Context()
		var rows []report.BestConfiguration
		for _, d := range cfg.Datasets() {
			results, err := st.DatasetResults(ctx, d)
			if skippable(err) {
				continue
			}
			if err != nil {
				return err
			}
			best, ok := bestResult(results)
			if !ok {
				continue
			}
			p, err := parser.Parse(ctx, best.Configuration, best.Strategy != models.StrategyDefault)
			if err != nil {
				logger.Warn().Err(err).Str("dataset", d).Msg("Failed to parse best configuration")
				continue
			}
			rows = append(rows, report.BestConfiguration{Dataset: d, Pipeline: p})
		}
		w, done, err := output(cmd, tableOutput)
		if err != nil {
			return err
		}
		err = report.BestConfigurationsLatex(w, rows)
		if cerr := done(); err == nil {
			err = cerr
		}
		return err
	},
}

var parametersTableCmd = &cobra.Command{
	Use:   "parameters",
	Short: "Count the hyperparameters of every method search space",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := underHome(parametersDir)
		if err != nil {
			return err
		}
		params, err := report.ReadParameters(dir)
		if err != nil {
			return err
		}
		w, done, err := output(cmd, tableOutput)
		if err != nil {
			return err
		}
		err = report.ParametersLatex(w, params)
		if cerr := done(); err == nil {
			err = cerr
		}
		return err
	},
}

var flowMeasuresCmd = &cobra.Command{
	Use:   "flow-measures",
	Short: "Preprocessing usage and flow lengths of every optimised experiment",
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

		ctx := cmd.Context()
		var rows []report.FlowMeasuresRow
		err = forEachKey(cmd, st, func(key models.ExperimentKey, results []models.Result) error {
			if key.Strategy == models.StrategyDefault {
				return nil
			}
			var pipelines []*wekaopt.Pipeline
			for _, r := range results {
				p, err := parser.Parse(ctx, r.Configuration, true)
				if err != nil {
					logger.Warn().Err(err).Str("run", key.RunName(r.Seed)).Msg("Failed to parse configuration")
					continue
				}
				pipelines = append(pipelines, p)
			}
			m := stats.ComputeFlowMeasures(pipelines, cfg.NumberSeeds())
			logger.Debug().Str("experiment", key.Name()).Str("percent_used", report.PercentUsedLine(m)).Msg("Flow measures")
			rows = append(rows, report.FlowMeasuresRow{Key: key, Measures: m})
			return nil
		})
		if err != nil {
			return err
		}
		w, done, err := output(cmd, tableOutput)
		if err != nil {
			return err
		}
		err = report.FlowMeasuresCSV(w, rows)
		if cerr := done(); err == nil {
			err = cerr
		}
		return err
	},
}

func init() {
	tableCmd.AddCommand(configurationsTableCmd, topTableCmd, strategiesTableCmd, indexTableCmd,
		indexLatexCmd, indexBootstrapCmd, configurationsLatexCmd, parametersTableCmd, flowMeasuresCmd)

	addSelectionFlags(configurationsTableCmd, false)
	addSelectionFlags(topTableCmd, false)
	addSelectionFlags(flowMeasuresCmd, false)

	for _, cmd := range []*cobra.Command{indexLatexCmd, indexBootstrapCmd} {
		cmd.Flags().StringVar(&tableFormat, "format", string(report.FormatHTML),
			fmt.Sprintf("%s, %s or %s", report.FormatHTML, report.FormatLatexCV, report.FormatLatexTest))
	}
	for _, cmd := range []*cobra.Command{indexLatexCmd, indexBootstrapCmd, configurationsLatexCmd, parametersTableCmd, flowMeasuresCmd} {
		cmd.Flags().StringVarP(&tableOutput, "output", "o", "", "output file (default stdout, or the tables directory for HTML)")
	}
	indexBootstrapCmd.Flags().IntVar(&bootstrapK, "k", stats.DefaultBestOf, "runs per bootstrap sample")
	indexBootstrapCmd.Flags().IntVar(&bootstrapIters, "iterations", stats.DefaultIterations, "bootstrap samples")
	indexBootstrapCmd.Flags().Uint64Var(&bootstrapSeed, "rng-seed", 1, "seed of the bootstrap sampler")
	parametersTableCmd.Flags().StringVar(&parametersDir, "dir", "params", "directory of the <group>/<method>.params files")
}
