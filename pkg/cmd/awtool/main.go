// Command awtool launches Auto-WEKA experiments on the cluster, loads their
// output into SQLite and reports on the results.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/mcps-experiments/pkg/autoweka"
	"github.com/gilchrisn/mcps-experiments/pkg/config"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

var (
	configFile string
	verbose    bool
	dbFile     string
	javaParser bool
	dryRun     bool

	filter config.Filter

	cfg    *config.Config
	logger zerolog.Logger
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("awtool failed")
	}
}

var rootCmd = &cobra.Command{
	Use:   "awtool",
	Short: "Auto-WEKA MCPS experiment tooling",
	Long: `awtool drives Auto-WEKA multi-component predictive system experiments:

  - launch optimisation runs on the cluster through qsub
  - load trajectories and best configurations into a SQLite store
  - write the HTML/LaTeX tables and the plots that compare strategies`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.NewConfig()
		if configFile != "" {
			if err := cfg.LoadFromFile(configFile); err != nil {
				return err
			}
		}
		if verbose {
			cfg.Set("logging.level", "debug")
		}
		if dbFile != "" {
			cfg.Set("paths.database_file", dbFile)
		}
		logger = cfg.CreateLogger()
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "configuration file (yaml, toml or json)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.StringVar(&dbFile, "db", "", "results database (default from configuration)")
	flags.BoolVar(&javaParser, "java-parser", false, "parse configurations with weka.core.Utils instead of the built-in parser")
	flags.BoolVar(&dryRun, "dry-run", false, "print Java commands instead of running them")

	rootCmd.AddCommand(dbCmd, trajectoriesCmd, bestPointsCmd, randomPointsCmd, defaultPointsCmd,
		checkCVCmd, fullCVCmd, testErrorsCmd, launchCmd, launchDefaultsCmd, launchCVCmd, predictionsCmd,
		createExperimentsCmd, tableCmd, plotCmd, distancesCmd, serveCmd)
}

// addSelectionFlags registers the grid filters of cmd.
func addSelectionFlags(cmd *cobra.Command, seed bool) {
	flags := cmd.Flags()
	flags.StringVar(&filter.Dataset, "dataset", "", "only this dataset")
	flags.StringVar(&filter.Strategy, "strategy", "", "only this strategy")
	flags.StringVar(&filter.Generation, "generation", "", "only this generation")
	if seed {
		flags.StringVar(&filter.Seed, "seed", "", "only this seed")
	}
}

func selection() (config.Selection, error) {
	return cfg.Select(filter)
}

// home is the Auto-WEKA installation directory.
func home() (string, error) {
	return cfg.AutowekaPath()
}

func underHome(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	h, err := home()
	if err != nil {
		return "", err
	}
	return filepath.Join(h, p), nil
}

func experimentsDir() (string, error) {
	return underHome(cfg.ExperimentsFolder())
}

// outputDir appends the configured suffix to a tables, plots or distances
// directory.
func outputDir(dir string) string {
	return dir + cfg.Suffix()
}

func openStore() (*store.Store, error) {
	st, err := store.Open(cfg.DatabaseFile())
	if err != nil {
		return nil, err
	}
	return st, nil
}

func executor(w io.Writer) autoweka.Executor {
	if dryRun {
		return autoweka.DryRunExecutor{Out: w}
	}
	return autoweka.ExecExecutor{}
}

func newRunner(cmd *cobra.Command) (*autoweka.Runner, error) {
	h, err := home()
	if err != nil {
		return nil, err
	}
	return autoweka.NewRunner(executor(cmd.OutOrStdout()), cfg.JavaBinary(), h, cfg.JavaMaxHeap(), logger), nil
}

// newParser returns the configuration parser selected by --java-parser.
func newParser(cmd *cobra.Command) (wekaopt.Parser, error) {
	if !javaParser {
		return wekaopt.NativeParser{}, nil
	}
	runner, err := newRunner(cmd)
	if err != nil {
		return nil, fmt.Errorf("java parser: %w", err)
	}
	return wekaopt.NewJavaParser(runner), nil
}

// output opens path for writing, or returns stdout for "" and "-".
func output(cmd *cobra.Command, path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return cmd.OutOrStdout(), func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// skippable reports whether err only means a grid cell has no data.
func skippable(err error) bool {
	return errors.Is(err, store.ErrNoResults)
}
