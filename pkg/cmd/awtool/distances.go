package main

import (
	"path/filepath"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/plots"
	"github.com/gilchrisn/mcps-experiments/pkg/similarity"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

const distanceSummaryFile = "_all.svg"

var (
	plotByConfiguration bool
	plotByError         bool
	perSeed             bool
	linkage             string
)

func distancesDir() string {
	return outputDir(cfg.DistancesDir())
}

// experimentDistances parses and compares the runs of every experiment in
// the selection, calling fn for those with at least one comparable run.
func experimentDistances(cmd *cobra.Command, st *store.Store, parser wekaopt.Parser, fn func(models.ExperimentKey, []similarity.Entry, similarity.Distances) error) error {
	analyzer := similarity.NewAnalyzer(parser, logger)
	return forEachKey(cmd, st, func(key models.ExperimentKey, results []models.Result) error {
		entries, err := analyzer.Entries(cmd.Context(), results)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			logger.Debug().Str("experiment", key.Name()).Msg("No comparable runs")
			return nil
		}
		return fn(key, entries, similarity.Compute(entries))
	})
}

// distancePoints summarises every experiment of the selection by its mean
// configuration and error distances.
func distancePoints(cmd *cobra.Command, st *store.Store, parser wekaopt.Parser) ([]plots.DistancePoint, error) {
	var points []plots.DistancePoint
	err := experimentDistances(cmd, st, parser, func(key models.ExperimentKey, _ []similarity.Entry, d similarity.Distances) error {
		points = append(points, plots.DistancePoint{Key: key, Dissimilarity: d.MeanConfiguration, Variance: d.MeanError})
		return nil
	})
	return points, err
}

func saveDistanceSummary(points []plots.DistancePoint) error {
	p, err := plots.Distances(points, cfg.Datasets())
	if err != nil {
		return err
	}
	path := filepath.Join(distancesDir(), distanceSummaryFile)
	logger.Info().Str("file", path).Msg("Saving distance summary")
	return plots.Save(p, path)
}

func saveDendrogram(m mat.Symmetric, labels []string, method similarity.Method, title, path string) error {
	z, err := similarity.Cluster(m, method)
	if err != nil {
		return err
	}
	p, err := plots.Dendrogram(similarity.Dendrogram(z), labels, title)
	if err != nil {
		return err
	}
	return plots.Save(p, path)
}

func savePerSeed(key models.ExperimentKey, entries []similarity.Entry) error {
	dir := filepath.Join(distancesDir(), "by_configuration")
	for _, s := range similarity.PerSeed(entries) {
		name := key.RunName(s.Seed)
		if err := similarity.SaveCSV(filepath.Join(dir, name+".csv"), s.Similarity); err != nil {
			return err
		}
		p, err := plots.SimilarityMatrix(s.Similarity, name)
		if err != nil {
			return err
		}
		if err := plots.Save(p, filepath.Join(dir, name+".png")); err != nil {
			return err
		}
		logger.Info().Str("run", name).Float64("mean_similarity", s.Mean).Msg("Batch similarity")
	}
	return nil
}

var distancesCmd = &cobra.Command{
	Use:   "distances",
	Short: "Configuration and error distance matrices of every experiment",
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := similarity.ParseMethod(linkage)
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

		byConfiguration := filepath.Join(distancesDir(), "by_configuration")
		byError := filepath.Join(distancesDir(), "by_error")

		var points []plots.DistancePoint
		err = experimentDistances(cmd, st, parser, func(key models.ExperimentKey, entries []similarity.Entry, d similarity.Distances) error {
			name := key.Name()
			if err := similarity.SaveCSV(filepath.Join(byConfiguration, name+".csv"), d.Configuration); err != nil {
				return err
			}
			if err := similarity.SaveCSV(filepath.Join(byError, name+".csv"), d.Error); err != nil {
				return err
			}
			points = append(points, plots.DistancePoint{Key: key, Dissimilarity: d.MeanConfiguration, Variance: d.MeanError})
			logger.Info().Str("experiment", name).
				Float64("mean_configuration", d.MeanConfiguration).
				Float64("mean_error", d.MeanError).
				Msg("Distances computed")

			if len(entries) > 1 {
				if plotByConfiguration {
					if err := saveDendrogram(d.Configuration, d.Labels, method, name, filepath.Join(byConfiguration, name+".png")); err != nil {
						return err
					}
				}
				if plotByError {
					if err := saveDendrogram(d.Error, d.Labels, method, name, filepath.Join(byError, name+".png")); err != nil {
						return err
					}
				}
			}
			if perSeed {
				return savePerSeed(key, entries)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(points) == 0 {
			logger.Warn().Msg("No experiment to summarise")
			return nil
		}
		return saveDistanceSummary(points)
	},
}

func init() {
	addSelectionFlags(distancesCmd, false)
	f := distancesCmd.Flags()
	f.BoolVar(&plotByConfiguration, "plot-by-configuration", false, "draw the configuration dendrogram of every experiment")
	f.BoolVar(&plotByError, "plot-by-error", false, "draw the error dendrogram of every experiment")
	f.BoolVar(&perSeed, "per-seed", false, "batch similarity of every adaptive run")
	f.StringVar(&linkage, "linkage", string(similarity.Average), "dendrogram linkage: single, complete or average")
}
