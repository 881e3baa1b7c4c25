package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gilchrisn/mcps-experiments/pkg/config"
	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

// failedPointError is the error recorded for random-search points that
// could not be evaluated on every fold.
const failedPointError = 1e6

// BestPoints asks GetBestFromTrajectoryGroupCSV for the best configuration
// of every selected run and writes the result lines to w. experimentsFolder
// is relative to the Auto-WEKA installation. With batches > 0 every batch of
// an adaptive run is evaluated. Runs whose evaluation fails are logged and
// skipped.
func (im *Importer) BestPoints(ctx context.Context, experimentsFolder string, sel config.Selection, batches int, w io.Writer) (int, error) {
	written := 0
	for _, dataset := range sel.Datasets {
		for _, strategy := range sel.Strategies {
			if strategy == models.StrategyDefault {
				continue
			}
			for _, generation := range sel.Generations {
				key := models.ExperimentKey{Dataset: dataset, Strategy: strategy, Generation: generation}
				for _, seed := range sel.Seeds {
					if err := ctx.Err(); err != nil {
						return written, err
					}
					n, err := im.bestPoint(ctx, experimentsFolder, key, seed, batches, w)
					written += n
					if err != nil {
						return written, err
					}
				}
			}
		}
	}
	return written, nil
}

func (im *Importer) bestPoint(ctx context.Context, experimentsFolder string, key models.ExperimentKey, seed string, batches int, w io.Writer) (int, error) {
	type job struct {
		file  string
		batch int
	}
	var jobs []job
	if batches > 0 {
		for b := 0; b < batches; b++ {
			jobs = append(jobs, job{
				file:  filepath.Join(experimentsFolder, key.FolderName(), fmt.Sprintf("batch%d", b), key.TrajectoryFileName(seed)),
				batch: b,
			})
		}
	} else {
		jobs = append(jobs, job{file: filepath.Join(experimentsFolder, key.FolderName(), key.TrajectoryFileName(seed)), batch: -1})
	}

	written := 0
	for _, j := range jobs {
		line, err := im.java.BestFromTrajectoryGroup(ctx, j.file, j.batch)
		if err != nil {
			im.logger.Warn().Err(err).Str("trajectory", j.file).Msg("Failed to get best point")
			continue
		}
		if j.batch >= 0 {
			line = fmt.Sprintf("%d,%s", j.batch, line)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

type randomPointXML struct {
	ArgString string `xml:"argstring"`
	Results   []struct {
		Instance string `xml:"instance"`
		Error    string `xml:"error"`
	} `xml:"instanceResult"`
}

// RandomPoint is one configuration evaluated by random search.
type RandomPoint struct {
	Configuration string
	Error         float64
	TestError     float64
	// Evaluations is the number of folds that were evaluated.
	Evaluations int
}

// ParseRandomPoint reads a random-search point file. The CV error is the
// mean over the folds and the "default" instance holds the test error. A
// point without exactly numFolds folds, or one that cannot be read, gets the
// failure error 1e6 and an empty configuration.
func ParseRandomPoint(path string, numFolds int) RandomPoint {
	failed := RandomPoint{Error: failedPointError, TestError: failedPointError}

	data, err := os.ReadFile(path)
	if err != nil {
		return failed
	}
	var px randomPointXML
	if err := xml.Unmarshal(data, &px); err != nil {
		return failed
	}

	p := RandomPoint{Configuration: strings.TrimSpace(px.ArgString)}
	sum := 0.0
	for _, r := range px.Results {
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Error), 64)
		if err != nil {
			failed.Evaluations = p.Evaluations
			return failed
		}
		if strings.TrimSpace(r.Instance) == "default" {
			p.TestError = v
			continue
		}
		sum += v
		p.Evaluations++
	}
	if p.Evaluations != numFolds || numFolds == 0 {
		failed.Evaluations = p.Evaluations
		return failed
	}
	p.Error = sum / float64(p.Evaluations)
	return p
}

// RandomPoints collects the best random-search point per seed of every RAND
// experiment folder under experimentsDir and writes them as result lines to
// w. The seed of a point is found through the hash logs in out/hashes.
func (im *Importer) RandomPoints(ctx context.Context, experimentsDir string, datasets []string, numFolds int, w io.Writer) (int, error) {
	entries, err := os.ReadDir(experimentsDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list experiments: %w", err)
	}
	known := make(map[string]bool, len(datasets))
	for _, d := range datasets {
		known[d] = true
	}

	written := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.Contains(e.Name(), "."+models.StrategyRandom+".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
		dataset, _, _ := strings.Cut(e.Name(), ".")
		if !known[dataset] {
			continue
		}

		folder := filepath.Join(experimentsDir, e.Name())
		n, err := im.randomExperiment(folder, numFolds, w)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (im *Importer) randomExperiment(folder string, numFolds int, w io.Writer) (int, error) {
	name := filepath.Base(folder)
	pointsDir := filepath.Join(folder, "points")
	groups, err := os.ReadDir(pointsDir)
	if err != nil {
		im.logger.Warn().Str("experiment", name).Msg("No points for this experiment")
		return 0, nil
	}

	hashes, err := loadHashLogs(filepath.Join(folder, "out", "hashes"))
	if err != nil {
		return 0, err
	}

	best := make(map[int]RandomPoint)
	evaluations := make(map[int]int)
	for _, g := range groups {
		if !g.IsDir() {
			continue
		}
		groupDir := filepath.Join(pointsDir, g.Name())
		points, err := os.ReadDir(groupDir)
		if err != nil {
			return 0, fmt.Errorf("failed to list points: %w", err)
		}
		for _, pf := range points {
			if pf.IsDir() {
				continue
			}
			point := ParseRandomPoint(filepath.Join(groupDir, pf.Name()), numFolds)
			hash, _, _ := strings.Cut(pf.Name(), ".")
			seed := hashes.seedOf(hash)
			if seed < 0 {
				im.logger.Warn().Str("point", hash).Msg("Seed not found for point")
			}

			if b, ok := best[seed]; !ok || point.Error < b.Error {
				best[seed] = point
			}
			evaluations[seed] += point.Evaluations
		}
	}

	seeds := make([]int, 0, len(best))
	for s := range best {
		seeds = append(seeds, s)
	}
	sort.Ints(seeds)

	for _, s := range seeds {
		p := best[s]
		if _, err := fmt.Fprintf(w, "%s, %d, 1, %d, 0, 0, 0, %f, %f, %s\n",
			name, s, evaluations[s], p.Error, p.TestError, p.Configuration); err != nil {
			return 0, err
		}
	}
	return len(seeds), nil
}

// hashLogs maps the log file of each seed to its contents.
type hashLogs map[string]string

func loadHashLogs(dir string) (hashLogs, error) {
	logs := make(hashLogs)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return logs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list hash logs: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read hash log: %w", err)
		}
		logs[e.Name()] = string(data)
	}
	return logs, nil
}

// seedOf returns the seed of the log that mentions hash, -1 when none does.
// Log files are named "<seed>.<anything>".
func (h hashLogs) seedOf(hash string) int {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !strings.Contains(h[name], hash) {
			continue
		}
		prefix, _, _ := strings.Cut(name, ".")
		if seed, err := strconv.Atoi(prefix); err == nil {
			return seed
		}
	}
	return -1
}

// DefaultBest is the best default-parameter method of one dataset and seed.
type DefaultBest struct {
	Dataset   string
	Seed      string
	Method    string
	Error     float64
	TestError float64
}

// DefaultPoints reads the errors of the default-parameter runs in dir, named
// "<dataset>.<method>.<validation>.<seed>.csv". It writes every error to
// "<dir>/<validation>.csv", picks the best method per dataset and seed, and
// writes those as DEFAULT result lines to w. Missing or unreadable errors
// count as +Inf and are written as NULL.
func DefaultPoints(dir string, datasets, methods, seeds []string, validation string, w io.Writer) ([]DefaultBest, error) {
	listing, err := os.Create(filepath.Join(dir, validation+".csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to create validation listing: %w", err)
	}
	defer listing.Close()

	var out []DefaultBest
	for _, d := range datasets {
		for _, s := range seeds {
			best := DefaultBest{Dataset: d, Seed: s, Error: math.Inf(1), TestError: math.Inf(1)}
			for _, m := range methods {
				e := readErrorFile(filepath.Join(dir, fmt.Sprintf("%s.%s.%s.%s.csv", d, m, validation, s)))
				if e < best.Error {
					best.Error = e
					best.Method = m
				}
				if _, err := fmt.Fprintf(listing, "%s,%s,%s,%.5f\n", d, m, s, e); err != nil {
					return nil, err
				}
			}
			if best.Method != "" {
				best.TestError = readErrorFile(filepath.Join(dir, fmt.Sprintf("%s.%s.Test.%s.csv", d, best.Method, s)))
			}

			key := models.ExperimentKey{Dataset: d, Strategy: models.StrategyDefault, Generation: models.GenerationCV}
			if _, err := fmt.Fprintf(w, "%s,%s,1,1,1,0,0,%s,%s,%s\n",
				key.FolderName(), s, nullable(best.Error), nullable(best.TestError), best.Method); err != nil {
				return nil, err
			}
			out = append(out, best)
		}
	}
	return out, nil
}

func readErrorFile(path string) float64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return math.Inf(1)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil || math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}

func nullable(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "NULL"
	}
	return fmt.Sprintf("%.5f", v)
}
