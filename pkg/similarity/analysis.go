package similarity

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

// Entry is a result reduced to what the distance computations compare.
type Entry struct {
	Seed  string   `json:"seed"`
	Batch *int     `json:"batch,omitempty"`
	Error float64  `json:"error"`
	Flow  []string `json:"flow"`
	Label string   `json:"label"`
}

// Label renders "#seed (error) flow" with the flow from its last stage to
// its first.
func Label(seed string, err float64, flow []string) string {
	return fmt.Sprintf("#%s (%.2f) %s", seed, err, wekaopt.FlowString(flow))
}

// Analyzer turns stored results into comparable flows.
type Analyzer struct {
	parser wekaopt.Parser
	logger zerolog.Logger
}

// NewAnalyzer creates an analyzer that reads configurations with parser.
func NewAnalyzer(parser wekaopt.Parser, logger zerolog.Logger) *Analyzer {
	return &Analyzer{parser: parser, logger: logger}
}

// Entries parses the configuration of every result. Results without an
// error or with an unreadable configuration are skipped.
func (a *Analyzer) Entries(ctx context.Context, results []models.Result) ([]Entry, error) {
	out := make([]Entry, 0, len(results))
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.Error == nil {
			a.logger.Debug().Str("run", r.RunName(r.Seed)).Msg("Skipping result without error")
			continue
		}
		p, err := a.parser.Parse(ctx, r.Configuration, true)
		if err != nil {
			a.logger.Warn().Err(err).Str("run", r.RunName(r.Seed)).Msg("Skipping unreadable configuration")
			continue
		}
		flow := p.Flow()
		out = append(out, Entry{
			Seed:  r.Seed,
			Batch: r.Batch,
			Error: *r.Error,
			Flow:  flow,
			Label: Label(r.Seed, *r.Error, flow),
		})
	}
	return out, nil
}

// Distances is the configuration and error dissimilarity of a set of runs.
type Distances struct {
	Labels        []string      `json:"labels"`
	Configuration *mat.SymDense `json:"-"`
	Error         *mat.SymDense `json:"-"`
	// MeanConfiguration and MeanError summarise the two matrices.
	MeanConfiguration float64 `json:"meanConfiguration"`
	MeanError         float64 `json:"meanError"`
}

// Compute builds both distance matrices for entries.
func Compute(entries []Entry) Distances {
	flows := make([][]string, len(entries))
	errs := make([]float64, len(entries))
	labels := make([]string, len(entries))
	for i, e := range entries {
		flows[i] = e.Flow
		errs[i] = e.Error
		labels[i] = e.Label
	}
	d := Distances{
		Labels:        labels,
		Configuration: ConfigurationDistance(flows),
		Error:         ErrorDistance(errs),
	}
	d.MeanConfiguration = MeanDistance(d.Configuration)
	d.MeanError = MeanDistance(d.Error)
	return d
}

// SeedSimilarity is the batch-by-batch configuration similarity of one
// adaptive run.
type SeedSimilarity struct {
	Seed       string        `json:"seed"`
	Labels     []string      `json:"labels"`
	Similarity *mat.SymDense `json:"-"`
	Mean       float64       `json:"mean"`
}

// PerSeed groups entries by seed, in numeric seed order, and computes the
// similarity of the batches of each seed.
func PerSeed(entries []Entry) []SeedSimilarity {
	groups := make(map[string][]Entry)
	for _, e := range entries {
		groups[e.Seed] = append(groups[e.Seed], e)
	}
	seeds := make([]string, 0, len(groups))
	for s := range groups {
		seeds = append(seeds, s)
	}
	sort.Slice(seeds, func(i, j int) bool {
		a, errA := strconv.Atoi(seeds[i])
		b, errB := strconv.Atoi(seeds[j])
		if errA != nil || errB != nil {
			return seeds[i] < seeds[j]
		}
		return a < b
	})

	out := make([]SeedSimilarity, 0, len(seeds))
	for _, s := range seeds {
		group := groups[s]
		flows := make([][]string, len(group))
		labels := make([]string, len(group))
		for i, e := range group {
			flows[i] = e.Flow
			labels[i] = e.Label
		}
		sim := ConfigurationSimilarity(flows)
		out = append(out, SeedSimilarity{Seed: s, Labels: labels, Similarity: sim, Mean: MeanDistance(sim)})
	}
	return out
}

// SaveCSV writes m to path, creating its directory.
func SaveCSV(path string, m mat.Matrix) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteCSV(f, m); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
