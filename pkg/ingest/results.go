// Package ingest collects optimization results and trajectories from the
// Auto-WEKA experiment folders into the results database.
package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
)

// resultFields is the number of comma separated fields of a result line
// after the optional batch prefix.
const resultFields = 10

// Java is the subset of the Auto-WEKA tools used during ingestion.
type Java interface {
	ConvertArguments(ctx context.Context, args string) (string, error)
	BestFromTrajectoryGroup(ctx context.Context, trajectoryFile string, batch int) (string, error)
	EvaluateConfiguration(ctx context.Context, seed int, trainFile, configuration string) (float64, error)
}

// Importer moves experiment output into the store.
type Importer struct {
	store  *store.Store
	java   Java
	logger zerolog.Logger
	// Quiet hides progress bars.
	Quiet bool
}

// NewImporter creates an importer writing to st.
func NewImporter(st *store.Store, java Java, logger zerolog.Logger) *Importer {
	return &Importer{
		store:  st,
		java:   java,
		logger: logger,
	}
}

// ParseResultLine reads one line written by GetBestFromTrajectoryGroupCSV:
//
//	[batch,]experiment,seed,num_trajectories,num_evaluations,total_evaluations,
//	memout_evaluations,timeout_evaluations,error,test_error,configuration
//
// The experiment may carry its "-dataset" folder suffix. NaN, NULL and
// infinite errors become missing values. The configuration is the remainder
// of the line, commas included.
func ParseResultLine(line string) (models.Result, error) {
	line = strings.TrimRight(line, "\r\n")
	var r models.Result

	first, rest, ok := strings.Cut(line, ",")
	if !ok {
		return r, fmt.Errorf("malformed result line %q", line)
	}
	if !strings.Contains(first, ".") {
		batch, err := strconv.Atoi(strings.TrimSpace(first))
		if err != nil {
			return r, fmt.Errorf("malformed batch %q in result line", first)
		}
		r.Batch = &batch
		line = rest
	}

	fields := strings.SplitN(line, ",", resultFields)
	if len(fields) < resultFields {
		return r, fmt.Errorf("result line has %d fields, want %d: %q", len(fields), resultFields, line)
	}
	for i := 0; i < resultFields-1; i++ {
		fields[i] = strings.TrimSpace(fields[i])
	}

	key, err := models.ParseExperimentName(fields[0])
	if err != nil {
		return r, err
	}
	r.ExperimentKey = key
	r.Seed = fields[1]
	if _, err := strconv.Atoi(r.Seed); err != nil {
		return r, fmt.Errorf("malformed seed %q in result line", r.Seed)
	}

	counts := []*int{&r.NumTrajectories, &r.NumEvaluations, &r.TotalEvaluations,
		&r.MemoutEvaluations, &r.TimeoutEvaluations}
	for i, dst := range counts {
		v, err := parseCount(fields[2+i])
		if err != nil {
			return r, err
		}
		*dst = v
	}

	if r.Error, err = parseError(fields[7]); err != nil {
		return r, err
	}
	if r.TestError, err = parseError(fields[8]); err != nil {
		return r, err
	}
	r.Configuration = strings.TrimSpace(fields[9])
	return r, nil
}

func parseCount(s string) (int, error) {
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed count %q in result line", s)
	}
	return int(f), nil
}

func parseError(s string) (*float64, error) {
	switch strings.ToLower(s) {
	case "", "nan", "null", "none":
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed error value %q in result line", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, nil
	}
	return &v, nil
}

// ReadResults parses every non-empty line of r.
func ReadResults(r io.Reader) ([]models.Result, error) {
	var out []models.Result
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		res, err := ParseResultLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, res)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return out, nil
}

// ImportOptions controls ImportResults.
type ImportOptions struct {
	// ConvertConfiguration runs the Auto-WEKA argument converter on each
	// configuration before storing it.
	ConvertConfiguration bool
}

// ImportResults loads a results file into the database and returns the
// number of rows written.
func (im *Importer) ImportResults(ctx context.Context, path string, opts ImportOptions) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open results file: %w", err)
	}
	defer f.Close()

	results, err := ReadResults(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}

	im.logger.Info().
		Str("file", path).
		Int("results", len(results)).
		Bool("convert", opts.ConvertConfiguration).
		Msg("Inserting results")

	if opts.ConvertConfiguration {
		for i := range results {
			converted, err := im.java.ConvertArguments(ctx, results[i].Configuration)
			if err != nil {
				return 0, fmt.Errorf("failed to convert configuration of %s: %w",
					results[i].RunName(results[i].Seed), err)
			}
			results[i].Configuration = converted
		}
	}

	if err := im.store.UpsertResults(ctx, results); err != nil {
		return 0, err
	}
	return len(results), nil
}
