package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

// CrashError is the response SMAC records for a crashed or timed out
// evaluation.
const CrashError = 100

const (
	smacErrorColumn = 3
	smacTimeColumn  = 12
)

var runsAndResultsPattern = regexp.MustCompile(`^runs_and_results-it(\d+)\.csv$`)

// ErrNoSMACRuns is returned when a SMAC state folder has no
// runs_and_results file.
var ErrNoSMACRuns = errors.New("no runs_and_results file")

// SMACStateDir is the SMAC state folder of one seeded run of key.
func SMACStateDir(experimentsDir string, key models.ExperimentKey, seed string) string {
	return filepath.Join(experimentsDir, key.FolderName(), "out", "autoweka", "state-run"+seed)
}

// LatestRunsAndResults returns the runs_and_results-it<N>.csv file of a SMAC
// state folder with the highest iteration.
func LatestRunsAndResults(stateDir string) (string, error) {
	entries, err := os.ReadDir(stateDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%s: %w", stateDir, ErrNoSMACRuns)
		}
		return "", err
	}

	latest, best := "", -1
	for _, e := range entries {
		m := runsAndResultsPattern.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		it, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if it > best {
			latest, best = e.Name(), it
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%s: %w", stateDir, ErrNoSMACRuns)
	}
	return filepath.Join(stateDir, latest), nil
}

// ReadSMACRuns reads the time and error of every evaluation in a SMAC
// runs_and_results CSV. With skipCrashes, evaluations at CrashError or above
// are dropped.
func ReadSMACRuns(path string, skipCrashes bool) ([]models.TrajectoryPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SMAC runs: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	var out []models.TrajectoryPoint
	header := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if header {
			header = false
			continue
		}
		if len(rec) <= smacTimeColumn {
			return nil, fmt.Errorf("%s: row has %d columns, want at least %d", path, len(rec), smacTimeColumn+1)
		}
		t, err := strconv.ParseFloat(strings.TrimSpace(rec[smacTimeColumn]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: malformed time %q", path, rec[smacTimeColumn])
		}
		e, err := strconv.ParseFloat(strings.TrimSpace(rec[smacErrorColumn]), 64)
		if err != nil {
			return nil, fmt.Errorf("%s: malformed error %q", path, rec[smacErrorColumn])
		}
		if skipCrashes && e >= CrashError {
			continue
		}
		out = append(out, models.TrajectoryPoint{Time: t, Error: e})
	}
	return out, nil
}

// SMACRuns collects the evaluations of every seed of key from the latest
// runs_and_results file of each seed's state folder. Seeds without such a
// file are returned in missing.
func SMACRuns(experimentsDir string, key models.ExperimentKey, seeds []string, skipCrashes bool) (points []models.TrajectoryPoint, missing []string, err error) {
	for _, seed := range seeds {
		path, err := LatestRunsAndResults(SMACStateDir(experimentsDir, key, seed))
		if errors.Is(err, ErrNoSMACRuns) {
			missing = append(missing, seed)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		runs, err := ReadSMACRuns(path, skipCrashes)
		if err != nil {
			return nil, nil, err
		}
		for _, pt := range runs {
			pt.ExperimentKey = key
			pt.Seed = seed
			points = append(points, pt)
		}
	}
	return points, missing, nil
}
