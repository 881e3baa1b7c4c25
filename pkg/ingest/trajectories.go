package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

type trajectoryGroupXML struct {
	Trajectories []trajectoryXML `xml:"trajectories"`
}

type trajectoryXML struct {
	Seed   int        `xml:"seed"`
	Points []pointXML `xml:"point"`
}

type pointXML struct {
	Time          float64 `xml:"time"`
	ErrorEstimate float64 `xml:"errorEstimate"`
	Args          string  `xml:"args"`
}

// Trajectory is the sequence of incumbents of one seeded run.
type Trajectory struct {
	Seed   string
	Points []TrajectoryPoint
}

// TrajectoryPoint is an incumbent as written by Auto-WEKA, before its
// arguments are converted to a Weka command line.
type TrajectoryPoint struct {
	Time  float64
	Error float64
	Args  string
}

// ParseTrajectoryFile reads an Auto-WEKA trajectory group XML file.
func ParseTrajectoryFile(path string) ([]Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read trajectory file: %w", err)
	}
	var group trajectoryGroupXML
	if err := xml.Unmarshal(data, &group); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	out := make([]Trajectory, 0, len(group.Trajectories))
	for _, tr := range group.Trajectories {
		t := Trajectory{Seed: strconv.Itoa(tr.Seed)}
		for _, p := range tr.Points {
			t.Points = append(t.Points, TrajectoryPoint{
				Time:  p.Time,
				Error: p.ErrorEstimate,
				Args:  strings.TrimSpace(p.Args),
			})
		}
		out = append(out, t)
	}
	return out, nil
}

// ImportTrajectories parses every "*trajectories*" file of the experiment
// folders under experimentsDir and stores their points. Files of datasets
// not in datasets are skipped. A point whose arguments cannot be converted
// is stored with an empty configuration.
func (im *Importer) ImportTrajectories(ctx context.Context, experimentsDir string, datasets []string) (int, error) {
	entries, err := os.ReadDir(experimentsDir)
	if err != nil {
		return 0, fmt.Errorf("failed to list experiments: %w", err)
	}
	var folders []string
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, filepath.Join(experimentsDir, e.Name()))
		}
	}
	sort.Strings(folders)

	known := make(map[string]bool, len(datasets))
	for _, d := range datasets {
		known[d] = true
	}

	bar := im.progress(len(folders), "parsing trajectories")
	total := 0
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := im.importFolder(ctx, folder, known)
		if err != nil {
			return total, err
		}
		total += n
		bar.Add(1)
	}
	bar.Finish()
	return total, nil
}

func (im *Importer) importFolder(ctx context.Context, folder string, datasets map[string]bool) (int, error) {
	files, err := filepath.Glob(filepath.Join(folder, "*trajectories*"))
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		im.logger.Debug().Str("folder", folder).Msg("No trajectories found")
		return 0, nil
	}
	sort.Strings(files)

	total := 0
	for _, file := range files {
		key, err := models.ParseExperimentName(filepath.Base(file))
		if err != nil {
			im.logger.Warn().Err(err).Str("file", file).Msg("Skipping trajectory file")
			continue
		}
		if !datasets[key.Dataset] {
			continue
		}

		trajectories, err := ParseTrajectoryFile(file)
		if err != nil {
			return total, err
		}

		var points []models.TrajectoryPoint
		for _, tr := range trajectories {
			for _, p := range tr.Points {
				configuration, err := im.java.ConvertArguments(ctx, p.Args)
				if err != nil {
					im.logger.Warn().Err(err).Str("file", file).Float64("time", p.Time).
						Msg("Failed to convert trajectory arguments")
					configuration = ""
				}
				points = append(points, models.TrajectoryPoint{
					ExperimentKey: key,
					Seed:          tr.Seed,
					Time:          p.Time,
					Error:         p.Error,
					Configuration: configuration,
				})
			}
		}

		if err := im.store.InsertTrajectoryPoints(ctx, points); err != nil {
			return total, err
		}
		total += len(points)
	}
	im.logger.Info().Str("folder", filepath.Base(folder)).Int("points", total).Msg("Parsed trajectories")
	return total, nil
}

func (im *Importer) progress(n int, description string) *progressbar.ProgressBar {
	if im.Quiet {
		return progressbar.DefaultSilent(int64(n), description)
	}
	return progressbar.Default(int64(n), description)
}
