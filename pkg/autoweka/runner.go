package autoweka

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

// Java entry points used by the tooling.
const (
	ClassArgumentConverter = "autoweka.WekaArgumentConverter"
	ClassExperiment        = "autoweka.ExperimentConstructor"
	ClassBestFromGroup     = "autoweka.tools.GetBestFromTrajectoryGroupCSV"
	ClassFilteredModel     = "weka.classifiers.meta.MyFilteredClassifier"
	ClassWekaUtils         = "weka.core.Utils"
	ClassPredictionCSV     = "weka.classifiers.evaluation.output.prediction.CSV"
)

// Runner builds and runs java command lines against autoweka.jar.
type Runner struct {
	exec    Executor
	java    string
	home    string
	maxHeap string
	logger  zerolog.Logger
}

// NewRunner creates a runner for the installation in home (AUTOWEKA_PATH).
func NewRunner(exec Executor, java, home, maxHeap string, logger zerolog.Logger) *Runner {
	return &Runner{
		exec:    exec,
		java:    java,
		home:    home,
		maxHeap: maxHeap,
		logger:  logger,
	}
}

// Home is the Auto-WEKA installation directory.
func (r *Runner) Home() string { return r.home }

// Jar is the path of autoweka.jar.
func (r *Runner) Jar() string { return filepath.Join(r.home, "autoweka.jar") }

func (r *Runner) run(ctx context.Context, class string, args ...string) (string, error) {
	full := make([]string, 0, len(args)+4)
	if r.maxHeap != "" {
		full = append(full, "-Xmx"+r.maxHeap)
	}
	full = append(full, "-cp", r.Jar(), class)
	full = append(full, args...)

	r.logger.Debug().Str("command", CommandLine(r.java, full...)).Msg("Running java")
	return r.exec.Output(ctx, r.home, r.java, full...)
}

// ConvertArguments turns Auto-WEKA trajectory arguments into a Weka
// command line.
func (r *Runner) ConvertArguments(ctx context.Context, args string) (string, error) {
	out, err := r.run(ctx, ClassArgumentConverter, args)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ConstructExperiment builds the experiment folders described by a batch file.
func (r *Runner) ConstructExperiment(ctx context.Context, batchFile string) error {
	_, err := r.run(ctx, ClassExperiment, batchFile)
	return err
}

// BestFromTrajectoryGroup evaluates the incumbent of a trajectory group and
// returns its CSV result line. batch < 0 means a non-adaptive run.
func (r *Runner) BestFromTrajectoryGroup(ctx context.Context, trajectoryFile string, batch int) (string, error) {
	args := []string{trajectoryFile}
	if batch >= 0 {
		args = append(args, strconv.Itoa(batch))
	}
	out, err := r.run(ctx, ClassBestFromGroup, args...)
	if err != nil {
		return "", err
	}
	line := lastLine(out, func(s string) bool { return strings.Count(s, ",") >= 9 })
	if line == "" {
		return "", fmt.Errorf("no result line in output of %s", ClassBestFromGroup)
	}
	return line, nil
}

// EvaluateConfiguration runs one seeded cross-validation of configuration on
// trainFile and returns its root mean squared error.
func (r *Runner) EvaluateConfiguration(ctx context.Context, seed int, trainFile, configuration string) (float64, error) {
	opts, err := wekaopt.SplitOptions(configuration)
	if err != nil {
		return 0, err
	}
	args := append([]string{"-s", strconv.Itoa(seed), "-o", "-t", trainFile}, opts...)
	out, err := r.run(ctx, ClassFilteredModel, args...)
	if err != nil {
		return 0, err
	}
	return ParseRootMeanSquaredError(out)
}

// GeneratePredictions applies a trained model to dataFile and writes the
// per-instance predictions as CSV to outFile.
func (r *Runner) GeneratePredictions(ctx context.Context, modelFile, dataFile, outFile string) error {
	_, err := r.run(ctx, ClassFilteredModel,
		"-l", modelFile,
		"-T", dataFile,
		"-classifications", ClassPredictionCSV+" -file "+outFile)
	return err
}

// ParseOptions prints the stage breakdown of configuration using Weka's
// own option parser.
func (r *Runner) ParseOptions(ctx context.Context, configuration string) (string, error) {
	opts, err := wekaopt.SplitOptions(configuration)
	if err != nil {
		return "", err
	}
	return r.run(ctx, ClassWekaUtils, append([]string{"parseOptions"}, opts...)...)
}

// ParseRootMeanSquaredError reads the figure of the last
// "Root mean squared error" line of a Weka evaluation summary.
func ParseRootMeanSquaredError(output string) (float64, error) {
	line := lastLine(output, func(s string) bool { return strings.Contains(s, "Root mean squared error") })
	if line == "" {
		return 0, fmt.Errorf("no root mean squared error in weka output")
	}
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return 0, fmt.Errorf("unexpected error line %q", line)
	}
	v, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse error value %q: %w", fields[4], err)
	}
	return v, nil
}

func lastLine(output string, match func(string) bool) string {
	var found string
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && match(line) {
			found = line
		}
	}
	return found
}
