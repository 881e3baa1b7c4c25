package autoweka

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	dir  string
	name string
	args []string
}

type fakeExecutor struct {
	calls  []call
	output string
	err    error
}

func (f *fakeExecutor) Output(_ context.Context, dir, name string, args ...string) (string, error) {
	f.calls = append(f.calls, call{dir: dir, name: name, args: args})
	return f.output, f.err
}

func newTestRunner(f *fakeExecutor) *Runner {
	return NewRunner(f, "/jvm/bin/java", "/opt/autoweka", "2000M", zerolog.Nop())
}

func TestConvertArguments(t *testing.T) {
	f := &fakeExecutor{output: "weka.classifiers.trees.J48 -C 0.25\n"}
	r := newTestRunner(f)

	out, err := r.ConvertArguments(context.Background(), "-targetclass weka.classifiers.trees.J48 -C 0.25")
	require.NoError(t, err)
	assert.Equal(t, "weka.classifiers.trees.J48 -C 0.25", out)

	require.Len(t, f.calls, 1)
	c := f.calls[0]
	assert.Equal(t, "/opt/autoweka", c.dir)
	assert.Equal(t, "/jvm/bin/java", c.name)
	assert.Equal(t, []string{"-Xmx2000M", "-cp", "/opt/autoweka/autoweka.jar", ClassArgumentConverter,
		"-targetclass weka.classifiers.trees.J48 -C 0.25"}, c.args)
}

func TestBestFromTrajectoryGroup(t *testing.T) {
	f := &fakeExecutor{output: "loading...\nabalone.SMAC.CV-abalone,0,1,120,130,0,2,71.5,72.0,weka.classifiers.trees.J48 -C 0.25\n"}
	r := newTestRunner(f)

	line, err := r.BestFromTrajectoryGroup(context.Background(), "x.trajectories.0", 3)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "abalone.SMAC.CV-abalone,0,"))
	assert.Equal(t, []string{"x.trajectories.0", "3"}, f.calls[0].args[4:])

	_, err = r.BestFromTrajectoryGroup(context.Background(), "x.trajectories.0", -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.trajectories.0"}, f.calls[1].args[4:])

	f.output = "nothing useful"
	_, err = r.BestFromTrajectoryGroup(context.Background(), "x", -1)
	assert.Error(t, err)
}

func TestEvaluateConfiguration(t *testing.T) {
	summary := `
=== Error on training data ===
Root mean squared error                  0.1
=== Stratified cross-validation ===
Correctly Classified Instances         900               90      %
Root mean squared error                  0.3162
`
	f := &fakeExecutor{output: summary}
	r := newTestRunner(f)

	rmse, err := r.EvaluateConfiguration(context.Background(), 4, "/data/abalone/train.arff",
		`-F "weka.filters.AllFilter" -W weka.classifiers.trees.J48`)
	require.NoError(t, err)
	assert.InDelta(t, 0.3162, rmse, 1e-9)
	assert.Equal(t, []string{ClassFilteredModel, "-s", "4", "-o", "-t", "/data/abalone/train.arff",
		"-F", "weka.filters.AllFilter", "-W", "weka.classifiers.trees.J48"}, f.calls[0].args[3:])
}

func TestParseRootMeanSquaredError(t *testing.T) {
	_, err := ParseRootMeanSquaredError("no summary")
	assert.Error(t, err)

	_, err = ParseRootMeanSquaredError("Root mean squared error   n/a")
	assert.Error(t, err)
}

func TestGeneratePredictions(t *testing.T) {
	f := &fakeExecutor{}
	r := newTestRunner(f)

	require.NoError(t, r.GeneratePredictions(context.Background(), "m.model", "train.arff", "out.csv"))
	assert.Equal(t, []string{ClassFilteredModel, "-l", "m.model", "-T", "train.arff",
		"-classifications", ClassPredictionCSV + " -file out.csv"}, f.calls[0].args[3:])
}

func TestRunnerPropagatesErrors(t *testing.T) {
	f := &fakeExecutor{err: errors.New("exit status 1")}
	r := newTestRunner(f)

	_, err := r.ConvertArguments(context.Background(), "x")
	assert.Error(t, err)
	assert.Error(t, r.ConstructExperiment(context.Background(), "experiments/abalone.batch"))
}

func TestDryRunExecutor(t *testing.T) {
	var buf bytes.Buffer
	d := DryRunExecutor{Out: &buf}

	out, err := d.Output(context.Background(), "", "qsub", "-N", "abalone.SMAC.CV.0", "-l", "q=compute")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, "qsub -N abalone.SMAC.CV.0 -l q=compute\n", buf.String())

	buf.Reset()
	_, _ = d.Output(context.Background(), "/opt", "java", "-classifications", "CSV -file a.csv")
	assert.Equal(t, "(cd /opt && java -classifications \"CSV -file a.csv\")\n", buf.String())
}
