package ingest

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mcps-experiments/pkg/config"
	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
)

var smacKey = models.ExperimentKey{Dataset: "abalone", Strategy: "SMAC", Generation: "CV"}

type fakeJava struct {
	best     func(file string, batch int) (string, error)
	evaluate func(seed int, train, configuration string) (float64, error)

	bestCalls     []string
	evaluateCalls []string
}

func (f *fakeJava) ConvertArguments(_ context.Context, args string) (string, error) {
	if args == "bad" {
		return "", errors.New("conversion failed")
	}
	return "weka " + args, nil
}

func (f *fakeJava) BestFromTrajectoryGroup(_ context.Context, file string, batch int) (string, error) {
	f.bestCalls = append(f.bestCalls, file)
	return f.best(file, batch)
}

func (f *fakeJava) EvaluateConfiguration(_ context.Context, seed int, train, configuration string) (float64, error) {
	f.evaluateCalls = append(f.evaluateCalls, train+" "+configuration)
	return f.evaluate(seed, train, configuration)
}

func newImporter(t *testing.T, java Java) (*Importer, *store.Store) {
	t.Helper()
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.CreateTables(ctx, false))
	require.NoError(t, st.CreateTrajectoriesTable(ctx, false))

	im := NewImporter(st, java, zerolog.Nop())
	im.Quiet = true
	return im, st
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestParseResultLine(t *testing.T) {
	t.Run("Plain", func(t *testing.T) {
		r, err := ParseResultLine("abalone.SMAC.CV-abalone,3,1,120,340,2,5,12.5,13.25,weka.classifiers.trees.J48 -C 0.25\n")
		require.NoError(t, err)
		assert.Equal(t, smacKey, r.ExperimentKey)
		assert.Equal(t, "3", r.Seed)
		assert.Nil(t, r.Batch)
		assert.Equal(t, 120, r.NumEvaluations)
		assert.Equal(t, 340, r.TotalEvaluations)
		assert.Equal(t, 2, r.MemoutEvaluations)
		assert.Equal(t, 5, r.TimeoutEvaluations)
		assert.Equal(t, 12.5, *r.Error)
		assert.Equal(t, 13.25, *r.TestError)
		assert.Equal(t, "weka.classifiers.trees.J48 -C 0.25", r.Configuration)
	})

	t.Run("BatchAndNaN", func(t *testing.T) {
		r, err := ParseResultLine("4,abalone.TPE.DPS-abalone,0,1,10,10,0,0,NaN,NULL,weka.classifiers.lazy.IBk")
		require.NoError(t, err)
		require.NotNil(t, r.Batch)
		assert.Equal(t, 4, *r.Batch)
		assert.Equal(t, "DPS", r.Generation)
		assert.Nil(t, r.Error)
		assert.Nil(t, r.TestError)
	})

	t.Run("CommasInConfiguration", func(t *testing.T) {
		r, err := ParseResultLine(`abalone.RAND.CV-abalone, 1, 1, 30, 0, 0, 0, 15.000000, 12.000000, -F "weka.filters.MultiFilter -F a,b" -W x`)
		require.NoError(t, err)
		assert.Equal(t, "1", r.Seed)
		assert.Equal(t, 30, r.NumEvaluations)
		assert.Equal(t, `-F "weka.filters.MultiFilter -F a,b" -W x`, r.Configuration)
	})

	t.Run("Malformed", func(t *testing.T) {
		for _, line := range []string{
			"no commas",
			"abalone.SMAC.CV,0,1,2",
			"abalone,0,1,1,1,0,0,1,1,x",
			"abalone.SMAC.CV,x,1,1,1,0,0,1,1,x",
			"abalone.SMAC.CV,0,1,1,1,0,0,high,1,x",
		} {
			_, err := ParseResultLine(line)
			assert.Error(t, err, line)
		}
	})
}

func TestImportResults(t *testing.T) {
	ctx := context.Background()
	im, st := newImporter(t, &fakeJava{})

	path := filepath.Join(t.TempDir(), "results.csv")
	writeFile(t, path, "abalone.SMAC.CV-abalone,0,1,10,10,0,0,20,21,-W J48\n\n"+
		"abalone.SMAC.CV-abalone,1,1,10,10,0,0,NaN,NaN,-W IBk\n")

	n, err := im.ImportResults(ctx, path, ImportOptions{ConvertConfiguration: true})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results, err := st.Results(ctx, smacKey)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "weka -W J48", results[0].Configuration)
	assert.Nil(t, results[1].Error)

	writeFile(t, path, "garbage\n")
	_, err = im.ImportResults(ctx, path, ImportOptions{})
	assert.Error(t, err)
}

const trajectoryXMLDoc = `<trajectoryGroup>
  <trajectories>
    <seed>3</seed>
    <point><time>10.5</time><errorEstimate>20.25</errorEstimate><args>-a 1</args></point>
    <point><time>30</time><errorEstimate>15</errorEstimate><args>bad</args></point>
  </trajectories>
</trajectoryGroup>`

func TestImportTrajectories(t *testing.T) {
	ctx := context.Background()
	im, st := newImporter(t, &fakeJava{})

	root := t.TempDir()
	writeFile(t, filepath.Join(root, smacKey.FolderName(), smacKey.TrajectoryFileName("3")), trajectoryXMLDoc)
	writeFile(t, filepath.Join(root, "other.SMAC.CV-other", "other.SMAC.CV-other.trajectories.0"), trajectoryXMLDoc)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	n, err := im.ImportTrajectories(ctx, root, []string{"abalone"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	points, err := st.TrajectoryPoints(ctx, smacKey, 0)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, "3", points[0].Seed)
	assert.Equal(t, 10.5, points[0].Time)
	assert.Equal(t, "weka -a 1", points[0].Configuration)
	assert.Equal(t, "", points[1].Configuration)

	_, err = ParseTrajectoryFile(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestBestPoints(t *testing.T) {
	ctx := context.Background()
	sel := config.Selection{
		Datasets:    []string{"abalone"},
		Strategies:  []string{"DEFAULT", "SMAC"},
		Generations: []string{"CV"},
		Seeds:       []string{"0", "1"},
	}

	t.Run("Single", func(t *testing.T) {
		java := &fakeJava{best: func(file string, _ int) (string, error) {
			if strings.HasSuffix(file, ".1") {
				return "", errors.New("no trajectory")
			}
			return "abalone.SMAC.CV-abalone,0,1,5,10,0,0,12.0,13.0,weka.classifiers.trees.J48 -C 0.25", nil
		}}
		im, _ := newImporter(t, java)

		var buf bytes.Buffer
		n, err := im.BestPoints(ctx, "experiments", sel, 0, &buf)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		require.Len(t, java.bestCalls, 2)
		assert.Equal(t, filepath.Join("experiments", "abalone.SMAC.CV-abalone", "abalone.SMAC.CV-abalone.trajectories.0"), java.bestCalls[0])
		assert.Equal(t, "abalone.SMAC.CV-abalone,0,1,5,10,0,0,12.0,13.0,weka.classifiers.trees.J48 -C 0.25\n", buf.String())
	})

	t.Run("Batches", func(t *testing.T) {
		java := &fakeJava{best: func(string, int) (string, error) {
			return "abalone.SMAC.CV-abalone,0,1,5,10,0,0,12.0,13.0,x", nil
		}}
		im, _ := newImporter(t, java)
		sel := sel
		sel.Seeds = []string{"0"}

		var buf bytes.Buffer
		n, err := im.BestPoints(ctx, "experiments", sel, 2, &buf)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Contains(t, java.bestCalls[1], filepath.Join("batch1", "abalone.SMAC.CV-abalone.trajectories.0"))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		r, err := ParseResultLine(lines[1])
		require.NoError(t, err)
		assert.Equal(t, 1, *r.Batch)
	})
}

func randomPointDoc(errs map[string]string) string {
	var b strings.Builder
	b.WriteString("<point><argstring>-W J48</argstring>")
	for _, inst := range []string{"fold0", "fold1", "default"} {
		if e, ok := errs[inst]; ok {
			b.WriteString("<instanceResult><instance>" + inst + "</instance><error>" + e + "</error></instanceResult>")
		}
	}
	b.WriteString("</point>")
	return b.String()
}

func TestRandomPoints(t *testing.T) {
	ctx := context.Background()
	im, st := newImporter(t, &fakeJava{})

	root := t.TempDir()
	folder := filepath.Join(root, "abalone.RAND.CV-abalone")
	writeFile(t, filepath.Join(folder, "points", "g1", "h1.xml"),
		randomPointDoc(map[string]string{"fold0": "10", "fold1": "20", "default": "12"}))
	writeFile(t, filepath.Join(folder, "points", "g1", "h2.xml"),
		randomPointDoc(map[string]string{"fold0": "10", "default": "12"}))
	writeFile(t, filepath.Join(folder, "out", "hashes", "0.log"), "evaluated h1\n")
	writeFile(t, filepath.Join(folder, "out", "hashes", "1.log"), "evaluated h2\n")
	writeFile(t, filepath.Join(root, "car.RAND.CV-car", "points", "g1", "h3.xml"), randomPointDoc(nil))

	var buf bytes.Buffer
	n, err := im.RandomPoints(ctx, root, []string{"abalone"}, 2, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t,
		"abalone.RAND.CV-abalone, 0, 1, 2, 0, 0, 0, 15.000000, 12.000000, -W J48\n"+
			"abalone.RAND.CV-abalone, 1, 1, 1, 0, 0, 0, 1000000.000000, 1000000.000000, \n",
		buf.String())

	// the output feeds straight into the results table
	path := filepath.Join(t.TempDir(), "rand.csv")
	writeFile(t, path, buf.String())
	_, err = im.ImportResults(ctx, path, ImportOptions{})
	require.NoError(t, err)
	results, err := st.Results(ctx, models.ExperimentKey{Dataset: "abalone", Strategy: "RAND", Generation: "CV"})
	require.NoError(t, err)
	assert.Equal(t, 15.0, *results[0].Error)
}

func TestDefaultPoints(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "abalone.A.CV.0.csv"), "12.5\n")
	writeFile(t, filepath.Join(dir, "abalone.B.CV.0.csv"), " 10.25 ")
	writeFile(t, filepath.Join(dir, "abalone.B.Test.0.csv"), "11")

	var buf bytes.Buffer
	best, err := DefaultPoints(dir, []string{"abalone", "car"}, []string{"A", "B"}, []string{"0"}, "CV", &buf)
	require.NoError(t, err)
	require.Len(t, best, 2)
	assert.Equal(t, "B", best[0].Method)
	assert.Equal(t, 11.0, best[0].TestError)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "abalone.DEFAULT.CV-abalone,0,1,1,1,0,0,10.25000,11.00000,B", lines[0])
	assert.Equal(t, "car.DEFAULT.CV-car,0,1,1,1,0,0,NULL,NULL,", lines[1])

	r, err := ParseResultLine(lines[1])
	require.NoError(t, err)
	assert.Nil(t, r.Error)

	listing, err := os.ReadFile(filepath.Join(dir, "CV.csv"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(listing), "abalone,A,0,12.50000\nabalone,B,0,10.25000\n"))
}

func TestFullCV(t *testing.T) {
	ctx := context.Background()
	java := &fakeJava{evaluate: func(seed int, _, _ string) (float64, error) {
		if seed == 9 {
			return 0, errors.New("weka crashed")
		}
		return float64(seed + 1), nil
	}}
	im, st := newImporter(t, java)

	require.NoError(t, st.InsertDatasets(ctx, []models.Dataset{models.NewDataset("abalone")}))
	require.NoError(t, st.UpsertResults(ctx, []models.Result{
		{ExperimentKey: smacKey, Seed: "0", Error: models.Float(3), Configuration: "-W J48"},
		{ExperimentKey: smacKey, Seed: "1", Error: models.Float(4), FullCVError: models.Float(2.5), Configuration: "-W IBk"},
	}))

	n, err := im.FullCV(ctx, smacKey, "", "datasets", DefaultRepetitions)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, java.evaluateCalls, DefaultRepetitions)
	assert.Equal(t, filepath.Join("datasets", "abalone", "train.arff")+" -W J48", java.evaluateCalls[0])

	results, err := st.Results(ctx, smacKey)
	require.NoError(t, err)
	// repetitions 0..8 give 1..9
	assert.Equal(t, 5.0, *results[0].FullCVError)
	assert.Equal(t, 2.5, *results[1].FullCVError)

	t.Run("Default", func(t *testing.T) {
		defKey := models.ExperimentKey{Dataset: "abalone", Strategy: "DEFAULT", Generation: "CV"}
		require.NoError(t, st.UpsertResults(ctx, []models.Result{
			{ExperimentKey: defKey, Seed: "0", Configuration: "weka.classifiers.trees.J48"},
		}))
		java.evaluateCalls = nil
		_, err := im.FullCV(ctx, defKey, "0", "datasets", 1)
		require.NoError(t, err)
		require.Len(t, java.evaluateCalls, 1)
		assert.True(t, strings.HasSuffix(java.evaluateCalls[0], " -F weka.filters.AllFilter -W weka.classifiers.trees.J48"))
	})
}

func TestCheckCVErrors(t *testing.T) {
	ctx := context.Background()
	im, st := newImporter(t, &fakeJava{})

	require.NoError(t, st.UpsertResults(ctx, []models.Result{
		{ExperimentKey: smacKey, Seed: "0", Error: models.Float(12.3456)},
		{ExperimentKey: smacKey, Seed: "1", Error: models.Float(5)},
	}))

	root := t.TempDir()
	logDir := filepath.Join(root, smacKey.FolderName(), "out", "autoweka")
	writeFile(t, filepath.Join(logDir, "rawValidationExecutionResults-tunertime-run0.csv"),
		"0,SAT,1,0,0,0,x,10.0\n1,SAT,1,0,0,0,x,14.6912\n")
	writeFile(t, filepath.Join(logDir, "rawValidationExecutionResults-tunertime-run2.csv"),
		"0,TIMEOUT,1,0,0,0,x,10.0\n")

	sel := config.Selection{Datasets: []string{"abalone"}, Generations: []string{"CV"}, Seeds: []string{"0", "1", "2"}}
	mismatches, err := im.CheckCVErrors(ctx, root, sel, 2)
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, "abalone,SMAC,CV,1,5.000,NULL", mismatches[0].String())

	_, err = ValidationCVError(filepath.Join(logDir, "rawValidationExecutionResults-tunertime-run2.csv"), 2)
	assert.True(t, errors.Is(err, ErrFailedValidation))
}

func TestParseSubProcessLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	writeFile(t, path, "starting\nSubProcessWrapper: Time(12.5) Score(30.25)\nnoise\n"+
		"INFO SubProcessWrapper: Time(40) Score(20)\n")

	points, err := ParseSubProcessLog(path)
	require.NoError(t, err)
	assert.Equal(t, []ScorePoint{{Time: 12.5, Score: 30.25}, {Time: 40, Score: 20}}, points)
}

const classificationPredictions = "inst#,actual,predicted,error,prediction\n" +
	"1,1:a,1:a,,0.9\n2,2:b,1:a,+,0.8\n3,1:a,?,,\n4,2:b,2:b,,1\n"

func TestPredictionError(t *testing.T) {
	dir := t.TempDir()

	classification := filepath.Join(dir, "predictions.0.csv")
	writeFile(t, classification, classificationPredictions)
	v, err := PredictionError(classification, false)
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)

	regression := filepath.Join(dir, "predictions.1.csv")
	writeFile(t, regression, "inst#,actual,predicted,error\n1,1.5,1.4,-0.1\n2,2.5,2.7,0.2\n")
	v, err = PredictionError(regression, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.158114, v, 1e-6)

	empty := filepath.Join(dir, "predictions.2.csv")
	writeFile(t, empty, "inst#,actual,predicted,error\n")
	_, err = PredictionError(empty, true)
	assert.Error(t, err)
}

func TestTestErrors(t *testing.T) {
	ctx := context.Background()
	im, st := newImporter(t, &fakeJava{})

	require.NoError(t, st.UpsertResults(ctx, []models.Result{
		{ExperimentKey: smacKey, Seed: "0", Error: models.Float(5), TestError: models.Float(10)},
		{ExperimentKey: smacKey, Seed: "1", Error: models.Float(5), TestError: models.Float(50)},
	}))

	root := t.TempDir()
	writeFile(t, PredictionsFile(root, smacKey, "0"), classificationPredictions)
	writeFile(t, PredictionsFile(root, smacKey, "1"), classificationPredictions)

	sel := config.Selection{
		Datasets:    []string{"abalone"},
		Strategies:  []string{"SMAC"},
		Generations: []string{"CV"},
		Seeds:       []string{"0", "1", "2"},
	}
	checks, err := im.TestErrors(ctx, root, sel, false, false)
	require.NoError(t, err)
	require.Len(t, checks, 2)
	assert.True(t, checks[0].Differs())
	assert.Equal(t, "abalone,SMAC,CV,0,10.000,50.000", checks[0].String())
	assert.False(t, checks[1].Differs())

	results, err := st.Results(ctx, smacKey)
	require.NoError(t, err)
	assert.Equal(t, 10.0, *results[0].TestError, "checking alone must not write")

	_, err = im.TestErrors(ctx, root, sel, false, true)
	require.NoError(t, err)
	results, err = st.Results(ctx, smacKey)
	require.NoError(t, err)
	assert.Equal(t, 50.0, *results[0].TestError)
}

func TestSMACRuns(t *testing.T) {
	root := t.TempDir()
	header := "Run Number,Run History Configuration ID,Instance ID,Response Value (y),Censored?," +
		"Cutoff Time Used,Seed,Runtime,Run Length,Run Result Code,Run Quality,SMAC Iteration,Tuner Time\n"
	row := func(errValue, time string) string {
		return "1,1,1," + errValue + ",0,30,1,2.5,0,1,0,1," + time + "\n"
	}

	state0 := SMACStateDir(root, smacKey, "0")
	writeFile(t, filepath.Join(state0, "runs_and_results-it2.csv"), header+row("40", "10"))
	writeFile(t, filepath.Join(state0, "runs_and_results-it10.csv"), header+row("40", "10")+row("100", "20")+row("30", "35.5"))

	latest, err := LatestRunsAndResults(state0)
	require.NoError(t, err)
	assert.Equal(t, "runs_and_results-it10.csv", filepath.Base(latest))

	points, missing, err := SMACRuns(root, smacKey, []string{"0", "1"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, missing)
	require.Len(t, points, 2)
	assert.Equal(t, 35.5, points[1].Time)
	assert.Equal(t, 30.0, points[1].Error)
	assert.Equal(t, "0", points[1].Seed)
	assert.Equal(t, smacKey, points[1].ExperimentKey)

	points, _, err = SMACRuns(root, smacKey, []string{"0"}, false)
	require.NoError(t, err)
	assert.Len(t, points, 3)

	_, err = LatestRunsAndResults(filepath.Join(root, "missing"))
	assert.True(t, errors.Is(err, ErrNoSMACRuns))
}
