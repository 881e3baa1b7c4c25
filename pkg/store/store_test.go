package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
)

var smacKey = models.ExperimentKey{Dataset: "abalone", Strategy: "SMAC", Generation: "CV"}

func openTestStore(t *testing.T, adaptive bool) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.CreateTables(context.Background(), adaptive))
	return s
}

func result(key models.ExperimentKey, seed string, errValue, testErr *float64, config string) models.Result {
	return models.Result{
		ExperimentKey:    key,
		Seed:             seed,
		NumTrajectories:  1,
		NumEvaluations:   100,
		TotalEvaluations: 120,
		Error:            errValue,
		TestError:        testErr,
		Configuration:    config,
	}
}

func TestCreateTablesAndRegistry(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, false)
	assert.False(t, s.Adaptive())

	// creating twice is harmless
	require.NoError(t, s.CreateTables(ctx, false))

	require.NoError(t, s.InsertDatasets(ctx, []models.Dataset{models.NewDataset("abalone"), models.NewDataset("car")}))
	require.NoError(t, s.InsertExperiments(ctx, []models.ExperimentKey{smacKey, smacKey}))

	datasets, err := s.Datasets(ctx)
	require.NoError(t, err)
	require.Len(t, datasets, 2)
	assert.Equal(t, "abalone/train.arff", datasets[0].Train)

	train, err := s.TrainFile(ctx, "car")
	require.NoError(t, err)
	assert.Equal(t, "car/train.arff", train)

	_, err = s.TrainFile(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpsertResults(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, false)

	require.NoError(t, s.UpsertResults(ctx, []models.Result{
		result(smacKey, "10", models.Float(20), models.Float(22), "cfg-10"),
		result(smacKey, "2", models.Float(15), nil, "cfg-2"),
		result(smacKey, "0", nil, nil, "cfg-0"),
	}))

	results, err := s.Results(ctx, smacKey)
	require.NoError(t, err)
	require.Len(t, results, 3)
	// seeds sort numerically
	assert.Equal(t, []string{"0", "2", "10"}, []string{results[0].Seed, results[1].Seed, results[2].Seed})
	assert.Nil(t, results[0].Error)
	assert.Nil(t, results[1].TestError)
	assert.Equal(t, 100, results[2].NumEvaluations)

	t.Run("ReplaceOnKey", func(t *testing.T) {
		require.NoError(t, s.UpsertResults(ctx, []models.Result{
			result(smacKey, "2", models.Float(12), models.Float(13), "cfg-2b"),
		}))
		results, err := s.Results(ctx, smacKey)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "cfg-2b", results[1].Configuration)
		assert.Equal(t, 12.0, *results[1].Error)
	})

	t.Run("PreservesFullCVError", func(t *testing.T) {
		require.NoError(t, s.UpdateFullCVError(ctx, results[2], models.Float(18.5)))
		require.NoError(t, s.UpsertResults(ctx, []models.Result{
			result(smacKey, "10", models.Float(19), models.Float(21), "cfg-10b"),
		}))

		results, err := s.Results(ctx, smacKey)
		require.NoError(t, err)
		require.NotNil(t, results[2].FullCVError)
		assert.Equal(t, 18.5, *results[2].FullCVError)
		assert.Equal(t, "cfg-10b", results[2].Configuration)
	})

	t.Run("NoResults", func(t *testing.T) {
		_, err := s.Results(ctx, models.ExperimentKey{Dataset: "car", Strategy: "TPE", Generation: "CV"})
		assert.True(t, errors.Is(err, ErrNoResults))
	})
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, false)
	tpeKey := models.ExperimentKey{Dataset: "abalone", Strategy: "TPE", Generation: "CV"}

	require.NoError(t, s.UpsertResults(ctx, []models.Result{
		result(smacKey, "0", models.Float(30), models.Float(25), "a"),
		result(smacKey, "1", models.Float(10), models.Float(35), "b"),
		result(smacKey, "2", models.Float(20), models.Float(15), "c"),
		result(tpeKey, "0", models.Float(40), nil, "d"),
	}))

	bestError, bestTest, err := s.BestSeeds(ctx, smacKey)
	require.NoError(t, err)
	assert.Equal(t, "1", bestError)
	assert.Equal(t, "2", bestTest)

	_, bestTest, err = s.BestSeeds(ctx, tpeKey)
	require.NoError(t, err)
	assert.Equal(t, NoSeed, bestTest)

	top, err := s.TopResults(ctx, smacKey, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].Configuration)
	assert.Equal(t, "c", top[1].Configuration)

	aggregates, err := s.Aggregates(ctx, "abalone")
	require.NoError(t, err)
	require.Len(t, aggregates, 2)
	assert.Equal(t, "SMAC", aggregates[0].Strategy)
	assert.Equal(t, 3, aggregates[0].Runs)
	assert.Equal(t, int64(300), aggregates[0].Evaluations)
	assert.InDelta(t, 20, *aggregates[0].AvgError, 1e-9)
	assert.Equal(t, 10.0, *aggregates[0].MinError)
	assert.Equal(t, 35.0, *aggregates[0].MaxTestError)
	assert.Nil(t, aggregates[1].AvgTestError)

	keys, err := s.ExperimentKeys(ctx, "abalone")
	require.NoError(t, err)
	assert.Equal(t, []models.ExperimentKey{smacKey, tpeKey}, keys)

	all, err := s.DatasetResults(ctx, "abalone")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	cv, err := s.GenerationResults(ctx, "CV")
	require.NoError(t, err)
	assert.Len(t, cv, 4)

	candidates, err := s.FullCVCandidates(ctx, smacKey, "")
	require.NoError(t, err)
	assert.Len(t, candidates, 3)

	require.NoError(t, s.UpdateFullCVError(ctx, candidates[0], models.Float(0)))
	require.NoError(t, s.UpdateFullCVError(ctx, candidates[1], models.Float(11)))
	candidates, err = s.FullCVCandidates(ctx, smacKey, "")
	require.NoError(t, err)
	// a zero full CV error still counts as missing
	assert.Len(t, candidates, 2)

	candidates, err = s.FullCVCandidates(ctx, smacKey, "2")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "c", candidates[0].Configuration)
}

func TestAdaptiveResults(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, true)
	require.True(t, s.Adaptive())

	b1, b2 := 1, 2
	r1 := result(smacKey, "0", models.Float(10), nil, "batch-1")
	r1.Batch = &b1
	r2 := result(smacKey, "0", models.Float(8), nil, "batch-2")
	r2.Batch = &b2
	require.NoError(t, s.UpsertResults(ctx, []models.Result{r1, r2}))

	results, err := s.Results(ctx, smacKey)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotNil(t, results[1].Batch)
	assert.Equal(t, 2, *results[1].Batch)

	require.NoError(t, s.UpdateFullCVError(ctx, results[0], models.Float(9)))
	results, err = s.Results(ctx, smacKey)
	require.NoError(t, err)
	assert.NotNil(t, results[0].FullCVError)
	assert.Nil(t, results[1].FullCVError)

	// reopening detects the batch column
	path := filepath.Join(t.TempDir(), "adaptive.db")
	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.CreateTables(ctx, true))
	require.NoError(t, s2.Close())
	s3, err := Open(path)
	require.NoError(t, err)
	defer s3.Close()
	assert.True(t, s3.Adaptive())
}

func TestPretend(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, false)

	var buf bytes.Buffer
	s.SetPretend(&buf)
	require.NoError(t, s.UpsertResults(ctx, []models.Result{
		result(smacKey, "3", models.Float(12.5), nil, "weka.classifiers.trees.J48 -C 'x'"),
	}))
	s.SetPretend(nil)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "INSERT OR REPLACE INTO results"))
	assert.Contains(t, out, "'abalone', 'SMAC', 'CV', '3'")
	assert.Contains(t, out, "12.5, NULL")
	assert.Contains(t, out, "'weka.classifiers.trees.J48 -C ''x'''")

	_, err := s.Results(ctx, smacKey)
	assert.True(t, errors.Is(err, ErrNoResults), "pretend mode must not write")
}

func TestBatchNeedsAdaptiveTable(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, false)

	b0, b1 := 0, 1
	r0 := result(smacKey, "0", models.Float(10), nil, "batch-0")
	r0.Batch = &b0
	r1 := result(smacKey, "0", models.Float(8), nil, "batch-1")
	r1.Batch = &b1
	err := s.UpsertResults(ctx, []models.Result{r0, r1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotAdaptive))

	_, err = s.Results(ctx, smacKey)
	assert.True(t, errors.Is(err, ErrNoResults), "a rejected batch must not write any row")
}

func TestPretendAdaptiveTables(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer s.Close()

	var buf bytes.Buffer
	s.SetPretend(&buf)
	require.NoError(t, s.CreateTables(ctx, true))
	assert.True(t, s.Adaptive())
	assert.Contains(t, buf.String(), "batch INTEGER")

	buf.Reset()
	b := 2
	r := result(smacKey, "0", models.Float(10), nil, "batch-2")
	r.Batch = &b
	require.NoError(t, s.UpsertResults(ctx, []models.Result{r}))
	assert.Contains(t, buf.String(), ", batch)")
	assert.Contains(t, buf.String(), "AND batch IS 2")
}

func TestRenderSQL(t *testing.T) {
	got := RenderSQL("SELECT *\n  FROM t WHERE a = ? AND b = ? AND c = ?", "it's", nil, 3)
	assert.Equal(t, "SELECT * FROM t WHERE a = 'it''s' AND b = NULL AND c = 3", got)
}

func TestTrajectories(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, false)
	require.NoError(t, s.CreateTrajectoriesTable(ctx, true))

	points := []models.TrajectoryPoint{
		{ExperimentKey: smacKey, Seed: "0", Time: 10, Error: 40, Configuration: "a"},
		{ExperimentKey: smacKey, Seed: "0", Time: 500, Error: 30, Configuration: "b"},
		{ExperimentKey: smacKey, Seed: "1", Time: 20, Error: 1e10, Configuration: "crashed"},
		{ExperimentKey: models.ExperimentKey{Dataset: "abalone", Strategy: "SMAC", Generation: "CV-abalone"},
			Seed: "1", Time: 30, Error: 35},
	}
	require.NoError(t, s.InsertTrajectoryPoints(ctx, points))
	// same key and time replaces
	require.NoError(t, s.InsertTrajectoryPoints(ctx, []models.TrajectoryPoint{
		{ExperimentKey: smacKey, Seed: "0", Time: 10, Error: 39, Configuration: "a2"},
	}))

	got, err := s.TrajectoryPoints(ctx, smacKey, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 39.0, got[0].Error)
	assert.Equal(t, "1", got[2].Seed)

	got, err = s.TrajectoryPoints(ctx, smacKey, 100)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// recreate empties the table
	require.NoError(t, s.CreateTrajectoriesTable(ctx, true))
	got, err = s.TrajectoryPoints(ctx, smacKey, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSubmissions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, false)

	now := time.Unix(1700000000, 0)
	subs := []models.Submission{
		{BatchID: "b1", Name: "abalone.SMAC.CV.0", Command: "qsub -N abalone.SMAC.CV.0", Dataset: "abalone",
			Strategy: "SMAC", Generation: "CV", Seed: "0", Status: models.SubmissionSubmitted, SubmittedAt: now},
		{BatchID: "b1", Name: "abalone.SMAC.CV.1", Command: "qsub -N abalone.SMAC.CV.1", Dataset: "abalone",
			Strategy: "SMAC", Generation: "CV", Seed: "1", Status: models.SubmissionFailed, Output: "denied", SubmittedAt: now},
	}
	require.NoError(t, s.RecordSubmissions(ctx, subs))

	got, err := s.Submissions(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, subs[1].Output, got[1].Output)
	assert.Equal(t, models.SubmissionFailed, got[1].Status)
	assert.True(t, now.Equal(got[0].SubmittedAt))

	_, err = s.Submissions(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
