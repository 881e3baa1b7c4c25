package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

var smacKey = models.ExperimentKey{Dataset: "abalone", Strategy: models.StrategySMAC, Generation: models.GenerationCV}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func setupServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	st, err := store.Open(filepath.Join(dir, "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.CreateTables(ctx, false))
	require.NoError(t, st.InsertDatasets(ctx, []models.Dataset{models.NewDataset("abalone")}))
	require.NoError(t, st.UpsertResults(ctx, []models.Result{
		{ExperimentKey: smacKey, Seed: "0", Error: models.Float(10), TestError: models.Float(12), Configuration: "weka.classifiers.trees.J48 -C 0.25"},
		{ExperimentKey: smacKey, Seed: "1", Error: models.Float(20), TestError: models.Float(18), Configuration: "weka.classifiers.lazy.IBk -K 1"},
		{ExperimentKey: smacKey, Seed: "2", Error: models.Float(15), TestError: models.Float(16), Configuration: "weka.classifiers.trees.J48"},
	}))
	require.NoError(t, st.RecordSubmissions(ctx, []models.Submission{
		{BatchID: "b1", Name: "abalone.SMAC.CV.0", Command: "qsub -N abalone.SMAC.CV.0", Dataset: "abalone",
			Strategy: "SMAC", Generation: "CV", Seed: "0", Status: models.SubmissionSubmitted, SubmittedAt: time.Unix(1700000000, 0)},
	}))

	plotsDir := filepath.Join(dir, "plots")
	require.NoError(t, os.MkdirAll(plotsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(plotsDir, "boxplot.error.abalone.png"), []byte("png"), 0644))

	router := NewRouter(st, wekaopt.NativeParser{}, ServerOptions{PlotsDir: plotsDir}, zerolog.Nop())
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, dir
}

func get(t *testing.T, server *httptest.Server, path string) (int, envelope) {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func TestHealthAndDatasets(t *testing.T) {
	server, _ := setupServer(t)

	status, body := get(t, server, "/api/v1/health")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, body.Success)

	status, body = get(t, server, "/api/v1/datasets")
	require.Equal(t, http.StatusOK, status)
	var datasets []models.Dataset
	require.NoError(t, json.Unmarshal(body.Data, &datasets))
	assert.Equal(t, []models.Dataset{models.NewDataset("abalone")}, datasets)
}

func TestResults(t *testing.T) {
	server, _ := setupServer(t)

	status, body := get(t, server, "/api/v1/experiments/abalone/SMAC/CV/results")
	require.Equal(t, http.StatusOK, status)
	var results []models.Result
	require.NoError(t, json.Unmarshal(body.Data, &results))
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, smacKey, r.ExperimentKey)
	}

	status, body = get(t, server, "/api/v1/experiments/abalone/TPE/CV/results")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(body.Data))
}

func TestDistances(t *testing.T) {
	server, _ := setupServer(t)

	status, body := get(t, server, "/api/v1/experiments/abalone/SMAC/CV/distances")
	require.Equal(t, http.StatusOK, status)
	var d DistancesResponse
	require.NoError(t, json.Unmarshal(body.Data, &d))
	require.Len(t, d.Labels, 3)
	require.Len(t, d.Configuration, 3)
	for i := range d.Configuration {
		assert.Equal(t, 0.0, d.Configuration[i][i])
		for j := range d.Configuration {
			assert.Equal(t, d.Configuration[i][j], d.Configuration[j][i])
		}
	}
	assert.Equal(t, 5.0, d.Error[0][2])
	require.NotNil(t, d.Dendrogram)
	assert.Len(t, d.Dendrogram.Links, 2)
	require.NotNil(t, d.Embedding)
	assert.Len(t, d.Embedding.Positions, 3)

	status, body = get(t, server, "/api/v1/experiments/abalone/TPE/CV/distances")
	assert.Equal(t, http.StatusNotFound, status)
	assert.False(t, body.Success)
}

func TestSummaryAndSubmissions(t *testing.T) {
	server, _ := setupServer(t)

	status, body := get(t, server, "/api/v1/datasets/abalone/summary")
	require.Equal(t, http.StatusOK, status)
	var aggregates []store.Aggregate
	require.NoError(t, json.Unmarshal(body.Data, &aggregates))
	require.Len(t, aggregates, 1)
	assert.Equal(t, 3, aggregates[0].Runs)
	require.NotNil(t, aggregates[0].MinError)
	assert.Equal(t, 10.0, *aggregates[0].MinError)

	status, _ = get(t, server, "/api/v1/datasets/iris/summary")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = get(t, server, "/api/v1/submissions/b1")
	require.Equal(t, http.StatusOK, status)
	var subs []models.Submission
	require.NoError(t, json.Unmarshal(body.Data, &subs))
	require.Len(t, subs, 1)
	assert.Equal(t, "abalone.SMAC.CV.0", subs[0].Name)

	status, body = get(t, server, "/api/v1/submissions/missing")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body.Error, "not found")
}

func TestStaticAndCORS(t *testing.T) {
	server, _ := setupServer(t)

	resp, err := http.Get(server.URL + "/plots/boxplot.error.abalone.png")
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png", string(data))

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/v1/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	for _, path := range []string{"/api/v1/health", "/api/v1/experiments/abalone/SMAC/CV/results"} {
		req, err = http.NewRequest(http.MethodOptions, server.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Less(t, resp.StatusCode, 300, path)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"), path)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Internal server error", body.Message)
}

func TestServeShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, http.NotFoundHandler(), ServerOptions{Address: "127.0.0.1:0"}, zerolog.Nop())
	}()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
