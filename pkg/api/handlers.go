package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/gilchrisn/mcps-experiments/pkg/models"
	"github.com/gilchrisn/mcps-experiments/pkg/similarity"
	"github.com/gilchrisn/mcps-experiments/pkg/store"
	"github.com/gilchrisn/mcps-experiments/pkg/wekaopt"
)

// Store is the read side of the results database used by the API.
type Store interface {
	Datasets(ctx context.Context) ([]models.Dataset, error)
	Results(ctx context.Context, key models.ExperimentKey) ([]models.Result, error)
	Aggregates(ctx context.Context, dataset string) ([]store.Aggregate, error)
	Submissions(ctx context.Context, batchID string) ([]models.Submission, error)
}

// Handlers contains HTTP request handlers
type Handlers struct {
	store    Store
	analyzer *similarity.Analyzer
	logger   zerolog.Logger
}

// NewHandlers creates new API handlers
func NewHandlers(st Store, parser wekaopt.Parser, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:    st,
		analyzer: similarity.NewAnalyzer(parser, logger),
		logger:   logger,
	}
}

// HealthCheck reports that the server is up
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteSuccessResponse(w, "Service is healthy", map[string]string{"status": "ok"})
}

// ListDatasets lists all registered datasets
func (h *Handlers) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.store.Datasets(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list datasets")
		WriteErrorResponse(w, http.StatusInternalServerError, "Failed to list datasets", err)
		return
	}
	WriteSuccessResponse(w, "Datasets retrieved successfully", datasets)
}

func experimentKey(r *http.Request) models.ExperimentKey {
	vars := mux.Vars(r)
	return models.ExperimentKey{
		Dataset:    vars["dataset"],
		Strategy:   vars["strategy"],
		Generation: vars["generation"],
	}
}

// GetResults returns the results of one experiment
func (h *Handlers) GetResults(w http.ResponseWriter, r *http.Request) {
	key := experimentKey(r)
	results, err := h.store.Results(r.Context(), key)
	if errors.Is(err, store.ErrNoResults) {
		results, err = []models.Result{}, nil
	}
	if err != nil {
		h.logger.Error().Err(err).Str("experiment", key.Name()).Msg("Failed to read results")
		WriteErrorResponse(w, http.StatusInternalServerError, "Failed to read results", err)
		return
	}
	WriteSuccessResponse(w, "Results retrieved successfully", results)
}

// DistancesResponse is the dissimilarity of the runs of one experiment.
type DistancesResponse struct {
	Labels            []string                     `json:"labels"`
	Configuration     [][]float64                  `json:"configuration"`
	Error             [][]float64                  `json:"error"`
	MeanConfiguration float64                      `json:"meanConfiguration"`
	MeanError         float64                      `json:"meanError"`
	Dendrogram        *similarity.DendrogramLayout `json:"dendrogram,omitempty"`
	Embedding         *similarity.Embedding        `json:"embedding,omitempty"`
}

func rows(m mat.Symmetric) [][]float64 {
	n := m.SymmetricDim()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}

// GetDistances compares the configurations and errors of the runs of one
// experiment. Runs are clustered with average linkage.
func (h *Handlers) GetDistances(w http.ResponseWriter, r *http.Request) {
	key := experimentKey(r)
	results, err := h.store.Results(r.Context(), key)
	if errors.Is(err, store.ErrNoResults) {
		WriteErrorResponse(w, http.StatusNotFound, "No results for "+key.Name(), err)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("experiment", key.Name()).Msg("Failed to read results")
		WriteErrorResponse(w, http.StatusInternalServerError, "Failed to read results", err)
		return
	}
	entries, err := h.analyzer.Entries(r.Context(), results)
	if err != nil {
		WriteErrorResponse(w, http.StatusInternalServerError, "Failed to parse configurations", err)
		return
	}
	if len(entries) == 0 {
		WriteErrorResponse(w, http.StatusNotFound, "No comparable runs for "+key.Name(), nil)
		return
	}

	d := similarity.Compute(entries)
	response := DistancesResponse{
		Labels:            d.Labels,
		Configuration:     rows(d.Configuration),
		Error:             rows(d.Error),
		MeanConfiguration: d.MeanConfiguration,
		MeanError:         d.MeanError,
	}
	if len(entries) > 1 {
		z, err := similarity.Cluster(d.Configuration, similarity.Average)
		if err != nil {
			WriteErrorResponse(w, http.StatusInternalServerError, "Failed to cluster runs", err)
			return
		}
		layout := similarity.Dendrogram(z)
		response.Dendrogram = &layout
	}
	if e, err := similarity.Embed(d.Configuration); err != nil {
		h.logger.Warn().Err(err).Str("experiment", key.Name()).Msg("Failed to embed runs")
	} else {
		response.Embedding = e
	}
	WriteSuccessResponse(w, "Distances computed successfully", response)
}

// GetDatasetSummary aggregates the runs of every experiment on a dataset
func (h *Handlers) GetDatasetSummary(w http.ResponseWriter, r *http.Request) {
	dataset := mux.Vars(r)["dataset"]
	aggregates, err := h.store.Aggregates(r.Context(), dataset)
	if err != nil {
		h.logger.Error().Err(err).Str("dataset", dataset).Msg("Failed to aggregate results")
		WriteErrorResponse(w, http.StatusInternalServerError, "Failed to aggregate results", err)
		return
	}
	if len(aggregates) == 0 {
		WriteErrorResponse(w, http.StatusNotFound, "No results for dataset "+dataset, nil)
		return
	}
	WriteSuccessResponse(w, "Summary retrieved successfully", aggregates)
}

// GetSubmissions returns the jobs sent in one launch
func (h *Handlers) GetSubmissions(w http.ResponseWriter, r *http.Request) {
	batchID := mux.Vars(r)["batchId"]
	subs, err := h.store.Submissions(r.Context(), batchID)
	if errors.Is(err, store.ErrNotFound) {
		WriteErrorResponse(w, http.StatusNotFound, "Launch not found", err)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("batch_id", batchID).Msg("Failed to read submissions")
		WriteErrorResponse(w, http.StatusInternalServerError, "Failed to read submissions", err)
		return
	}
	WriteSuccessResponse(w, "Submissions retrieved successfully", subs)
}
