package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes registers the JSON API and, when the directories are set, the
// generated tables and plots.
func SetupRoutes(router *mux.Router, handlers *Handlers, tablesDir, plotsDir string) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	datasets := api.PathPrefix("/datasets").Subrouter()
	datasets.HandleFunc("", handlers.ListDatasets).Methods("GET")
	datasets.HandleFunc("/{dataset}/summary", handlers.GetDatasetSummary).Methods("GET")

	experiments := api.PathPrefix("/experiments/{dataset}/{strategy}/{generation}").Subrouter()
	experiments.HandleFunc("/results", handlers.GetResults).Methods("GET")
	experiments.HandleFunc("/distances", handlers.GetDistances).Methods("GET")

	api.HandleFunc("/submissions/{batchId}", handlers.GetSubmissions).Methods("GET")

	// preflight requests must match a route for the CORS middleware to run
	api.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}).Methods("OPTIONS")

	if tablesDir != "" {
		router.PathPrefix("/tables/").Handler(http.StripPrefix("/tables/", http.FileServer(http.Dir(tablesDir))))
	}
	if plotsDir != "" {
		router.PathPrefix("/plots/").Handler(http.StripPrefix("/plots/", http.FileServer(http.Dir(plotsDir))))
	}
}
