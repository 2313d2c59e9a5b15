package routes

import (
	"net/http"

	"train-callbacks/api/rest/handlers"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, runHandler *handlers.RunHandler, metricsHandler *handlers.MetricsHandler) {
	// Run endpoints live on the root router so a method mismatch answers 405
	// rather than the 404 a PathPrefix subrouter would give.
	r.HandleFunc("/v1/run", runHandler.GetRun).Methods("GET")
	r.HandleFunc("/v1/run/checkpoints", runHandler.GetCheckpoints).Methods("GET")
	r.HandleFunc("/v1/run/summaries", runHandler.GetSummaries).Methods("GET")
	r.HandleFunc("/v1/run/events", runHandler.GetEvents).Methods("GET")
	r.HandleFunc("/v1/run/cost", metricsHandler.GetCost).Methods("GET")

	r.HandleFunc("/metrics", metricsHandler.GetPrometheusMetrics).Methods("GET")

	// Health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
}
