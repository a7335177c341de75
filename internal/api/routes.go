package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes. metrics, when non-nil, is served
// at /metrics.
func SetupRoutes(handler *Handler, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}

	api := r.PathPrefix("/api/v1").Subrouter()

	// Prediction routes
	api.HandleFunc("/predictions", handler.GetPredictions).Methods("GET")
	api.HandleFunc("/predictions", handler.CreatePrediction).Methods("POST")

	// Pick routes
	api.HandleFunc("/picks/run", handler.RunPicks).Methods("POST")
	api.HandleFunc("/picks/latest", handler.GetLatestPicks).Methods("GET")
	api.HandleFunc("/picks/consensus", handler.GetConsensus).Methods("GET")
	api.HandleFunc("/picks/heatmap", handler.GetHeatmap).Methods("GET")

	// Reviewer routes
	api.HandleFunc("/reviewer/health", handler.GetReviewerHealth).Methods("GET")

	return r
}
