package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

// PredictionService records and lists predictions
type PredictionService interface {
	Record(ctx context.Context, in models.PredictionInput) (*models.Prediction, error)
	Query(ctx context.Context, filter models.PredictionFilter) ([]*models.Prediction, error)
}

// PicksService runs the pick pipeline and serves its views
type PicksService interface {
	Run(ctx context.Context, in models.ReviewInput) *models.PipelineRun
	Latest(ctx context.Context) (*models.PipelineRun, error)
	Consensus(ctx context.Context) ([]models.ConsensusEntry, error)
	Heatmap(ctx context.Context, days int) (models.PerformanceMatrix, error)
	ReviewerHealthy(ctx context.Context) (healthy, configured bool)
}

// Pinger is a dependency that can report its reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthCheck struct {
	name     string
	pinger   Pinger
	required bool
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	predictions PredictionService
	picks       PicksService
	checks      []healthCheck
	log         zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(predictions PredictionService, picks PicksService, log zerolog.Logger) *Handler {
	return &Handler{
		predictions: predictions,
		picks:       picks,
		log:         log.With().Str("component", "api").Logger(),
	}
}

// AddHealthCheck reports p under name in /health. A failing required
// dependency marks the service degraded.
func (h *Handler) AddHealthCheck(name string, p Pinger, required bool) {
	h.checks = append(h.checks, healthCheck{name: name, pinger: p, required: required})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	services := map[string]string{}
	allHealthy := true
	for _, c := range h.checks {
		if err := c.pinger.Ping(ctx); err != nil {
			services[c.name] = "unhealthy: " + err.Error()
			if c.required {
				allHealthy = false
			}
			continue
		}
		services[c.name] = "healthy"
	}

	status := "healthy"
	if !allHealthy {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondError(w http.ResponseWriter, status int, kind, message string) {
	respondJSON(w, status, errorResponse{Success: false, Error: kind, Message: message})
}
