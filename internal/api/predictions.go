package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/tracker"
)

type predictionsResponse struct {
	Predictions []*models.Prediction `json:"predictions"`
	Stats       models.Stats         `json:"stats"`
	Total       int                  `json:"total"`
}

type createPredictionResponse struct {
	Success    bool               `json:"success"`
	Prediction *models.Prediction `json:"prediction"`
}

// GetPredictions handles GET /predictions
func (h *Handler) GetPredictions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.PredictionFilter{
		Symbol:  q.Get("symbol"),
		Outcome: models.Outcome(strings.ToLower(q.Get("outcome"))),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(w, http.StatusBadRequest, string(models.KindValidation), "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	predictions, err := h.predictions.Query(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, predictionsResponse{
		Predictions: predictions,
		Stats:       tracker.ComputeStats(predictions),
		Total:       len(predictions),
	})
}

// CreatePrediction handles POST /predictions
func (h *Handler) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	var in models.PredictionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, string(models.KindValidation), "invalid request body")
		return
	}

	prediction, err := h.predictions.Record(r.Context(), in)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, createPredictionResponse{Success: true, Prediction: prediction})
}

// respondServiceError maps validation failures to 400 and anything else to 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var e *models.Error
	if errors.As(err, &e) && e.Kind == models.KindValidation {
		respondError(w, http.StatusBadRequest, string(e.Kind), e.Message)
		return
	}
	h.log.Error().Err(err).Msg("Request failed")
	respondError(w, http.StatusInternalServerError, "InternalError", "internal server error")
}
