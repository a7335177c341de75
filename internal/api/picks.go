package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/pipeline"
)

// RunPicks handles POST /picks/run. The optional body is passed to the
// reviewer as market context.
func (h *Handler) RunPicks(w http.ResponseWriter, r *http.Request) {
	var in models.ReviewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, string(models.KindValidation), "invalid request body")
		return
	}

	run := h.picks.Run(r.Context(), in)
	respondJSON(w, http.StatusOK, run)
}

// GetLatestPicks handles GET /picks/latest
func (h *Handler) GetLatestPicks(w http.ResponseWriter, r *http.Request) {
	run, err := h.picks.Latest(r.Context())
	if errors.Is(err, pipeline.ErrNoRun) {
		respondError(w, http.StatusNotFound, "NotFound", "no picks generated yet")
		return
	}
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// GetConsensus handles GET /picks/consensus
func (h *Handler) GetConsensus(w http.ResponseWriter, r *http.Request) {
	entries, err := h.picks.Consensus(r.Context())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"consensus": entries,
		"total":     len(entries),
	})
}

// GetHeatmap handles GET /picks/heatmap
func (h *Handler) GetHeatmap(w http.ResponseWriter, r *http.Request) {
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, string(models.KindValidation), "days must be a positive integer")
			return
		}
		days = n
	}

	matrix, err := h.picks.Heatmap(r.Context(), days)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, matrix)
}

// GetReviewerHealth handles GET /reviewer/health
func (h *Handler) GetReviewerHealth(w http.ResponseWriter, r *http.Request) {
	healthy, configured := h.picks.ReviewerHealthy(r.Context())
	respondJSON(w, http.StatusOK, map[string]bool{
		"healthy":    healthy,
		"configured": configured,
	})
}
