package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/pipeline"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/tracker"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type memoryPredictionStore struct {
	mu   sync.Mutex
	rows []*models.Prediction
	err  error
}

func (s *memoryPredictionStore) InsertPrediction(ctx context.Context, p *models.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	p.ID = int64(len(s.rows) + 1)
	p.CreatedAt = p.PredictedAt
	cp := *p
	s.rows = append(s.rows, &cp)
	return nil
}

func (s *memoryPredictionStore) ListPredictions(ctx context.Context, filter models.PredictionFilter) ([]*models.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := []*models.Prediction{}
	for i := len(s.rows) - 1; i >= 0 && len(out) < filter.Limit; i-- {
		p := s.rows[i]
		if filter.Symbol != "" && p.Symbol != filter.Symbol {
			continue
		}
		if filter.Outcome != "" && p.ActualOutcome != filter.Outcome {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memoryPredictionStore) ResolvePrediction(ctx context.Context, id int64, outcome models.Outcome, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.rows {
		if p.ID == id && p.ActualOutcome == models.OutcomePending {
			p.ActualOutcome = outcome
			p.ResolvedAt = &at
			return true, nil
		}
	}
	return false, nil
}

type fakePicks struct {
	run       *models.PipelineRun
	latestErr error
	consensus []models.ConsensusEntry
	matrix    models.PerformanceMatrix
	days      int
	healthy   bool
	runInput  models.ReviewInput
}

func (f *fakePicks) Run(ctx context.Context, in models.ReviewInput) *models.PipelineRun {
	f.runInput = in
	return f.run
}

func (f *fakePicks) Latest(ctx context.Context) (*models.PipelineRun, error) {
	if f.latestErr != nil {
		return nil, f.latestErr
	}
	return f.run, nil
}

func (f *fakePicks) Consensus(ctx context.Context) ([]models.ConsensusEntry, error) {
	return f.consensus, nil
}

func (f *fakePicks) Heatmap(ctx context.Context, days int) (models.PerformanceMatrix, error) {
	f.days = days
	return f.matrix, nil
}

func (f *fakePicks) ReviewerHealthy(ctx context.Context) (bool, bool) {
	return f.healthy, true
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(ctx context.Context) error { return p.err }

func newTestRouter(store tracker.Store, picks PicksService) (http.Handler, *Handler) {
	h := NewHandler(tracker.New(store, nil, zerolog.Nop()), picks, zerolog.Nop())
	return SetupRoutes(h, http.NotFoundHandler()), h
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// ---------------------------------------------------------------------------
// Prediction endpoints
// ---------------------------------------------------------------------------

func TestCreatePrediction_Success(t *testing.T) {
	store := &memoryPredictionStore{}
	router, _ := newTestRouter(store, &fakePicks{})

	rec := do(t, router, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"symbol": "nvda", "prediction_type": "long", "confidence": 0.72,
		"target_price": 150.5, "timeframe_days": 30, "reasoning": "datacenter demand",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp createPredictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "NVDA", resp.Prediction.Symbol)
	assert.Equal(t, models.OutcomePending, resp.Prediction.ActualOutcome)
	assert.Equal(t, 0.72, resp.Prediction.Confidence)
	assert.Len(t, store.rows, 1)
}

func TestCreatePrediction_OutOfRangeConfidenceNotStored(t *testing.T) {
	store := &memoryPredictionStore{}
	router, _ := newTestRouter(store, &fakePicks{})

	rec := do(t, router, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"symbol": "NVDA", "prediction_type": "long", "confidence": 1.5,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "ValidationError", resp.Error)
	assert.Contains(t, resp.Message, "confidence")

	rec = do(t, router, http.MethodGet, "/api/v1/predictions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list predictionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Predictions)
	assert.Equal(t, 0, list.Total)
	assert.Empty(t, store.rows)
}

func TestCreatePrediction_MissingFields(t *testing.T) {
	router, _ := newTestRouter(&memoryPredictionStore{}, &fakePicks{})

	rec := do(t, router, http.MethodPost, "/api/v1/predictions", map[string]interface{}{"symbol": "NVDA"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "prediction_type is required")
}

func TestCreatePrediction_InvalidJSON(t *testing.T) {
	router, _ := newTestRouter(&memoryPredictionStore{}, &fakePicks{})

	rec := do(t, router, http.MethodPost, "/api/v1/predictions", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePrediction_StoreFailureIs500(t *testing.T) {
	router, _ := newTestRouter(&memoryPredictionStore{err: errors.New("db down")}, &fakePicks{})

	rec := do(t, router, http.MethodPost, "/api/v1/predictions", map[string]interface{}{
		"symbol": "NVDA", "prediction_type": "short", "confidence": 0.4,
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

func TestGetPredictions_FiltersAndStats(t *testing.T) {
	store := &memoryPredictionStore{}
	router, _ := newTestRouter(store, &fakePicks{})
	for _, body := range []map[string]interface{}{
		{"symbol": "AAPL", "prediction_type": "long", "confidence": 0.9},
		{"symbol": "AAPL", "prediction_type": "short", "confidence": 0.5},
		{"symbol": "MSFT", "prediction_type": "hold", "confidence": 0.6},
	} {
		require.Equal(t, http.StatusCreated, do(t, router, http.MethodPost, "/api/v1/predictions", body).Code)
	}
	store.rows[0].ActualOutcome = models.OutcomeSuccess
	store.rows[1].ActualOutcome = models.OutcomeFailure

	rec := do(t, router, http.MethodGet, "/api/v1/predictions?symbol=aapl&limit=10", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp predictionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "short", string(resp.Predictions[0].PredictionType))
	assert.Equal(t, 0.5, resp.Stats.Accuracy)
	assert.Equal(t, 0.7, resp.Stats.AverageConfidence)

	rec = do(t, router, http.MethodGet, "/api/v1/predictions?outcome=pending", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "MSFT", resp.Predictions[0].Symbol)
}

func TestGetPredictions_BadQuery(t *testing.T) {
	router, _ := newTestRouter(&memoryPredictionStore{}, &fakePicks{})

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/v1/predictions?limit=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/v1/predictions?outcome=maybe", nil).Code)
}

// ---------------------------------------------------------------------------
// Pick endpoints
// ---------------------------------------------------------------------------

func TestRunPicks(t *testing.T) {
	picks := &fakePicks{run: &models.PipelineRun{BatchID: "batch-1", Consensus: []models.ConsensusEntry{{Symbol: "NVDA"}}}}
	router, _ := newTestRouter(&memoryPredictionStore{}, picks)

	rec := do(t, router, http.MethodPost, "/api/v1/picks/run", map[string]interface{}{
		"manual_insights": "watch semis",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "watch semis", picks.runInput.ManualInsights)
	var run models.PipelineRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, "batch-1", run.BatchID)
}

func TestRunPicks_EmptyBody(t *testing.T) {
	router, _ := newTestRouter(&memoryPredictionStore{}, &fakePicks{run: &models.PipelineRun{BatchID: "b"}})

	rec := do(t, router, http.MethodPost, "/api/v1/picks/run", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetLatestPicks(t *testing.T) {
	router, _ := newTestRouter(&memoryPredictionStore{}, &fakePicks{latestErr: pipeline.ErrNoRun})
	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodGet, "/api/v1/picks/latest", nil).Code)

	router, _ = newTestRouter(&memoryPredictionStore{}, &fakePicks{run: &models.PipelineRun{BatchID: "b-9"}})
	rec := do(t, router, http.MethodGet, "/api/v1/picks/latest", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "b-9")
}

func TestGetConsensus(t *testing.T) {
	picks := &fakePicks{consensus: []models.ConsensusEntry{{Symbol: "ABCD", AgreementCount: 2, ConsensusScore: 120}}}
	router, _ := newTestRouter(&memoryPredictionStore{}, picks)

	rec := do(t, router, http.MethodGet, "/api/v1/picks/consensus", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Consensus []models.ConsensusEntry `json:"consensus"`
		Total     int                     `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, 120.0, resp.Consensus[0].ConsensusScore)
}

func TestGetHeatmap(t *testing.T) {
	picks := &fakePicks{matrix: models.PerformanceMatrix{Days: []string{"2026-10-16"}}}
	router, _ := newTestRouter(&memoryPredictionStore{}, picks)

	rec := do(t, router, http.MethodGet, "/api/v1/picks/heatmap?days=14", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 14, picks.days)

	rec = do(t, router, http.MethodGet, "/api/v1/picks/heatmap", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, picks.days)

	assert.Equal(t, http.StatusBadRequest, do(t, router, http.MethodGet, "/api/v1/picks/heatmap?days=-1", nil).Code)
}

func TestGetReviewerHealth(t *testing.T) {
	router, _ := newTestRouter(&memoryPredictionStore{}, &fakePicks{healthy: true})

	rec := do(t, router, http.MethodGet, "/api/v1/reviewer/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"healthy": true, "configured": true}`, rec.Body.String())
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func TestHealthCheck(t *testing.T) {
	router, h := newTestRouter(&memoryPredictionStore{}, &fakePicks{})
	h.AddHealthCheck("postgres", fakePinger{}, true)
	h.AddHealthCheck("redis", fakePinger{err: errors.New("refused")}, false)

	rec := do(t, router, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Services["postgres"])
	assert.Equal(t, "unhealthy: refused", resp.Services["redis"])
}

func TestHealthCheck_DegradedWhenRequiredFails(t *testing.T) {
	router, h := newTestRouter(&memoryPredictionStore{}, &fakePicks{})
	h.AddHealthCheck("postgres", fakePinger{err: errors.New("down")}, true)

	rec := do(t, router, http.MethodGet, "/health", nil)

	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}
