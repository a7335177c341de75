package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

// --- Mocks ---

type fakeRunner struct {
	batch models.AggregateBatch
	calls int
	mu    sync.Mutex
}

func (r *fakeRunner) Run(ctx context.Context) models.AggregateBatch {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.batch
}

type fakeReviewer struct {
	healthy  bool
	result   *models.ReviewResult
	analyzed int
	probed   int
}

func (r *fakeReviewer) Healthy(ctx context.Context) bool {
	r.probed++
	return r.healthy
}

func (r *fakeReviewer) Analyze(ctx context.Context, batch models.AggregateBatch, in models.ReviewInput) *models.ReviewResult {
	r.analyzed++
	return r.result
}

type fakeStore struct {
	mu            sync.Mutex
	saved         map[string][]models.Pick
	reviewerSaved map[string][]models.ReviewerPick
	listed        []models.Pick
	since         time.Time
	err           error
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: map[string][]models.Pick{}, reviewerSaved: map[string][]models.ReviewerPick{}}
}

func (s *fakeStore) SavePicks(ctx context.Context, batchID string, picks []models.Pick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved[batchID] = picks
	return nil
}

func (s *fakeStore) SaveReviewerPicks(ctx context.Context, batchID string, picks []models.ReviewerPick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reviewerSaved[batchID] = picks
	return nil
}

func (s *fakeStore) ListPicksSince(ctx context.Context, since time.Time) ([]models.Pick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.since = since
	return s.listed, s.err
}

type fakeCache struct {
	run *models.PipelineRun
	err error
}

func (c *fakeCache) SetLatestRun(ctx context.Context, run *models.PipelineRun) error {
	if c.err != nil {
		return c.err
	}
	c.run = run
	return nil
}

func (c *fakeCache) GetLatestRun(ctx context.Context) (*models.PipelineRun, error) {
	if c.run == nil {
		return nil, errors.New("miss")
	}
	return c.run, nil
}

type fakePublisher struct {
	completed []*models.PipelineRun
	failed    []*models.ReviewResult
}

func (p *fakePublisher) PublishBatchCompleted(ctx context.Context, run *models.PipelineRun) error {
	p.completed = append(p.completed, run)
	return nil
}

func (p *fakePublisher) PublishReviewFailed(ctx context.Context, batchID string, review *models.ReviewResult) error {
	p.failed = append(p.failed, review)
	return nil
}

func pick(source, symbol string, entry, target int64, confidence int) models.Pick {
	return models.Pick{
		AIName:          source,
		Symbol:          symbol,
		EntryPrice:      decimal.NewFromInt(entry),
		TargetPrice:     decimal.NewFromInt(target),
		ConfidenceScore: confidence,
	}
}

func twoSourceBatch() models.AggregateBatch {
	return models.NewAggregateBatch([]models.ProviderResult{
		{AIName: "GPT-4", Success: true, Picks: []models.Pick{pick("GPT-4", "ABCD", 100, 110, 75), pick("GPT-4", "SOLO", 10, 20, 90)}},
		{AIName: "Claude", Success: true, Picks: []models.Pick{pick("Claude", "ABCD", 100, 130, 85)}},
		models.FailedResult("Gemini", errors.New("timeout")),
	})
}

var fixedNow = time.Date(2026, 10, 16, 13, 30, 0, 0, time.UTC)

func newTestService(runner Runner, store PickStore, opts ...Option) *Service {
	s := New(runner, store, zerolog.Nop(), opts...)
	s.now = func() time.Time { return fixedNow }
	s.newID = func() string { return "batch-1" }
	return s
}

// --- Run ---

func TestRun_FullPass(t *testing.T) {
	store := newFakeStore()
	reviewer := &fakeReviewer{healthy: true, result: &models.ReviewResult{
		Success: true,
		Analysis: &models.ReviewerAnalysis{Picks: []models.ReviewerPick{
			{Pick: pick("Javari", "SOLO", 10, 15, 60), LearnedFrom: []string{"GPT-4"}},
		}},
	}}
	cache := &fakeCache{}
	pub := &fakePublisher{}
	svc := newTestService(&fakeRunner{batch: twoSourceBatch()}, store,
		WithReviewer(reviewer), WithCache(cache), WithPublisher(pub))

	run := svc.Run(context.Background(), models.ReviewInput{})

	assert.Equal(t, "batch-1", run.BatchID)
	assert.Equal(t, 2, run.Batch.SuccessfulCount)
	assert.Len(t, store.saved["batch-1"], 3)
	assert.Len(t, store.reviewerSaved["batch-1"], 1)
	assert.Equal(t, 1, reviewer.probed)
	assert.Equal(t, 1, reviewer.analyzed)

	// The reviewer's SOLO pick gives it a second source.
	require.Len(t, run.Consensus, 2)
	assert.Equal(t, "SOLO", run.Consensus[0].Symbol)
	assert.Equal(t, 227.5, run.Consensus[0].ConsensusScore)
	assert.Equal(t, "ABCD", run.Consensus[1].Symbol)
	assert.Equal(t, 120.0, run.Consensus[1].ConsensusScore)

	assert.Same(t, run, cache.run)
	require.Len(t, pub.completed, 1)
	assert.Empty(t, pub.failed)
}

func TestRun_ReviewFailurePublishedAndRunContinues(t *testing.T) {
	store := newFakeStore()
	reviewer := &fakeReviewer{healthy: false, result: &models.ReviewResult{
		Success: false, StatusCode: 503, Kind: models.KindNetwork, Error: "unavailable",
	}}
	pub := &fakePublisher{}
	svc := newTestService(&fakeRunner{batch: twoSourceBatch()}, store, WithReviewer(reviewer), WithPublisher(pub))

	run := svc.Run(context.Background(), models.ReviewInput{})

	assert.Equal(t, 1, reviewer.analyzed)
	require.NotNil(t, run.Review)
	assert.Equal(t, 503, run.Review.StatusCode)
	require.Len(t, pub.failed, 1)
	require.Len(t, pub.completed, 1)
	require.Len(t, run.Consensus, 1)
	assert.Empty(t, store.reviewerSaved)
}

func TestRun_AllSourcesFailedSkipsReview(t *testing.T) {
	store := newFakeStore()
	reviewer := &fakeReviewer{healthy: true}
	batch := models.NewAggregateBatch([]models.ProviderResult{
		models.FailedResult("GPT-4", errors.New("401")),
		models.FailedResult("Claude", errors.New("429")),
	})
	svc := newTestService(&fakeRunner{batch: batch}, store, WithReviewer(reviewer))

	run := svc.Run(context.Background(), models.ReviewInput{})

	assert.Equal(t, 0, run.Batch.SuccessfulCount)
	assert.Nil(t, run.Review)
	assert.Equal(t, 0, reviewer.analyzed)
	assert.Empty(t, run.Consensus)
	assert.Empty(t, store.saved)
}

func TestRun_StorageAndCacheFailuresDoNotAbort(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("db down")
	pub := &fakePublisher{}
	svc := newTestService(&fakeRunner{batch: twoSourceBatch()}, store,
		WithCache(&fakeCache{err: errors.New("redis down")}), WithPublisher(pub))

	run := svc.Run(context.Background(), models.ReviewInput{})

	assert.Len(t, run.Consensus, 1)
	assert.Len(t, pub.completed, 1)

	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Same(t, run, latest)
}

func TestRun_ConcurrentCallers(t *testing.T) {
	runner := &fakeRunner{batch: twoSourceBatch()}
	svc := New(runner, newFakeStore(), zerolog.Nop())

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = svc.Run(context.Background(), models.ReviewInput{}).BatchID
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate batch id %s", id)
		seen[id] = true
	}
	assert.Equal(t, 8, runner.calls)
}

// --- Read views ---

func TestLatest_NoRun(t *testing.T) {
	svc := newTestService(&fakeRunner{}, newFakeStore(), WithCache(&fakeCache{}))

	_, err := svc.Latest(context.Background())

	assert.ErrorIs(t, err, ErrNoRun)
}

func TestLatest_PrefersCache(t *testing.T) {
	cached := &models.PipelineRun{BatchID: "from-cache"}
	svc := newTestService(&fakeRunner{}, newFakeStore(), WithCache(&fakeCache{run: cached}))

	run, err := svc.Latest(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "from-cache", run.BatchID)
}

func TestConsensus_UsesWindow(t *testing.T) {
	store := newFakeStore()
	store.listed = twoSourceBatch().AllPicks()
	svc := newTestService(&fakeRunner{}, store, WithConsensusWindow(6*time.Hour))

	entries, err := svc.Consensus(context.Background())

	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(-6*time.Hour), store.since)
	require.Len(t, entries, 1)
	assert.Equal(t, "ABCD", entries[0].Symbol)
}

func TestHeatmap_DaysDefaultsAndCap(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(&fakeRunner{}, store)

	m, err := svc.Heatmap(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, m.Days, DefaultHeatmapDays)
	assert.Equal(t, time.Date(2026, 10, 10, 0, 0, 0, 0, time.UTC), store.since)

	m, err = svc.Heatmap(context.Background(), 365)
	require.NoError(t, err)
	assert.Len(t, m.Days, MaxHeatmapDays)
}

func TestHeatmap_StoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("db down")
	svc := newTestService(&fakeRunner{}, store)

	_, err := svc.Heatmap(context.Background(), 7)

	assert.Error(t, err)
}

func TestReviewerHealthy(t *testing.T) {
	svc := newTestService(&fakeRunner{}, newFakeStore())
	healthy, configured := svc.ReviewerHealthy(context.Background())
	assert.False(t, healthy)
	assert.False(t, configured)

	svc = newTestService(&fakeRunner{}, newFakeStore(), WithReviewer(&fakeReviewer{healthy: true}))
	healthy, configured = svc.ReviewerHealthy(context.Background())
	assert.True(t, healthy)
	assert.True(t, configured)
}
