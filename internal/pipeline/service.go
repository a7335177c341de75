// Package pipeline runs one end-to-end pick generation pass and serves the
// read views built on stored picks.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/consensus"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

const (
	DefaultHeatmapDays = 7
	MaxHeatmapDays     = 90
)

// ErrNoRun is returned by Latest before any run has completed.
var ErrNoRun = errors.New("no pipeline run available")

// Runner fans out to every opinion source.
type Runner interface {
	Run(ctx context.Context) models.AggregateBatch
}

// Reviewer is the second-stage agent.
type Reviewer interface {
	Healthy(ctx context.Context) bool
	Analyze(ctx context.Context, batch models.AggregateBatch, in models.ReviewInput) *models.ReviewResult
}

// PickStore persists generated picks.
type PickStore interface {
	SavePicks(ctx context.Context, batchID string, picks []models.Pick) error
	SaveReviewerPicks(ctx context.Context, batchID string, picks []models.ReviewerPick) error
	ListPicksSince(ctx context.Context, since time.Time) ([]models.Pick, error)
}

// RunCache holds the most recent run.
type RunCache interface {
	SetLatestRun(ctx context.Context, run *models.PipelineRun) error
	GetLatestRun(ctx context.Context) (*models.PipelineRun, error)
}

// Publisher receives pipeline notifications.
type Publisher interface {
	PublishBatchCompleted(ctx context.Context, run *models.PipelineRun) error
	PublishReviewFailed(ctx context.Context, batchID string, review *models.ReviewResult) error
}

// Service wires the orchestrator, reviewer and consensus engine together.
// Run is safe for concurrent use.
type Service struct {
	runner    Runner
	store     PickStore
	reviewer  Reviewer
	cache     RunCache
	publisher Publisher
	window    time.Duration
	log       zerolog.Logger
	now       func() time.Time
	newID     func() string

	latest atomic.Pointer[models.PipelineRun]
}

// Option configures a Service.
type Option func(*Service)

// WithReviewer enables the review stage.
func WithReviewer(r Reviewer) Option {
	return func(s *Service) { s.reviewer = r }
}

// WithCache caches each completed run.
func WithCache(c RunCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithPublisher publishes run notifications.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithConsensusWindow sets how far back Consensus looks for picks.
func WithConsensusWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.window = d
		}
	}
}

// New creates a Service.
func New(runner Runner, store PickStore, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		runner: runner,
		store:  store,
		window: 24 * time.Hour,
		log:    log.With().Str("component", "pipeline").Logger(),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one pass: fan out, store, review, rank, cache, publish.
// Storage, cache and publish failures are logged and never abort the run.
func (s *Service) Run(ctx context.Context, in models.ReviewInput) *models.PipelineRun {
	run := &models.PipelineRun{
		BatchID:   s.newID(),
		StartedAt: s.now().UTC(),
	}
	log := s.log.With().Str("batch_id", run.BatchID).Logger()

	run.Batch = s.runner.Run(ctx)
	log.Info().
		Int("successful", run.Batch.SuccessfulCount).
		Int("providers", len(run.Batch.Results)).
		Int("picks", run.Batch.TotalPicks).
		Msg("Opinion sources settled")

	if picks := run.Batch.AllPicks(); len(picks) > 0 {
		if err := s.store.SavePicks(ctx, run.BatchID, picks); err != nil {
			log.Error().Err(err).Msg("Failed to store picks")
		}
	}

	if run.Batch.SuccessfulCount > 0 && s.reviewer != nil {
		run.Review = s.review(ctx, run.BatchID, run.Batch, in, log)
	}

	run.Consensus = consensus.Rank(consensus.Collect(run.Batch, run.Review))
	run.CompletedAt = s.now().UTC()
	s.latest.Store(run)

	if s.cache != nil {
		if err := s.cache.SetLatestRun(ctx, run); err != nil {
			log.Warn().Err(err).Msg("Failed to cache pipeline run")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishBatchCompleted(ctx, run); err != nil {
			log.Warn().Err(err).Msg("Failed to publish batch completed event")
		}
	}

	log.Info().
		Int("consensus", len(run.Consensus)).
		Dur("elapsed", run.CompletedAt.Sub(run.StartedAt)).
		Msg("Pipeline run completed")
	return run
}

func (s *Service) review(ctx context.Context, batchID string, batch models.AggregateBatch, in models.ReviewInput, log zerolog.Logger) *models.ReviewResult {
	if !s.reviewer.Healthy(ctx) {
		log.Warn().Msg("Reviewer health probe failed, attempting analysis anyway")
	}

	result := s.reviewer.Analyze(ctx, batch, in)
	if result.Success {
		if len(result.Analysis.Picks) > 0 {
			if err := s.store.SaveReviewerPicks(ctx, batchID, result.Analysis.Picks); err != nil {
				log.Error().Err(err).Msg("Failed to store reviewer picks")
			}
		}
		return result
	}

	if s.publisher != nil {
		if err := s.publisher.PublishReviewFailed(ctx, batchID, result); err != nil {
			log.Warn().Err(err).Msg("Failed to publish review failed event")
		}
	}
	return result
}

// Latest returns the most recent run, preferring the shared cache.
func (s *Service) Latest(ctx context.Context) (*models.PipelineRun, error) {
	if s.cache != nil {
		run, err := s.cache.GetLatestRun(ctx)
		if err == nil {
			return run, nil
		}
		s.log.Debug().Err(err).Msg("Cache lookup failed, using local run")
	}
	if run := s.latest.Load(); run != nil {
		return run, nil
	}
	return nil, ErrNoRun
}

// Consensus ranks every pick stored within the consensus window.
func (s *Service) Consensus(ctx context.Context) ([]models.ConsensusEntry, error) {
	picks, err := s.store.ListPicksSince(ctx, s.now().Add(-s.window))
	if err != nil {
		return nil, err
	}
	return consensus.Rank(picks), nil
}

// Heatmap builds the performance matrix over the last days calendar days.
// days defaults to DefaultHeatmapDays and is capped at MaxHeatmapDays.
func (s *Service) Heatmap(ctx context.Context, days int) (models.PerformanceMatrix, error) {
	if days <= 0 {
		days = DefaultHeatmapDays
	}
	if days > MaxHeatmapDays {
		days = MaxHeatmapDays
	}
	now := s.now().UTC()
	since := now.Truncate(24*time.Hour).AddDate(0, 0, -(days - 1))

	picks, err := s.store.ListPicksSince(ctx, since)
	if err != nil {
		return models.PerformanceMatrix{}, err
	}
	return consensus.Matrix(picks, days, now), nil
}

// ReviewerHealthy probes the reviewer. configured is false when no reviewer is set.
func (s *Service) ReviewerHealthy(ctx context.Context) (healthy, configured bool) {
	if s.reviewer == nil {
		return false, false
	}
	return s.reviewer.Healthy(ctx), true
}
