// Package orchestrator fans a pick request out to every configured opinion
// source and waits for all of them to settle.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/providers"
)

// Recorder receives one observation per settled provider call.
type Recorder interface {
	ObserveProvider(provider string, success bool, picks int, elapsed time.Duration)
}

// Orchestrator runs providers concurrently. It holds no per-run state, so
// Run may be called from several goroutines at once.
type Orchestrator struct {
	providers []providers.Provider
	timeout   time.Duration
	recorder  Recorder
	log       zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTimeout bounds every provider call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithRecorder reports each settled call to rec.
func WithRecorder(rec Recorder) Option {
	return func(o *Orchestrator) { o.recorder = rec }
}

// New creates an Orchestrator over ps, in registration order.
func New(ps []providers.Provider, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers: append([]providers.Provider(nil), ps...),
		log:       log.With().Str("component", "orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Providers returns the number of registered providers.
func (o *Orchestrator) Providers() int {
	return len(o.providers)
}

// Run invokes every provider concurrently and returns once all have settled.
// Results are in registration order; a failing or panicking provider only
// affects its own slot.
func (o *Orchestrator) Run(ctx context.Context) models.AggregateBatch {
	results := make([]models.ProviderResult, len(o.providers))

	var wg sync.WaitGroup
	for i, p := range o.providers {
		wg.Add(1)
		go func(i int, p providers.Provider) {
			defer wg.Done()
			results[i] = o.call(ctx, p)
		}(i, p)
	}
	wg.Wait()

	batch := models.NewAggregateBatch(results)
	o.log.Info().
		Int("providers", len(o.providers)).
		Int("successful", batch.SuccessfulCount).
		Int("picks", batch.TotalPicks).
		Msg("Provider fan-out settled")
	if len(o.providers) > 0 && batch.SuccessfulCount == 0 {
		o.log.Warn().Msg("No opinions available: every provider failed")
	}
	return batch
}

func (o *Orchestrator) call(ctx context.Context, p providers.Provider) models.ProviderResult {
	name := safeName(p)
	start := time.Now()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	// A provider that ignores ctx keeps running in the background; its late
	// result is discarded.
	done := make(chan models.ProviderResult, 1)
	go func() {
		done <- o.fetch(ctx, p, name)
	}()

	var result models.ProviderResult
	select {
	case result = <-done:
	case <-ctx.Done():
		result = models.FailedResult(name,
			models.NewError(models.KindNetwork, "provider did not respond before deadline", ctx.Err()))
	}

	if result.AIName == "" {
		result.AIName = name
	}
	if !result.Success {
		result.Picks = []models.Pick{}
	}
	if o.recorder != nil {
		o.recorder.ObserveProvider(result.AIName, result.Success, len(result.Picks), time.Since(start))
	}
	return result
}

func (o *Orchestrator) fetch(ctx context.Context, p providers.Provider, name string) (result models.ProviderResult) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Str("provider", name).Interface("panic", r).Msg("Provider panicked")
			result = models.FailedResult(name, fmt.Errorf("provider panicked: %v", r))
		}
	}()
	return p.FetchPicks(ctx)
}

func safeName(p providers.Provider) (name string) {
	defer func() {
		if recover() != nil || name == "" {
			name = models.UnknownSource
		}
	}()
	return p.Name()
}
