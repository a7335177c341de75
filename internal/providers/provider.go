// Package providers adapts heterogeneous text-generating opinion sources to
// one capability: fetch a batch of picks as a models.ProviderResult.
package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/extract"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

// Provider is one opinion source. FetchPicks never returns an error: every
// failure is folded into a ProviderResult with Success=false.
type Provider interface {
	Name() string
	FetchPicks(ctx context.Context) models.ProviderResult
}

// Completer sends one instruction to a model and returns its raw text reply.
type Completer interface {
	Complete(ctx context.Context, instruction string) (string, error)
}

// Adapter turns a Completer into a Provider.
type Adapter struct {
	name      string
	completer Completer
	extractor *extract.Extractor
	log       zerolog.Logger
	now       func() time.Time
}

// NewAdapter creates a Provider named name backed by completer.
func NewAdapter(name string, completer Completer, extractor *extract.Extractor, log zerolog.Logger) *Adapter {
	if name == "" {
		name = models.UnknownSource
	}
	if extractor == nil {
		extractor = extract.New(extract.DefaultTopPickCount)
	}
	return &Adapter{
		name:      name,
		completer: completer,
		extractor: extractor,
		log:       log.With().Str("component", "provider").Str("provider", name).Logger(),
		now:       time.Now,
	}
}

// Name returns the canonical AI name stamped on every pick.
func (a *Adapter) Name() string {
	return a.name
}

// FetchPicks issues the pick instruction and extracts the reply.
func (a *Adapter) FetchPicks(ctx context.Context) models.ProviderResult {
	start := a.now()

	text, err := a.completer.Complete(ctx, PickInstruction)
	if err != nil {
		return a.fail(err, start)
	}

	batch, err := a.extractor.Extract(text)
	if err != nil {
		return a.fail(err, start)
	}

	generatedAt := a.now().UTC()
	for i := range batch.Picks {
		batch.Picks[i].AIName = a.name
		batch.Picks[i].CreatedAt = generatedAt
	}

	a.log.Info().
		Int("picks", len(batch.Picks)).
		Int("dropped", batch.Dropped).
		Dur("elapsed", a.now().Sub(start)).
		Msg("Generated picks")

	return models.ProviderResult{AIName: a.name, Success: true, Picks: batch.Picks}
}

func (a *Adapter) fail(err error, start time.Time) models.ProviderResult {
	kind := models.KindOf(err)
	a.log.Warn().
		Err(err).
		Str("kind", string(kind)).
		Dur("elapsed", a.now().Sub(start)).
		Msg("Provider failed")
	return models.FailedResult(a.name, fmt.Errorf("%s: %w", a.name, err))
}
