// Package tracker records long-lived directional predictions and reports
// their accuracy once an external resolver has settled them.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ErrNotPending is returned when resolving a prediction that is missing or
// already resolved.
var ErrNotPending = errors.New("prediction is not pending")

// Store persists predictions.
type Store interface {
	InsertPrediction(ctx context.Context, p *models.Prediction) error
	ListPredictions(ctx context.Context, filter models.PredictionFilter) ([]*models.Prediction, error)
	// ResolvePrediction reports false when no pending row matched.
	ResolvePrediction(ctx context.Context, id int64, outcome models.Outcome, at time.Time) (bool, error)
}

// Publisher is notified of recorded predictions. Failures are logged only.
type Publisher interface {
	PublishPredictionRecorded(ctx context.Context, p *models.Prediction) error
}

// Tracker validates and stores predictions.
type Tracker struct {
	store     Store
	publisher Publisher
	validate  *validator.Validate
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a Tracker. publisher may be nil.
func New(store Store, publisher Publisher, log zerolog.Logger) *Tracker {
	return &Tracker{
		store:     store,
		publisher: publisher,
		validate:  validator.New(),
		log:       log.With().Str("component", "tracker").Logger(),
		now:       time.Now,
	}
}

// Record validates in and stores it as a pending prediction. Invalid input
// yields a ValidationError and nothing is written.
func (t *Tracker) Record(ctx context.Context, in models.PredictionInput) (*models.Prediction, error) {
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	in.PredictionType = strings.ToLower(strings.TrimSpace(in.PredictionType))

	if err := t.validate.Struct(in); err != nil {
		return nil, models.NewError(models.KindValidation, describe(err), err)
	}

	predictedAt := t.now().UTC()
	if in.PredictedAt != nil && !in.PredictedAt.IsZero() {
		predictedAt = in.PredictedAt.UTC()
	}

	p := &models.Prediction{
		Symbol:         in.Symbol,
		PredictionType: models.PredictionType(in.PredictionType),
		Confidence:     *in.Confidence,
		TargetPrice:    in.TargetPrice,
		TimeframeDays:  in.TimeframeDays,
		Reasoning:      strings.TrimSpace(in.Reasoning),
		PredictedAt:    predictedAt,
		ActualOutcome:  models.OutcomePending,
	}
	if err := t.store.InsertPrediction(ctx, p); err != nil {
		return nil, fmt.Errorf("record prediction: %w", err)
	}

	t.log.Info().Int64("id", p.ID).Str("symbol", p.Symbol).Str("type", string(p.PredictionType)).Msg("Prediction recorded")

	if t.publisher != nil {
		if err := t.publisher.PublishPredictionRecorded(ctx, p); err != nil {
			t.log.Warn().Err(err).Int64("id", p.ID).Msg("Failed to publish prediction event")
		}
	}
	return p, nil
}

// Query lists predictions, most recent first. The limit defaults to
// DefaultLimit and is capped at MaxLimit.
func (t *Tracker) Query(ctx context.Context, filter models.PredictionFilter) ([]*models.Prediction, error) {
	filter.Symbol = strings.ToUpper(strings.TrimSpace(filter.Symbol))
	if filter.Outcome != "" && !filter.Outcome.Valid() {
		return nil, models.NewError(models.KindValidation, fmt.Sprintf("unknown outcome %q", filter.Outcome), nil)
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultLimit
	}
	if filter.Limit > MaxLimit {
		filter.Limit = MaxLimit
	}

	predictions, err := t.store.ListPredictions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	if predictions == nil {
		predictions = []*models.Prediction{}
	}
	return predictions, nil
}

// Resolve moves a pending prediction to a terminal outcome. A prediction
// is resolved at most once; later attempts return ErrNotPending.
func (t *Tracker) Resolve(ctx context.Context, id int64, outcome models.Outcome) error {
	if !outcome.Terminal() {
		return models.NewError(models.KindValidation, fmt.Sprintf("outcome %q is not terminal", outcome), nil)
	}
	ok, err := t.store.ResolvePrediction(ctx, id, outcome, t.now().UTC())
	if err != nil {
		return fmt.Errorf("resolve prediction %d: %w", id, err)
	}
	if !ok {
		return ErrNotPending
	}
	t.log.Info().Int64("id", id).Str("outcome", string(outcome)).Msg("Prediction resolved")
	return nil
}

// ComputeStats aggregates predictions. Accuracy is success / (success +
// failure), or 0 when nothing is resolved; ratios are rounded to 2 places.
func ComputeStats(predictions []*models.Prediction) models.Stats {
	stats := models.Stats{ByType: make(map[models.PredictionType]models.TypeStats, len(models.PredictionTypes))}
	for _, pt := range models.PredictionTypes {
		stats.ByType[pt] = models.TypeStats{}
	}

	confidence := decimal.Zero
	resolvedByType := map[models.PredictionType]int{}
	for _, p := range predictions {
		if p == nil {
			continue
		}
		stats.Total++
		confidence = confidence.Add(decimal.NewFromFloat(p.Confidence))

		ts := stats.ByType[p.PredictionType]
		ts.Total++
		switch p.ActualOutcome {
		case models.OutcomeSuccess:
			stats.Success++
			ts.Success++
			resolvedByType[p.PredictionType]++
		case models.OutcomeFailure:
			stats.Failure++
			resolvedByType[p.PredictionType]++
		default:
			stats.Pending++
		}
		stats.ByType[p.PredictionType] = ts
	}

	stats.Accuracy = ratio(stats.Success, stats.Success+stats.Failure)
	if stats.Total > 0 {
		stats.AverageConfidence = confidence.Div(decimal.NewFromInt(int64(stats.Total))).Round(2).InexactFloat64()
	}
	for pt, ts := range stats.ByType {
		ts.Accuracy = ratio(ts.Success, resolvedByType[pt])
		stats.ByType[pt] = ts
	}
	return stats
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(num)).Div(decimal.NewFromInt(int64(den))).Round(2).InexactFloat64()
}

// describe turns validator errors into one readable message.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := toSnake(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		case "gte", "lte":
			msgs = append(msgs, field+" must be between 0 and 1")
		case "gt":
			msgs = append(msgs, field+" must be greater than "+fe.Param())
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
