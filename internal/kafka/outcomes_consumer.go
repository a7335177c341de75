package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/tracker"
)

// OutcomeResolver applies a resolved outcome to a stored prediction
type OutcomeResolver interface {
	Resolve(ctx context.Context, id int64, outcome models.Outcome) error
}

// OutcomeEvent is a message on the outcomes topic
type OutcomeEvent struct {
	EventType string           `json:"event_type"`
	Source    string           `json:"source"`
	Timestamp string           `json:"timestamp"`
	Data      OutcomeEventData `json:"data"`
}

// OutcomeEventData identifies the prediction and its verdict
type OutcomeEventData struct {
	PredictionID int64  `json:"prediction_id"`
	Outcome      string `json:"outcome"`
}

// OutcomesConsumer applies outcomes published by the external resolver
type OutcomesConsumer struct {
	reader   *kafka.Reader
	resolver OutcomeResolver
	log      zerolog.Logger
}

// NewOutcomesConsumer creates a new Kafka consumer for prediction outcomes
func NewOutcomesConsumer(brokers []string, topic, groupID string, resolver OutcomeResolver, log zerolog.Logger) *OutcomesConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID + "-outcomes",
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &OutcomesConsumer{
		reader:   reader,
		resolver: resolver,
		log:      log.With().Str("component", "outcomes_consumer").Str("topic", topic).Logger(),
	}
}

// Start consumes until ctx is cancelled
func (c *OutcomesConsumer) Start(ctx context.Context) error {
	c.log.Info().Msg("Starting outcomes consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Outcomes consumer shutting down")
			return nil
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.log.Error().Err(err).Msg("Error reading outcome message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("Error processing outcome message")
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *OutcomesConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event OutcomeEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal outcome event: %w", err)
	}

	if event.EventType != models.EventPredictionResolved {
		c.log.Debug().Str("event_type", event.EventType).Msg("Ignoring event")
		return nil
	}

	outcome := models.Outcome(strings.ToLower(strings.TrimSpace(event.Data.Outcome)))
	if !outcome.Terminal() {
		return fmt.Errorf("prediction %d: outcome %q is not terminal", event.Data.PredictionID, event.Data.Outcome)
	}
	if event.Data.PredictionID <= 0 {
		return fmt.Errorf("invalid prediction id %d", event.Data.PredictionID)
	}

	err := c.resolver.Resolve(ctx, event.Data.PredictionID, outcome)
	if errors.Is(err, tracker.ErrNotPending) {
		c.log.Info().Int64("id", event.Data.PredictionID).Msg("Prediction already resolved or unknown, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to resolve prediction %d: %w", event.Data.PredictionID, err)
	}
	return nil
}

// Close closes the Kafka consumer
func (c *OutcomesConsumer) Close() error {
	return c.reader.Close()
}
