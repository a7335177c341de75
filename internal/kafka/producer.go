package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

const eventSource = "market-oracle"

// Writer is the subset of *kafka.Writer used by Producer
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PublishRecorder counts event writes
type PublishRecorder interface {
	ObservePublish(eventType string, success bool)
}

// Producer publishes notification events to a single topic
type Producer struct {
	writer   Writer
	recorder PublishRecorder
	log      zerolog.Logger
	now      func() time.Time
}

// NewProducer creates a producer writing to topic. Messages are keyed so
// events about the same batch or symbol land on one partition.
func NewProducer(brokers []string, topic string, log zerolog.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Gzip,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewProducerWithWriter(writer, log)
}

// NewProducerWithWriter wraps an existing writer
func NewProducerWithWriter(w Writer, log zerolog.Logger) *Producer {
	return &Producer{
		writer: w,
		log:    log.With().Str("component", "producer").Logger(),
		now:    time.Now,
	}
}

// SetRecorder reports every write to rec
func (p *Producer) SetRecorder(rec PublishRecorder) {
	p.recorder = rec
}

// Publish wraps data in an Event envelope and writes it under key
func (p *Producer) Publish(ctx context.Context, eventType, key string, data interface{}) error {
	event := models.Event{
		EventType: eventType,
		Source:    eventSource,
		Timestamp: p.now().UTC().Format(time.RFC3339),
		Data:      data,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  p.now(),
	})
	if p.recorder != nil {
		p.recorder.ObservePublish(eventType, err == nil)
	}
	if err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.log.Debug().Str("event_type", eventType).Str("key", key).Msg("Event published")
	return nil
}

// PublishBatchCompleted announces a finished pipeline run
func (p *Producer) PublishBatchCompleted(ctx context.Context, run *models.PipelineRun) error {
	data := models.BatchCompletedData{
		BatchID:         run.BatchID,
		SuccessfulCount: run.Batch.SuccessfulCount,
		TotalProviders:  len(run.Batch.Results),
		TotalPicks:      run.Batch.TotalPicks,
		TopSymbols:      make([]string, 0, len(run.Consensus)),
	}
	if run.Review != nil && run.Review.Success && run.Review.Analysis != nil {
		data.ReviewerPicks = len(run.Review.Analysis.Picks)
	}
	for _, entry := range run.Consensus {
		data.TopSymbols = append(data.TopSymbols, entry.Symbol)
	}
	return p.Publish(ctx, models.EventBatchCompleted, run.BatchID, data)
}

// PublishReviewFailed announces a failed reviewer call
func (p *Producer) PublishReviewFailed(ctx context.Context, batchID string, review *models.ReviewResult) error {
	return p.Publish(ctx, models.EventReviewFailed, batchID, models.ReviewFailedData{
		BatchID:    batchID,
		StatusCode: review.StatusCode,
		Kind:       review.Kind,
		Error:      review.Error,
	})
}

// PublishPredictionRecorded announces a newly stored prediction
func (p *Producer) PublishPredictionRecorded(ctx context.Context, pred *models.Prediction) error {
	return p.Publish(ctx, models.EventPredictionRecorded, pred.Symbol, pred)
}

// Close flushes and closes the writer
func (p *Producer) Close() error {
	return p.writer.Close()
}
