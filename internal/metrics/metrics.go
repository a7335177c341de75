package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder publishes pipeline metrics to Prometheus.
type Recorder struct {
	providerCalls   *prometheus.CounterVec
	providerPicks   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	reviewerCalls   *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
}

// New registers the recorder's collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		providerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_provider_calls_total",
				Help: "Total opinion source calls by outcome",
			},
			[]string{"provider", "result"},
		),
		providerPicks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_provider_picks_total",
				Help: "Total picks accepted from each opinion source",
			},
			[]string{"provider"},
		),
		providerLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "oracle_provider_call_seconds",
				Help:    "Duration of opinion source calls in seconds",
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 90, 120},
			},
			[]string{"provider"},
		),
		reviewerCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_reviewer_calls_total",
				Help: "Total reviewer agent calls by outcome",
			},
			[]string{"result"},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oracle_events_published_total",
				Help: "Total events written to Kafka by type and outcome",
			},
			[]string{"event_type", "result"},
		),
	}
}

// ObserveProvider records one settled provider call.
func (r *Recorder) ObserveProvider(provider string, success bool, picks int, elapsed time.Duration) {
	r.providerCalls.WithLabelValues(provider, result(success)).Inc()
	r.providerPicks.WithLabelValues(provider).Add(float64(picks))
	r.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveReviewer records one reviewer call.
func (r *Recorder) ObserveReviewer(success bool) {
	r.reviewerCalls.WithLabelValues(result(success)).Inc()
}

// ObservePublish records one event write.
func (r *Recorder) ObservePublish(eventType string, success bool) {
	r.eventsPublished.WithLabelValues(eventType, result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
