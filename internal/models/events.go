package models

// Event types published on the notification topic.
const (
	EventBatchCompleted     = "PICKS_BATCH_COMPLETED"
	EventReviewFailed       = "REVIEW_FAILED"
	EventPredictionRecorded = "PREDICTION_RECORDED"
	EventPredictionResolved = "PREDICTION_RESOLVED"
)

// Event is the envelope for every message on the event topics.
type Event struct {
	EventType string      `json:"event_type"`
	Source    string      `json:"source"`
	Timestamp string      `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// BatchCompletedData summarizes a finished pipeline run.
type BatchCompletedData struct {
	BatchID         string   `json:"batch_id"`
	SuccessfulCount int      `json:"successful_count"`
	TotalProviders  int      `json:"total_providers"`
	TotalPicks      int      `json:"total_picks"`
	ReviewerPicks   int      `json:"reviewer_picks"`
	TopSymbols      []string `json:"top_symbols"`
}

// ReviewFailedData describes a reviewer failure.
type ReviewFailedData struct {
	BatchID    string    `json:"batch_id"`
	StatusCode int       `json:"status_code,omitempty"`
	Kind       ErrorKind `json:"kind"`
	Error      string    `json:"error"`
}
