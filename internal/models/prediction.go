package models

import "time"

// PredictionType is the direction of a tracked prediction.
type PredictionType string

const (
	PredictionLong  PredictionType = "long"
	PredictionShort PredictionType = "short"
	PredictionHold  PredictionType = "hold"
)

// PredictionTypes lists every direction in reporting order.
var PredictionTypes = []PredictionType{PredictionLong, PredictionShort, PredictionHold}

// Outcome is the resolved truth value of a prediction.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomePending, OutcomeSuccess, OutcomeFailure:
		return true
	}
	return false
}

// Terminal reports whether o is a resolved outcome.
func (o Outcome) Terminal() bool {
	return o == OutcomeSuccess || o == OutcomeFailure
}

// Prediction is a trackable directional claim. Confidence is a probability
// on a 0-1 scale, unlike Pick.ConfidenceScore.
type Prediction struct {
	ID             int64          `json:"id"`
	Symbol         string         `json:"symbol"`
	PredictionType PredictionType `json:"prediction_type"`
	Confidence     float64        `json:"confidence"`
	TargetPrice    *float64       `json:"target_price,omitempty"`
	TimeframeDays  *int           `json:"timeframe_days,omitempty"`
	Reasoning      string         `json:"reasoning,omitempty"`
	PredictedAt    time.Time      `json:"predicted_at"`
	ActualOutcome  Outcome        `json:"actual_outcome"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// PredictionInput is a request to record a prediction.
type PredictionInput struct {
	Symbol         string     `json:"symbol" validate:"required,max=16"`
	PredictionType string     `json:"prediction_type" validate:"required,oneof=long short hold"`
	Confidence     *float64   `json:"confidence" validate:"required,gte=0,lte=1"`
	TargetPrice    *float64   `json:"target_price,omitempty" validate:"omitempty,gt=0"`
	TimeframeDays  *int       `json:"timeframe_days,omitempty" validate:"omitempty,gt=0"`
	Reasoning      string     `json:"reasoning,omitempty"`
	PredictedAt    *time.Time `json:"predicted_at,omitempty"`
}

// PredictionFilter narrows a prediction query.
type PredictionFilter struct {
	Symbol  string
	Outcome Outcome
	Limit   int
}

// TypeStats is the accuracy breakdown for one prediction type.
type TypeStats struct {
	Total    int     `json:"total"`
	Success  int     `json:"success"`
	Accuracy float64 `json:"accuracy"`
}

// Stats aggregates a set of predictions.
type Stats struct {
	Total             int                          `json:"total"`
	Pending           int                          `json:"pending"`
	Success           int                          `json:"success"`
	Failure           int                          `json:"failure"`
	Accuracy          float64                      `json:"accuracy"`
	AverageConfidence float64                      `json:"average_confidence"`
	ByType            map[PredictionType]TypeStats `json:"by_type"`
}
