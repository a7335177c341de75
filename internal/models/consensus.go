package models

import "time"

// ConsensusEntry is one symbol's cross-source agreement.
type ConsensusEntry struct {
	Symbol               string   `json:"symbol"`
	AgreementCount       int      `json:"agreement_count"`
	AverageConfidence    float64  `json:"average_confidence"`
	AveragePotentialGain float64  `json:"average_potential_gain"`
	ConsensusScore       float64  `json:"consensus_score"`
	ContributingSources  []string `json:"contributing_sources"`
}

// PerformanceMatrix is the day x source grid of summed potential gain.
// Cells[source][day] is present for every source and day.
type PerformanceMatrix struct {
	Days    []string                      `json:"days"`
	Sources []string                      `json:"sources"`
	Cells   map[string]map[string]float64 `json:"cells"`
}

// Value returns the cell for source and day, or 0 when absent.
func (m PerformanceMatrix) Value(source, day string) float64 {
	row, ok := m.Cells[source]
	if !ok {
		return 0
	}
	return row[day]
}

// PipelineRun is the result of one end-to-end pick generation run.
type PipelineRun struct {
	BatchID     string           `json:"batch_id"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
	Batch       AggregateBatch   `json:"batch"`
	Review      *ReviewResult    `json:"review,omitempty"`
	Consensus   []ConsensusEntry `json:"consensus"`
}
