package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnknownSource is reported as the AI name when a provider cannot name itself.
const UnknownSource = "Unknown"

// Pick is one directional stock recommendation produced by an opinion source.
// ConfidenceScore is on a 0-100 integer scale.
type Pick struct {
	AIName          string          `json:"ai_name"`
	Symbol          string          `json:"symbol"`
	EntryPrice      decimal.Decimal `json:"entry_price"`
	TargetPrice     decimal.Decimal `json:"target_price"`
	StopLoss        decimal.Decimal `json:"stop_loss"`
	ConfidenceScore int             `json:"confidence_score"`
	Reasoning       string          `json:"reasoning"`
	Timeframe       string          `json:"timeframe,omitempty"`
	Sector          string          `json:"sector,omitempty"`
	Catalyst        string          `json:"catalyst,omitempty"`
	IsTopPick       bool            `json:"is_top_pick"`
	Rank            int             `json:"rank"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PotentialGainPct returns (target - entry) / entry * 100.
func (p Pick) PotentialGainPct() decimal.Decimal {
	if p.EntryPrice.IsZero() {
		return decimal.Zero
	}
	return p.TargetPrice.Sub(p.EntryPrice).Div(p.EntryPrice).Mul(decimal.NewFromInt(100))
}

// ProviderResult is the outcome of one opinion-source invocation.
// Picks is empty whenever Success is false.
type ProviderResult struct {
	AIName  string `json:"ai_name"`
	Success bool   `json:"success"`
	Picks   []Pick `json:"picks"`
	Error   string `json:"error,omitempty"`
}

// FailedResult builds a failed ProviderResult for the named source.
func FailedResult(aiName string, err error) ProviderResult {
	if aiName == "" {
		aiName = UnknownSource
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ProviderResult{AIName: aiName, Success: false, Picks: []Pick{}, Error: msg}
}

// AggregateBatch is the settled output of one orchestrator fan-out.
// Results keep the registration order of the providers.
type AggregateBatch struct {
	Results         []ProviderResult `json:"results"`
	SuccessfulCount int              `json:"successful_count"`
	TotalPicks      int              `json:"total_picks"`
}

// NewAggregateBatch derives the counters from results.
func NewAggregateBatch(results []ProviderResult) AggregateBatch {
	batch := AggregateBatch{Results: results}
	if batch.Results == nil {
		batch.Results = []ProviderResult{}
	}
	for _, r := range batch.Results {
		if !r.Success {
			continue
		}
		batch.SuccessfulCount++
		batch.TotalPicks += len(r.Picks)
	}
	return batch
}

// Sources returns the names of the providers that succeeded.
func (b AggregateBatch) Sources() []string {
	names := make([]string, 0, b.SuccessfulCount)
	for _, r := range b.Results {
		if r.Success {
			names = append(names, r.AIName)
		}
	}
	return names
}

// AllPicks flattens the picks of every successful result.
func (b AggregateBatch) AllPicks() []Pick {
	picks := make([]Pick, 0, b.TotalPicks)
	for _, r := range b.Results {
		if r.Success {
			picks = append(picks, r.Picks...)
		}
	}
	return picks
}
