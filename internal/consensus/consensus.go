// Package consensus ranks symbols by cross-source agreement and buckets
// potential gain into a day x source matrix for heat-map reporting.
package consensus

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

const (
	// MinSources is the number of distinct sources a symbol needs to rank.
	MinSources = 2
	// MaxEntries caps the ranked output.
	MaxEntries = 10

	dayLayout = "2006-01-02"
)

var (
	agreementWeight  = decimal.NewFromInt(20)
	confidenceWeight = decimal.RequireFromString("0.5")
	gainWeight       = decimal.NewFromInt(2)
)

type group struct {
	symbol     string
	sources    []string
	seen       map[string]bool
	confidence decimal.Decimal
	gain       decimal.Decimal
	n          int64
}

// Collect flattens the successful primary picks of batch together with the
// reviewer's picks, when a successful review is present.
func Collect(batch models.AggregateBatch, review *models.ReviewResult) []models.Pick {
	picks := batch.AllPicks()
	if review == nil || !review.Success || review.Analysis == nil {
		return picks
	}
	for _, rp := range review.Analysis.Picks {
		picks = append(picks, rp.Pick)
	}
	return picks
}

// Rank groups picks by symbol and scores every group backed by at least
// MinSources distinct sources:
//
//	score = agreement*20 + avgConfidence*0.5 + avgGain*2
//
// Averages run over every pick in the group. Entries are ordered by
// descending score, then ascending symbol, and truncated to MaxEntries.
func Rank(picks []models.Pick) []models.ConsensusEntry {
	groups := make(map[string]*group)
	for _, p := range picks {
		if p.Symbol == "" {
			continue
		}
		g, ok := groups[p.Symbol]
		if !ok {
			g = &group{symbol: p.Symbol, seen: map[string]bool{}}
			groups[p.Symbol] = g
		}
		source := p.AIName
		if source == "" {
			source = models.UnknownSource
		}
		if !g.seen[source] {
			g.seen[source] = true
			g.sources = append(g.sources, source)
		}
		g.confidence = g.confidence.Add(decimal.NewFromInt(int64(p.ConfidenceScore)))
		g.gain = g.gain.Add(p.PotentialGainPct())
		g.n++
	}

	entries := make([]models.ConsensusEntry, 0, len(groups))
	for _, g := range groups {
		if len(g.sources) < MinSources {
			continue
		}
		count := decimal.NewFromInt(int64(g.n))
		avgConfidence := g.confidence.Div(count)
		avgGain := g.gain.Div(count)
		score := decimal.NewFromInt(int64(len(g.sources))).Mul(agreementWeight).
			Add(avgConfidence.Mul(confidenceWeight)).
			Add(avgGain.Mul(gainWeight))

		entries = append(entries, models.ConsensusEntry{
			Symbol:               g.symbol,
			AgreementCount:       len(g.sources),
			AverageConfidence:    avgConfidence.Round(2).InexactFloat64(),
			AveragePotentialGain: avgGain.Round(2).InexactFloat64(),
			ConsensusScore:       score.Round(2).InexactFloat64(),
			ContributingSources:  g.sources,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ConsensusScore != entries[j].ConsensusScore {
			return entries[i].ConsensusScore > entries[j].ConsensusScore
		}
		return entries[i].Symbol < entries[j].Symbol
	})
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	return entries
}

// Matrix sums potential gain per (source, UTC calendar day) over the days
// calendar days ending at now. Every cell is present; days without picks
// from a source hold 0. Picks outside the window are ignored.
func Matrix(picks []models.Pick, days int, now time.Time) models.PerformanceMatrix {
	if days <= 0 {
		days = 1
	}
	end := now.UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -(days - 1))

	m := models.PerformanceMatrix{
		Days:    make([]string, 0, days),
		Sources: []string{},
		Cells:   map[string]map[string]float64{},
	}
	for d := 0; d < days; d++ {
		m.Days = append(m.Days, start.AddDate(0, 0, d).Format(dayLayout))
	}

	sums := map[string]map[string]decimal.Decimal{}
	for _, p := range picks {
		day := p.CreatedAt.UTC().Truncate(24 * time.Hour)
		if day.Before(start) || day.After(end) {
			continue
		}
		source := p.AIName
		if source == "" {
			source = models.UnknownSource
		}
		row, ok := sums[source]
		if !ok {
			row = map[string]decimal.Decimal{}
			sums[source] = row
			m.Sources = append(m.Sources, source)
		}
		key := day.Format(dayLayout)
		row[key] = row[key].Add(p.PotentialGainPct())
	}
	sort.Strings(m.Sources)

	for _, source := range m.Sources {
		cells := make(map[string]float64, days)
		for _, day := range m.Days {
			cells[day] = sums[source][day].Round(2).InexactFloat64()
		}
		m.Cells[source] = cells
	}
	return m
}
