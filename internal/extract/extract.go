// Package extract recovers structured pick batches from free-form model
// output. It never panics on bad input: every failure comes back as a
// *models.Error of kind MalformedResponse or ValidationError.
package extract

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
)

// DefaultTopPickCount is how many of the strongest picks carry IsTopPick.
const DefaultTopPickCount = 5

// Numeric fields outside these bounds are rejected before any arithmetic.
const (
	maxNumberLen   = 64
	maxExponentAbs = 30
)

// Batch is a validated set of picks recovered from one response.
type Batch struct {
	Picks   []models.Pick
	Dropped int
}

// Extractor turns raw text into a Batch.
type Extractor struct {
	TopPickCount int
}

// New creates an Extractor flagging the topPickCount lowest ranks as top picks.
func New(topPickCount int) *Extractor {
	if topPickCount <= 0 {
		topPickCount = DefaultTopPickCount
	}
	return &Extractor{TopPickCount: topPickCount}
}

// Extract uses an Extractor with the default top-pick count.
func Extract(text string) (*Batch, error) {
	return New(DefaultTopPickCount).Extract(text)
}

// Extract parses text as a JSON object, falling back to the span between
// the first '{' and the last '}', and validates its picks. Invalid elements
// are dropped and counted; a batch with no surviving element is malformed.
func (e *Extractor) Extract(text string) (*Batch, error) {
	doc, err := locateObject(text)
	if err != nil {
		return nil, err
	}

	raw, ok := doc["picks"]
	if !ok {
		return nil, models.NewError(models.KindMalformedResponse, "response has no picks field", nil)
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, models.NewError(models.KindMalformedResponse, "picks field is not a list", nil)
	}

	batch := &Batch{Picks: make([]models.Pick, 0, len(items))}
	for i, item := range items {
		fields, ok := item.(map[string]interface{})
		if !ok {
			batch.Dropped++
			continue
		}
		pick, err := CoercePick(fields, i+1)
		if err != nil {
			batch.Dropped++
			continue
		}
		batch.Picks = append(batch.Picks, pick)
	}

	if len(batch.Picks) == 0 {
		return nil, models.NewError(models.KindMalformedResponse,
			fmt.Sprintf("no valid picks in response (%d dropped)", batch.Dropped), nil)
	}

	e.normalizeRanks(batch.Picks)
	return batch, nil
}

// normalizeRanks orders picks by their stated rank, renumbers them 1..n and
// flags the strongest TopPickCount as top picks.
func (e *Extractor) normalizeRanks(picks []models.Pick) {
	sort.SliceStable(picks, func(i, j int) bool {
		return picks[i].Rank < picks[j].Rank
	})
	for i := range picks {
		picks[i].Rank = i + 1
		picks[i].IsTopPick = picks[i].Rank <= e.TopPickCount
	}
}

func locateObject(text string) (map[string]interface{}, error) {
	if doc, err := decodeObject(strings.TrimSpace(text)); err == nil && doc != nil {
		return doc, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, models.NewError(models.KindMalformedResponse, "no JSON object found in response", nil)
	}

	doc, err := decodeObject(text[start : end+1])
	if err != nil {
		return nil, models.NewError(models.KindMalformedResponse, "invalid JSON object in response", err)
	}
	if doc == nil {
		return nil, models.NewError(models.KindMalformedResponse, "empty JSON object in response", nil)
	}
	return doc, nil
}

func decodeObject(s string) (map[string]interface{}, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var doc map[string]interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	return doc, nil
}

// CoercePick validates one decoded pick element. position is its 1-based
// index in the source list and stands in for a missing rank.
func CoercePick(fields map[string]interface{}, position int) (models.Pick, error) {
	var pick models.Pick

	symbol := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(toString(fields["symbol"])), "$"))
	if symbol == "" {
		return pick, validationErr("symbol is required")
	}
	pick.Symbol = symbol

	entry, ok := toDecimal(fields["entry_price"])
	if !ok || !entry.IsPositive() {
		return pick, validationErr(fmt.Sprintf("%s: entry_price must be a positive number", symbol))
	}
	target, ok := toDecimal(fields["target_price"])
	if !ok || !target.IsPositive() {
		return pick, validationErr(fmt.Sprintf("%s: target_price must be a positive number", symbol))
	}
	pick.EntryPrice = entry
	pick.TargetPrice = target

	if v, present := fields["stop_loss"]; present && v != nil {
		stop, ok := toDecimal(v)
		if !ok || stop.IsNegative() {
			return pick, validationErr(fmt.Sprintf("%s: stop_loss must be a number", symbol))
		}
		pick.StopLoss = stop
	}

	rawConfidence, present := fields["confidence_score"]
	if !present {
		rawConfidence = fields["confidence"]
	}
	confidence, ok := toDecimal(rawConfidence)
	if !ok {
		return pick, validationErr(fmt.Sprintf("%s: confidence_score must be a number", symbol))
	}
	c := confidence.InexactFloat64()
	if c < 0 || c > 100 {
		return pick, validationErr(fmt.Sprintf("%s: confidence_score %v outside [0,100]", symbol, c))
	}
	pick.ConfidenceScore = int(math.Round(c))

	pick.Rank = position
	if r, ok := toDecimal(fields["rank"]); ok && r.IsPositive() {
		pick.Rank = int(r.IntPart())
	}

	pick.Reasoning = strings.TrimSpace(toString(fields["reasoning"]))
	pick.Timeframe = strings.TrimSpace(toString(fields["timeframe"]))
	pick.Sector = strings.TrimSpace(toString(fields["sector"]))
	pick.Catalyst = strings.TrimSpace(toString(fields["catalyst"]))

	return pick, nil
}

func validationErr(msg string) error {
	return models.NewError(models.KindValidation, msg, nil)
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		return fmt.Sprint(s)
	}
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	var d decimal.Decimal
	switch n := v.(type) {
	case json.Number:
		parsed, ok := parseDecimal(n.String())
		if !ok {
			return decimal.Zero, false
		}
		d = parsed
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		d = decimal.NewFromFloat(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimPrefix(s, "$")
		s = strings.TrimSuffix(s, "%")
		s = strings.ReplaceAll(s, ",", "")
		parsed, ok := parseDecimal(strings.TrimSpace(s))
		if !ok {
			return decimal.Zero, false
		}
		d = parsed
	default:
		return decimal.Zero, false
	}
	return d, inRange(d)
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	if len(s) > maxNumberLen {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	return d, err == nil
}

// inRange keeps Rat and float conversions cheap: their cost grows with the
// exponent, not with the length of the input.
func inRange(d decimal.Decimal) bool {
	exp := d.Exponent()
	return exp >= -maxExponentAbs && exp <= maxExponentAbs
}
