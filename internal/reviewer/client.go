// Package reviewer talks to the second-stage reviewer agent, which reads
// every primary source's picks and answers with its own cross-referenced
// analysis.
package reviewer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/extract"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/platform/httpclient"
)

const (
	analysisPath = "/stock-analysis"
	// HealthTimeout is the hard deadline of the health probe.
	HealthTimeout = 5 * time.Second
)

var defaultStopLossRatio = decimal.RequireFromString("0.9")

// Recorder receives one observation per analysis call.
type Recorder interface {
	ObserveReviewer(success bool)
}

// Client calls the reviewer endpoint.
type Client struct {
	baseURL  string
	token    string
	name     string
	http     *http.Client
	recorder Recorder
	log      zerolog.Logger
	now      func() time.Time

	healthTimeout time.Duration
}

// NewClient creates a Client. name is stamped on every reviewer pick.
func NewClient(baseURL, token, name string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if name == "" {
		name = models.UnknownSource
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		name:    name,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "reviewer").Logger(),
		now:     time.Now,

		healthTimeout: HealthTimeout,
	}
}

// SetRecorder reports each analysis call to rec.
func (c *Client) SetRecorder(rec Recorder) {
	c.recorder = rec
}

// Name returns the reviewer's AI name.
func (c *Client) Name() string {
	return c.name
}

// CompetitorPick is one primary-source pick as sent to the reviewer.
type CompetitorPick struct {
	AIName      string  `json:"ai_name"`
	Symbol      string  `json:"symbol"`
	EntryPrice  float64 `json:"entry_price"`
	TargetPrice float64 `json:"target_price"`
	StopLoss    float64 `json:"stop_loss"`
	Confidence  int     `json:"confidence"`
	Reasoning   string  `json:"reasoning"`
	Sector      string  `json:"sector,omitempty"`
	Catalyst    string  `json:"catalyst,omitempty"`
}

// AnalysisRequest is the POST body of an analysis call.
type AnalysisRequest struct {
	CompetitorPicks []CompetitorPick      `json:"competitor_picks"`
	MarketData      *models.MarketContext `json:"market_data,omitempty"`
	NewsContext     []string              `json:"news_context,omitempty"`
	ManualInsights  string                `json:"manual_insights,omitempty"`
}

type analysisBody struct {
	CompetitorReview json.RawMessage `json:"competitor_review"`
	MarketResearch   json.RawMessage `json:"market_research"`
	JavariReasoning  json.RawMessage `json:"javari_reasoning"`
	Picks            []interface{}   `json:"picks"`
}

type analysisResponse struct {
	Success        bool                   `json:"success"`
	JavariAnalysis *analysisBody          `json:"javari_analysis"`
	Metadata       map[string]interface{} `json:"metadata"`
	Error          string                 `json:"error"`
	Message        string                 `json:"message"`
}

// BuildRequest normalizes the successful picks of batch into a request body.
// A missing stop loss defaults to 90% of the entry price.
func BuildRequest(batch models.AggregateBatch, in models.ReviewInput) AnalysisRequest {
	req := AnalysisRequest{
		CompetitorPicks: make([]CompetitorPick, 0, batch.TotalPicks),
		MarketData:      in.MarketData,
		NewsContext:     in.NewsContext,
		ManualInsights:  in.ManualInsights,
	}
	for _, p := range batch.AllPicks() {
		stop := p.StopLoss
		if !stop.IsPositive() {
			stop = p.EntryPrice.Mul(defaultStopLossRatio)
		}
		req.CompetitorPicks = append(req.CompetitorPicks, CompetitorPick{
			AIName:      p.AIName,
			Symbol:      p.Symbol,
			EntryPrice:  p.EntryPrice.InexactFloat64(),
			TargetPrice: p.TargetPrice.InexactFloat64(),
			StopLoss:    stop.InexactFloat64(),
			Confidence:  p.ConfidenceScore,
			Reasoning:   p.Reasoning,
			Sector:      p.Sector,
			Catalyst:    p.Catalyst,
		})
	}
	return req
}

// Analyze sends batch to the reviewer. It never returns an error: failures
// come back as a ReviewResult with Success=false and, when the reviewer
// answered, its HTTP status.
func (c *Client) Analyze(ctx context.Context, batch models.AggregateBatch, in models.ReviewInput) *models.ReviewResult {
	result := c.analyze(ctx, batch, in)
	if c.recorder != nil {
		c.recorder.ObserveReviewer(result.Success)
	}
	if result.Success {
		c.log.Info().Int("picks", len(result.Analysis.Picks)).Msg("Reviewer analysis received")
	} else {
		c.log.Warn().
			Int("status", result.StatusCode).
			Str("kind", string(result.Kind)).
			Str("error", result.Error).
			Msg("Reviewer analysis failed")
	}
	return result
}

func (c *Client) analyze(ctx context.Context, batch models.AggregateBatch, in models.ReviewInput) *models.ReviewResult {
	body := BuildRequest(batch, in)
	if len(body.CompetitorPicks) == 0 {
		return failure(0, models.KindValidation, "no competitor picks to review")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return failure(0, models.KindValidation, fmt.Sprintf("marshal request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+analysisPath, bytes.NewReader(payload))
	if err != nil {
		return failure(0, models.KindNetwork, fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return failure(0, models.KindNetwork, fmt.Sprintf("reviewer request failed: %v", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(resp.StatusCode, models.KindNetwork, fmt.Sprintf("read response: %v", err))
	}

	var decoded analysisResponse
	decodeErr := decodeNumbers(data, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := fmt.Sprintf("reviewer returned %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		if decodeErr == nil && (decoded.Error != "" || decoded.Message != "") {
			msg = strings.TrimSpace(strings.Join(nonEmpty(decoded.Error, decoded.Message), ": "))
		}
		return failure(resp.StatusCode, httpclient.ClassifyStatus(resp.StatusCode), msg)
	}
	if decodeErr != nil {
		return failure(resp.StatusCode, models.KindMalformedResponse, fmt.Sprintf("decode response: %v", decodeErr))
	}
	if !decoded.Success || decoded.JavariAnalysis == nil {
		msg := strings.Join(nonEmpty(decoded.Error, decoded.Message), ": ")
		if msg == "" {
			msg = "reviewer response carried no analysis"
		}
		return failure(resp.StatusCode, models.KindMalformedResponse, msg)
	}

	return &models.ReviewResult{
		Success:    true,
		StatusCode: resp.StatusCode,
		Analysis:   c.normalize(decoded.JavariAnalysis, batch.Sources()),
		Metadata:   decoded.Metadata,
	}
}

// normalize coerces reviewer picks, restricts learned_from to sources that
// actually contributed to the batch and renumbers ranks 1..n. Elements that
// are not valid picks are dropped and counted.
func (c *Client) normalize(body *analysisBody, sources []string) *models.ReviewerAnalysis {
	known := make(map[string]string, len(sources))
	for _, s := range sources {
		known[strings.ToLower(s)] = s
	}

	analysis := &models.ReviewerAnalysis{
		CompetitorReview: reviewMap(body.CompetitorReview),
		MarketResearch:   rawText(body.MarketResearch),
		Reasoning:        rawText(body.JavariReasoning),
		Picks:            make([]models.ReviewerPick, 0, len(body.Picks)),
	}

	generatedAt := c.now().UTC()
	for i, item := range body.Picks {
		fields, ok := item.(map[string]interface{})
		if !ok {
			analysis.Dropped++
			continue
		}
		pick, err := extract.CoercePick(fields, i+1)
		if err != nil {
			c.log.Debug().Err(err).Msg("Dropping reviewer pick")
			analysis.Dropped++
			continue
		}
		pick.AIName = c.name
		pick.CreatedAt = generatedAt
		pick.IsTopPick = toBool(fields["is_top_pick"])

		rp := models.ReviewerPick{
			Pick:          pick,
			LearnedFrom:   learnedFrom(fields["learned_from"], known),
			ContrarianBet: toBool(fields["contrarian_bet"]),
		}
		analysis.Picks = append(analysis.Picks, rp)
	}

	sort.SliceStable(analysis.Picks, func(i, j int) bool {
		return analysis.Picks[i].Rank < analysis.Picks[j].Rank
	})
	for i := range analysis.Picks {
		analysis.Picks[i].Rank = i + 1
	}

	if analysis.Dropped > 0 {
		c.log.Warn().Int("dropped", analysis.Dropped).Msg("Reviewer returned invalid picks")
	}
	return analysis
}

func learnedFrom(v interface{}, known map[string]string) []string {
	out := []string{}
	list, ok := v.([]interface{})
	if !ok {
		return out
	}
	seen := make(map[string]bool, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			continue
		}
		canonical, ok := known[strings.ToLower(strings.TrimSpace(s))]
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}
	return out
}

// Healthy probes the reviewer with a GET bounded by HealthTimeout. The
// answer is advisory.
func (c *Client) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+analysisPath, nil)
	if err != nil {
		c.log.Warn().Err(err).Msg("Reviewer health probe failed")
		return false
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("Reviewer health probe failed")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	healthy := resp.StatusCode >= 200 && resp.StatusCode <= 299
	c.log.Debug().Int("status", resp.StatusCode).Bool("healthy", healthy).Msg("Reviewer health probe")
	return healthy
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func failure(status int, kind models.ErrorKind, msg string) *models.ReviewResult {
	return &models.ReviewResult{Success: false, StatusCode: status, Kind: kind, Error: msg}
}

func decodeNumbers(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// rawText renders a JSON string as its value and anything else as compact JSON.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// reviewMap accepts either a per-source object or a single narrative.
func reviewMap(raw json.RawMessage) map[string]string {
	out := map[string]string{}
	if len(raw) == 0 || string(raw) == "null" {
		return out
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for k, v := range obj {
			out[k] = rawText(v)
		}
		return out
	}
	out["summary"] = rawText(raw)
	return out
}

func toBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true")
	}
	return false
}

func nonEmpty(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
