package models

// ReviewerPick is a Pick from the reviewer agent, annotated with the
// primary sources it drew on and whether it deliberately diverges from them.
type ReviewerPick struct {
	Pick
	LearnedFrom   []string `json:"learned_from"`
	ContrarianBet bool     `json:"contrarian_bet"`
}

// ReviewerAnalysis is the normalized body of a successful reviewer response.
type ReviewerAnalysis struct {
	CompetitorReview map[string]string `json:"competitor_review"`
	MarketResearch   string            `json:"market_research"`
	Reasoning        string            `json:"reasoning"`
	Picks            []ReviewerPick    `json:"picks"`
	Dropped          int               `json:"dropped"`
}

// ReviewResult is what the review client hands back. StatusCode holds the
// HTTP status of the reviewer response, or 0 when none was received.
type ReviewResult struct {
	Success    bool                   `json:"success"`
	Analysis   *ReviewerAnalysis      `json:"analysis,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	StatusCode int                    `json:"status_code,omitempty"`
	Kind       ErrorKind              `json:"kind,omitempty"`
	Error      string                 `json:"error,omitempty"`
}

// MarketContext is optional context forwarded to the reviewer.
type MarketContext struct {
	Date      string   `json:"date"`
	Sentiment string   `json:"sentiment"`
	KeyTrends []string `json:"key_trends"`
}

// ReviewInput carries the optional extras of a review request.
type ReviewInput struct {
	MarketData     *MarketContext `json:"market_data,omitempty"`
	NewsContext    []string       `json:"news_context,omitempty"`
	ManualInsights string         `json:"manual_insights,omitempty"`
}
