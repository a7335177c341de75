package providers

import (
	"context"
	"strings"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/platform/httpclient"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
)

// AnthropicCompleter calls the Anthropic Messages API.
type AnthropicCompleter struct {
	http    *httpclient.Client
	apiKey  string
	baseURL string
	model   string
}

// NewAnthropicCompleter creates a completer. An empty baseURL targets the public API.
func NewAnthropicCompleter(client *httpclient.Client, apiKey, baseURL, model string) *AnthropicCompleter {
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	return &AnthropicCompleter{
		http:    client,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Complete sends instruction as a single user message.
func (c *AnthropicCompleter) Complete(ctx context.Context, instruction string) (string, error) {
	req := anthropicRequest{
		Model:     c.model,
		MaxTokens: 4000,
		System:    SystemPrompt,
		Messages:  []anthropicMessage{{Role: "user", Content: instruction}},
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/v1/messages", headers, req, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", models.NewError(models.KindMalformedResponse, "message has no text content", nil)
	}
	return sb.String(), nil
}
