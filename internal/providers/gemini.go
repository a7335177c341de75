package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/platform/httpclient"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com"

// GeminiCompleter calls the Gemini generateContent API.
type GeminiCompleter struct {
	http    *httpclient.Client
	apiKey  string
	baseURL string
	model   string
}

// NewGeminiCompleter creates a completer. An empty baseURL targets the public API.
func NewGeminiCompleter(client *httpclient.Client, apiKey, baseURL, model string) *GeminiCompleter {
	if baseURL == "" {
		baseURL = defaultGeminiURL
	}
	return &GeminiCompleter{
		http:    client,
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Complete sends instruction as a single user turn.
func (c *GeminiCompleter) Complete(ctx context.Context, instruction string) (string, error) {
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: SystemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: instruction}}}},
	}
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)

	var resp geminiResponse
	if err := c.http.PostJSON(ctx, url, map[string]string{"x-goog-api-key": c.apiKey}, req, &resp); err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 {
		return "", models.NewError(models.KindMalformedResponse, "response has no candidates", nil)
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
