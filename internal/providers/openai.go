package providers

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/models"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/platform/httpclient"
)

// OpenAICompleter talks to any OpenAI-compatible chat completions API.
type OpenAICompleter struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAICompleter creates a completer. An empty baseURL targets OpenAI.
func NewOpenAICompleter(apiKey, baseURL, model string) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if model == "" {
		model = openai.GPT4
	}
	return &OpenAICompleter{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: 4000,
	}
}

// Complete sends instruction as a single user turn.
func (c *OpenAICompleter) Complete(ctx context.Context, instruction string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: instruction},
		},
		Temperature: 0.7,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", models.NewError(models.KindMalformedResponse, "completion returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return models.NewError(httpclient.ClassifyStatus(apiErr.HTTPStatusCode), "chat completion rejected", err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return models.NewError(httpclient.ClassifyStatus(reqErr.HTTPStatusCode), "chat completion failed", err)
	}
	return models.NewError(models.KindNetwork, "chat completion failed", err)
}
