package providers

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/config"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/extract"
	"github.com/CR-AudioViz-AI/market-oracle-app-sub001/internal/platform/httpclient"
)

// Build creates one Provider per configured source, preserving order.
func Build(cfgs []config.ProviderConfig, client *httpclient.Client, extractor *extract.Extractor, log zerolog.Logger) ([]Provider, error) {
	out := make([]Provider, 0, len(cfgs))
	for _, cfg := range cfgs {
		var completer Completer
		switch cfg.Kind {
		case config.KindOpenAI:
			completer = NewOpenAICompleter(cfg.APIKey, cfg.BaseURL, cfg.Model)
		case config.KindAnthropic:
			completer = NewAnthropicCompleter(client, cfg.APIKey, cfg.BaseURL, cfg.Model)
		case config.KindGemini:
			completer = NewGeminiCompleter(client, cfg.APIKey, cfg.BaseURL, cfg.Model)
		default:
			return nil, fmt.Errorf("provider %s: unknown kind %q", cfg.Name, cfg.Kind)
		}
		out = append(out, NewAdapter(cfg.Name, completer, extractor, log))
	}
	return out, nil
}
