package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/mtzanidakis/agentcrew/internal/config"
)

// NewFromConfig builds the completer selected by cfg.Provider.
func NewFromConfig(ctx context.Context, cfg config.LLMConfig) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm provider %q: api key not set", provider)
	}

	switch provider {
	case "", "openai":
		return &OpenAI{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			HTTPClient: httpClient(cfg.Timeout),
		}, nil
	case "anthropic":
		return &Anthropic{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			MaxRetries: cfg.MaxRetries,
			HTTPClient: httpClient(cfg.Timeout),
		}, nil
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
