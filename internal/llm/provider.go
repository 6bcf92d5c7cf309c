package llm

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

const defaultMaxTokens = 1024

type ProviderConfig struct {
	Provider        string
	Model           string
	AnthropicAPIKey string
	OpenAIAPIKey    string
}

// NewFromConfig returns the configured provider client, or nil when no API
// key is available. A nil client means every question takes the
// deterministic path.
func NewFromConfig(log *slog.Logger, cfg ProviderConfig) (Client, string, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		switch {
		case cfg.AnthropicAPIKey != "":
			provider = ProviderAnthropic
		case cfg.OpenAIAPIKey != "":
			provider = ProviderOpenAI
		default:
			log.Info("llm: no model provider configured, using deterministic templates only")
			return nil, "", nil
		}
	}

	switch provider {
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			log.Warn("llm: anthropic selected but ANTHROPIC_API_KEY is not set")
			return nil, "", nil
		}
		return NewAnthropicClient(log, cfg.AnthropicAPIKey, cfg.Model, defaultMaxTokens), provider, nil
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			log.Warn("llm: openai selected but OPENAI_API_KEY is not set")
			return nil, "", nil
		}
		return NewOpenAIClient(log, cfg.OpenAIAPIKey, cfg.Model), provider, nil
	case "none", "off":
		return nil, "", nil
	default:
		return nil, "", fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
