package llm

import (
	"context"
	"fmt"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds LLM client configuration.
type Config struct {
	Provider  string // "openai" or "anthropic"
	APIKey    string // Required: API key for the provider
	BaseURL   string // Optional: custom API endpoint
	Model     string // Model name
	MaxTokens int
}

// Enabled reports whether the configuration is usable.
func (c Config) Enabled() bool {
	return c.APIKey != "" && (c.Provider == ProviderOpenAI || c.Provider == ProviderAnthropic || c.Provider == "")
}

// Client is a single-turn completion client.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// NewClient selects the provider from cfg.Provider. Defaults to Anthropic
// when no provider is specified.
func NewClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderAnthropic
	}

	switch provider {
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
