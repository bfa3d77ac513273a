package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider names accepted by New.
const (
	ProviderGemini    = "gemini"
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// DefaultModels per provider.
var DefaultModels = map[string]string{
	ProviderGemini:    "gemini-2.0-flash",
	ProviderGroq:      "llama-3.3-70b-versatile",
	ProviderOpenAI:    "gpt-4o-mini",
	ProviderAnthropic: "claude-sonnet-4-20250514",
	ProviderOllama:    "llama3.1",
}

// ErrMissingKey is returned when a hosted provider has no API key.
var ErrMissingKey = errors.New("missing API key")

// Config selects and configures a provider.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// NeedsKey reports whether provider requires an API key.
func NeedsKey(provider string) bool {
	return strings.ToLower(provider) != ProviderOllama
}

// New builds the configured provider.
func New(ctx context.Context, cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if _, ok := DefaultModels[name]; !ok {
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if NeedsKey(name) && cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrMissingKey)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModels[name]
	}

	switch name {
	case ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, model)
	case ProviderGroq:
		if cfg.BaseURL != "" {
			return NewOpenAI(ProviderGroq, cfg.APIKey, cfg.BaseURL, model), nil
		}
		return NewGroq(cfg.APIKey, model), nil
	case ProviderOpenAI:
		return NewOpenAI(ProviderOpenAI, cfg.APIKey, cfg.BaseURL, model), nil
	case ProviderAnthropic:
		return NewAnthropic(cfg.APIKey, cfg.BaseURL, model), nil
	default:
		return NewOllama(cfg.BaseURL, model), nil
	}
}
