// Package llm wraps remote text-generation services behind one interface.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Providers accepted by NewFromConfig.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// ErrBudgetExhausted is returned once the daily call budget is used up.
var ErrBudgetExhausted = errors.New("daily generation budget exhausted")

// ErrEmptyResponse is returned when the service answers without text.
var ErrEmptyResponse = errors.New("empty response")

// Request is a single text-generation call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int32
	Temperature float32
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider     string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
	OpenAIURL    string
	DailyLimit   int
}

// Client is a Generator that may hold resources.
type Client interface {
	Generator
	Close() error
}

// NewFromConfig returns the configured client, or nil when generation is
// disabled or the provider has no API key.
func NewFromConfig(ctx context.Context, cfg Config) (Client, error) {
	var (
		c   Client
		err error
	)
	switch cfg.Provider {
	case ProviderNone, "":
		return nil, nil
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, nil
		}
		c, err = NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, nil
		}
		c = NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIURL)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.DailyLimit > 0 {
		return NewBudget(c, cfg.DailyLimit), nil
	}
	return c, nil
}
