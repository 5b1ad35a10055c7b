package llm

import (
	"fmt"
	"time"
)

// Config holds all LLM provider configuration.
type Config struct {
	// Provider selects the backend: "openai", "anthropic", "gemini" or "mock".
	Provider string

	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Gemini    GeminiConfig
	Retry     RetryConfig

	// Mock is the provider used when Provider is "mock". Nil means an
	// empty MockProvider.
	Mock *MockProvider

	// Debug logs full request and response bodies.
	Debug bool
}

// OpenAIConfig holds configuration for OpenAI and compatible endpoints.
type OpenAIConfig struct {
	APIKey  string
	Model   string // Default: "gpt-4o-mini"
	BaseURL string // Ollama, vLLM, OpenRouter...

	// SchemaFormat sends the JSON schema as the response format. Off means
	// plain JSON mode, which most local servers support.
	SchemaFormat bool
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey string
	Model  string // Default: "claude-haiku"
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey string
	Model  string // Default: "gemini-flash"
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64

	// AttemptTimeout bounds each individual attempt. Zero means only the
	// caller's context applies.
	AttemptTimeout time.Duration
}

// DefaultConfig returns a Config that talks to a local Ollama server and
// retries a failed call once.
func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		OpenAI: OpenAIConfig{
			Model:   "gpt-4o-mini",
			BaseURL: "http://localhost:11434/v1",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-haiku",
		},
		Gemini: GeminiConfig{
			Model: "gemini-flash",
		},
		Retry: RetryConfig{
			MaxAttempts:    2,
			InitialWait:    500 * time.Millisecond,
			MaxWait:        5 * time.Second,
			Multiplier:     2.0,
			AttemptTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that the selected provider has what it needs.
func (c Config) Validate() error {
	switch c.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" && c.OpenAI.BaseURL == "" {
			return fmt.Errorf("an API key or base URL is required for the openai provider")
		}
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("an API key is required for the anthropic provider")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("an API key is required for the gemini provider")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}
