package llm

import (
	"context"
	"fmt"
)

// NewProvider creates a Provider from configuration, wrapped as
// caller → retry → logging → base. recorder may be nil.
func NewProvider(ctx context.Context, cfg Config, recorder Recorder) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error

	switch cfg.Provider {
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "mock":
		if cfg.Mock != nil {
			base = cfg.Mock
		} else {
			base = NewMockProvider()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	logged := WithLogging(base, recorder, cfg.Debug)
	return WithRetry(logged, cfg.Retry), nil
}
