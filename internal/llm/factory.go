package llm

import (
	"context"
	"fmt"
	"os"

	"lessonforge/internal/config"
)

// NewClient builds the configured provider client wrapped in the retry decorator.
func NewClient(ctx context.Context, cfg *config.Config) (Client, error) {
	lc := cfg.LLM
	base := Config{
		Provider:    Provider(lc.Provider),
		APIKey:      lc.APIKey,
		Model:       lc.Model,
		BaseURL:     lc.BaseURL,
		Timeout:     cfg.GetLLMTimeout(),
		MaxTokens:   lc.MaxTokens,
		Temperature: lc.Temperature,
	}

	var (
		client Client
		err    error
	)
	switch base.Provider {
	case ProviderAnthropic, "":
		client, err = NewAnthropicClient(base)
	case ProviderOpenAI:
		client, err = NewOpenAIClient(base)
	case ProviderGemini:
		client, err = NewGeminiClient(ctx, base)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", lc.Provider)
	}
	if err != nil {
		return nil, err
	}

	return WithRetry(client, RetryConfig{
		MaxRetries: lc.MaxRetries,
		Delay:      cfg.GetRetryDelay(),
	}), nil
}

// DetectProvider reports which provider the environment has credentials for.
// Priority matches the config overrides: GEMINI > OPENAI > ANTHROPIC.
func DetectProvider() (Provider, string, bool) {
	for _, p := range []struct {
		env      string
		provider Provider
	}{
		{"GEMINI_API_KEY", ProviderGemini},
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
	} {
		if key := os.Getenv(p.env); key != "" {
			return p.provider, key, true
		}
	}
	return "", "", false
}
