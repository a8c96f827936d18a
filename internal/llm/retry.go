package llm

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"

	"lessonforge/internal/logging"
	"lessonforge/internal/types"
)

// RetryConfig controls the retry decorator.
type RetryConfig struct {
	MaxRetries int           // retries after the first attempt
	Delay      time.Duration // base delay, doubled per attempt
	MaxDelay   time.Duration
}

// RetryingClient retries transient failures of the wrapped client.
type RetryingClient struct {
	inner Client
	cfg   RetryConfig
}

// WithRetry wraps client so that rate limits, 5xx replies and transport
// failures are retried with exponential backoff.
func WithRetry(client Client, cfg RetryConfig) *RetryingClient {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Delay <= 0 {
		cfg.Delay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	return &RetryingClient{inner: client, cfg: cfg}
}

// Provider returns the wrapped client's provider.
func (r *RetryingClient) Provider() string { return r.inner.Provider() }

// Model returns the wrapped client's model.
func (r *RetryingClient) Model() string { return r.inner.Model() }

// CompleteWithSystem calls the wrapped client until it succeeds, fails
// permanently or runs out of attempts.
func (r *RetryingClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (*types.Completion, error) {
	return retry.DoWithData(
		func() (*types.Completion, error) {
			return r.inner.CompleteWithSystem(ctx, systemPrompt, userPrompt)
		},
		retry.Context(ctx),
		retry.Attempts(uint(r.cfg.MaxRetries+1)),
		retry.Delay(r.cfg.Delay),
		retry.MaxDelay(r.cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(attempt uint, err error) {
			logging.LLMWarn("[%s] attempt %d failed, retrying: %v", r.inner.Provider(), attempt+1, err)
		}),
	)
}
