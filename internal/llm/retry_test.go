package llm

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonforge/internal/config"
	"lessonforge/internal/types"
)

// scriptedClient returns errs in order, then succeeds.
type scriptedClient struct {
	errs  []error
	calls atomic.Int32
}

func (s *scriptedClient) Provider() string { return "scripted" }
func (s *scriptedClient) Model() string    { return "scripted-model" }

func (s *scriptedClient) CompleteWithSystem(ctx context.Context, _, _ string) (*types.Completion, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) {
		return nil, s.errs[n]
	}
	return &types.Completion{Text: "ok", Model: "scripted-model"}, nil
}

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestWithRetry_RetriesTransientFailures(t *testing.T) {
	inner := &scriptedClient{errs: []error{
		&APIError{Provider: ProviderAnthropic, StatusCode: http.StatusTooManyRequests},
		&APIError{Provider: ProviderAnthropic, StatusCode: http.StatusServiceUnavailable},
	}}
	c := WithRetry(inner, fastRetry(3))

	out, err := c.CompleteWithSystem(context.Background(), "s", "u")
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Text)
	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Equal(t, "scripted", c.Provider())
	assert.Equal(t, "scripted-model", c.Model())
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	inner := &scriptedClient{errs: []error{
		&APIError{Provider: ProviderOpenAI, StatusCode: http.StatusUnauthorized, Body: "bad key"},
	}}
	c := WithRetry(inner, fastRetry(3))

	_, err := c.CompleteWithSystem(context.Background(), "s", "u")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	boom := &APIError{Provider: ProviderGemini, StatusCode: http.StatusInternalServerError}
	inner := &scriptedClient{errs: []error{boom, boom, boom, boom, boom}}
	c := WithRetry(inner, fastRetry(2))

	_, err := c.CompleteWithSystem(context.Background(), "s", "u")
	require.Error(t, err)
	assert.Equal(t, int32(3), inner.calls.Load())
}

func TestNewClient_Factory(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "k"

	c, err := NewClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Provider())
	assert.Equal(t, cfg.LLM.Model, c.Model())

	cfg.LLM.Provider = "openai"
	cfg.LLM.Model = ""
	c, err = NewClient(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Provider())
	assert.Equal(t, DefaultOpenAIModel, c.Model())

	cfg.LLM.Provider = "mystery"
	_, err = NewClient(context.Background(), cfg)
	assert.Error(t, err)

	cfg.LLM.Provider = "anthropic"
	cfg.LLM.APIKey = ""
	_, err = NewClient(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestDetectProvider(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	_, _, ok := DetectProvider()
	assert.False(t, ok)

	t.Setenv("ANTHROPIC_API_KEY", "a")
	p, key, ok := DetectProvider()
	require.True(t, ok)
	assert.Equal(t, ProviderAnthropic, p)
	assert.Equal(t, "a", key)

	t.Setenv("GEMINI_API_KEY", "g")
	p, _, _ = DetectProvider()
	assert.Equal(t, ProviderGemini, p)
}
