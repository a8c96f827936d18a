package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClient_CompleteWithSystem(t *testing.T) {
	var got anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"model": "claude-test",
			"content": [{"type": "text", "text": "  {\"title\": \"Fractions\"}  "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 120, "output_tokens": 45}
		}`)
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/", MaxTokens: 1000, Temperature: 0.3})
	require.NoError(t, err)

	out, err := c.CompleteWithSystem(context.Background(), "be kind", "plan a lesson")
	require.NoError(t, err)
	assert.Equal(t, `{"title": "Fractions"}`, out.Text)
	assert.Equal(t, "claude-test", out.Model)
	assert.Equal(t, "end_turn", out.StopReason)
	assert.Equal(t, 120, out.Usage.InputTokens)
	assert.Equal(t, 45, out.Usage.OutputTokens)
	assert.Equal(t, 165, out.Usage.TotalTokens)

	assert.Equal(t, DefaultAnthropicModel, got.Model)
	assert.Equal(t, "be kind", got.System)
	assert.Equal(t, 1000, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "plan a lesson", got.Messages[0].Content)
	assert.Equal(t, "anthropic", c.Provider())
}

func TestAnthropicClient_StatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"type":"rate_limit_error","message":"slow down"}}`)
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.CompleteWithSystem(context.Background(), "", "hi")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.True(t, IsRetryable(err))
}

func TestNewClients_RequireAPIKey(t *testing.T) {
	_, err := NewAnthropicClient(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
	_, err = NewOpenAIClient(Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
	_, err = NewGeminiClient(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestOpenAIClient_CompleteWithSystem(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer oa-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{
			"model": "gpt-test",
			"choices": [{"message": {"role": "assistant", "content": "# Lesson\n- step"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30}
		}`)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Config{APIKey: "oa-key", BaseURL: srv.URL, Model: "gpt-test"})
	require.NoError(t, err)

	out, err := c.CompleteWithSystem(context.Background(), "system text", "user text")
	require.NoError(t, err)
	assert.Equal(t, "# Lesson\n- step", out.Text)
	assert.Equal(t, "stop", out.StopReason)
	assert.Equal(t, 30, out.Usage.TotalTokens)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user text", got.Messages[1].Content)
}

func TestOpenAIClient_NoChoicesIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices": []}`)
	}))
	defer srv.Close()

	c, err := NewOpenAIClient(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.CompleteWithSystem(context.Background(), "", "hi")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestGeminiClient_CompleteWithSystem(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "lesson text"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3, "totalTokenCount": 10}
		}`)
	}))
	defer srv.Close()

	c, err := NewGeminiClient(context.Background(), Config{APIKey: "g-key", BaseURL: srv.URL, Model: "gemini-test"})
	require.NoError(t, err)

	out, err := c.CompleteWithSystem(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "lesson text", out.Text)
	assert.Equal(t, "STOP", out.StopReason)
	assert.Equal(t, 7, out.Usage.InputTokens)
	assert.Equal(t, 3, out.Usage.OutputTokens)
	assert.Equal(t, "gemini-test", c.Model())
}

func TestGeminiClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		reason    string
		wantCalls int32
	}{
		{"unauthenticated is not retried", http.StatusUnauthorized, "UNAUTHENTICATED", 1},
		{"bad request is not retried", http.StatusBadRequest, "INVALID_ARGUMENT", 1},
		{"rate limit is retried", http.StatusTooManyRequests, "RESOURCE_EXHAUSTED", 4},
		{"server error is retried", http.StatusServiceUnavailable, "UNAVAILABLE", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error": {"code": %d, "message": "request rejected", "status": %q}}`, tt.status, tt.reason)
			}))
			defer srv.Close()

			gc, err := NewGeminiClient(context.Background(), Config{APIKey: "g-key", BaseURL: srv.URL, Model: "gemini-test"})
			require.NoError(t, err)
			c := WithRetry(gc, RetryConfig{MaxRetries: 3, Delay: time.Millisecond, MaxDelay: 5 * time.Millisecond})

			_, err = c.CompleteWithSystem(context.Background(), "system", "user")
			require.Error(t, err)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "got %T: %v", err, err)
			assert.Equal(t, ProviderGemini, apiErr.Provider)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Contains(t, apiErr.Body, tt.reason)
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestGeminiError_PassesThroughTransportFailures(t *testing.T) {
	err := geminiError(errors.New("connection reset"))
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
	assert.True(t, IsRetryable(err))
}

func TestAPIError_Retryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
	}
	for _, tt := range tests {
		err := &APIError{Provider: ProviderOpenAI, StatusCode: tt.status, Body: "x"}
		assert.Equal(t, tt.want, IsRetryable(err), "status %d", tt.status)
	}

	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.True(t, IsRetryable(errors.New("connection reset")))
}

func TestAPIError_TruncatesBody(t *testing.T) {
	err := &APIError{Provider: ProviderAnthropic, StatusCode: 500, Body: strings.Repeat("x", 1000)}
	assert.Less(t, len(err.Error()), 400)
}

func TestWithDeadline_KeepsExistingDeadline(t *testing.T) {
	parent, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	want, _ := parent.Deadline()

	ctx, done := withDeadline(parent, time.Second)
	defer done()
	got, ok := ctx.Deadline()
	require.True(t, ok)
	assert.Equal(t, want, got)
}
