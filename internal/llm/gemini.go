package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"lessonforge/internal/logging"
	"lessonforge/internal/types"
)

// GeminiClient calls Gemini through the Google GenAI SDK.
type GeminiClient struct {
	cfg    Config
	client *genai.Client
}

// NewGeminiClient creates a Gemini client.
func NewGeminiClient(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrNoAPIKey)
	}
	cfg = cfg.withDefaults("", DefaultGeminiModel)
	cfg.Provider = ProviderGemini

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL + "/"}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{cfg: cfg, client: client}, nil
}

// Provider returns "gemini".
func (c *GeminiClient) Provider() string { return string(ProviderGemini) }

// Model returns the configured model id.
func (c *GeminiClient) Model() string { return c.cfg.Model }

// CompleteWithSystem sends the user prompt with the system prompt as system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (*types.Completion, error) {
	ctx, cancel := withDeadline(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	logging.LLMDebug("[Gemini] CompleteWithSystem: model=%s system_len=%d user_len=%d", c.cfg.Model, len(systemPrompt), len(userPrompt))

	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(c.cfg.Temperature)),
		MaxOutputTokens: int32(c.cfg.MaxTokens),
	}
	if systemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model,
		[]*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}, gc)
	if err != nil {
		logging.LLMError("[Gemini] GenerateContent failed: %v", err)
		return nil, geminiError(err)
	}

	out := &types.Completion{
		Text:  strings.TrimSpace(resp.Text()),
		Model: c.cfg.Model,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 {
		out.StopReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = types.UsageMetadata{
			InputTokens:  int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	logging.LLM("[Gemini] completed in %v response_len=%d", time.Since(start), len(out.Text))
	return out, nil
}

// geminiError maps SDK status errors onto APIError so the shared retry rule
// applies. Anything else is treated as a transport failure.
func geminiError(err error) error {
	var status genai.APIError
	var statusPtr *genai.APIError
	switch {
	case errors.As(err, &status):
	case errors.As(err, &statusPtr) && statusPtr != nil:
		status = *statusPtr
	default:
		return fmt.Errorf("GenAI generate failed: %w", err)
	}
	body := status.Message
	if status.Status != "" {
		body = status.Status + ": " + body
	}
	return &APIError{Provider: ProviderGemini, StatusCode: status.Code, Body: body}
}
