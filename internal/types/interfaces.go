package types

import "context"

// LLMClient defines the interface for hosted LLM providers.
type LLMClient interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (*Completion, error)
	Provider() string
	Model() string
}

// Completion is a single LLM reply with its token usage.
type Completion struct {
	Text       string        `json:"text"`
	Model      string        `json:"model"`
	StopReason string        `json:"stop_reason,omitempty"`
	Usage      UsageMetadata `json:"usage"`
}

// UsageMetadata captures token usage metrics from the LLM.
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
