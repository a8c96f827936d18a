package usage

import "time"

// maxEvents bounds the raw event history kept in usage.json.
const maxEvents = 500

// UsageData is the root structure persisted to usage.json.
type UsageData struct {
	Version   string          `json:"version"`
	Events    []UsageEvent    `json:"events,omitempty"`
	Aggregate AggregatedStats `json:"aggregate"`
}

// UsageEvent is a single LLM call made while generating a lesson.
type UsageEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Operation    string    `json:"operation"` // generate_lesson
	Subject      string    `json:"subject,omitempty"`
	TeacherRole  string    `json:"teacher_role,omitempty"`
	LessonID     string    `json:"lesson_id,omitempty"`
}

// AggregatedStats holds counters broken down by dimension.
type AggregatedStats struct {
	Total         TokenCounts            `json:"total"`
	Lessons       int64                  `json:"lessons"`
	ByProvider    map[string]TokenCounts `json:"by_provider"`
	ByModel       map[string]TokenCounts `json:"by_model"`
	ByOperation   map[string]TokenCounts `json:"by_operation"`
	BySubject     map[string]TokenCounts `json:"by_subject"`
	ByTeacherRole map[string]TokenCounts `json:"by_teacher_role"`
}

// TokenCounts holds input/output sums.
type TokenCounts struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
	Calls  int64 `json:"calls"`
}

func (tc *TokenCounts) Add(input, output int) {
	tc.Input += int64(input)
	tc.Output += int64(output)
	tc.Total += int64(input + output)
	tc.Calls++
}
