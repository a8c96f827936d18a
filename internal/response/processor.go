// Package response turns raw LLM output into structured lesson plans.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"lessonforge/internal/logging"
)

// Parse methods, in the order they are attempted.
const (
	MethodJSON         = "json"
	MethodJSONMarkdown = "json_markdown"
	MethodJSONExtract  = "json_extracted"
	MethodTextFallback = "text_fallback"
)

var (
	// ErrEmptyResponse is returned for blank model output.
	ErrEmptyResponse = errors.New("empty LLM response")
	// ErrNoJSON is returned in strict mode when no lesson JSON was found.
	ErrNoJSON = errors.New("no lesson plan JSON found")
)

// Processor parses model output: LLM raw output → parse → validate → LessonPlan.
type Processor struct {
	// Strict rejects responses that contain no parseable lesson JSON.
	Strict bool

	mu    sync.Mutex
	stats Stats
}

// Stats tracks parsing outcomes for monitoring.
type Stats struct {
	Total    int
	JSON     int
	Fallback int
	Failures int
}

// Result is a parsed response plus metadata about how it was parsed.
type Result struct {
	Plan        *LessonPlan
	ParseMethod string
	Confidence  float64
	Warnings    []string

	// Original raw response, kept for debugging
	RawResponse string
}

// NewProcessor creates a processor that falls back to text parsing.
func NewProcessor() *Processor {
	return &Processor{}
}

// Process parses raw model output into a Result.
func (p *Processor) Process(raw string) (*Result, error) {
	p.record(func(s *Stats) { s.Total++ })

	if strings.TrimSpace(raw) == "" {
		p.record(func(s *Stats) { s.Failures++ })
		return nil, ErrEmptyResponse
	}

	result := &Result{RawResponse: raw, Warnings: []string{}}

	// 1. Direct JSON
	plan, err := parsePlan(raw)
	if err == nil {
		return p.accept(result, plan, MethodJSON, 1.0), nil
	}

	// 2. ```json fenced block
	if fenced, ok := fencedBlock(raw); ok {
		if plan, err = parsePlan(fenced); err == nil {
			return p.accept(result, plan, MethodJSONMarkdown, 0.95), nil
		}
	}

	// 3. JSON embedded in prose
	if plan, err = extractEmbedded(raw); err == nil {
		result.Warnings = append(result.Warnings, "lesson JSON extracted from mixed content")
		return p.accept(result, plan, MethodJSONExtract, 0.85), nil
	}

	if p.Strict {
		p.record(func(s *Stats) { s.Failures++ })
		logging.ResponseWarn("Strict mode rejected non-JSON response (%d bytes): %v", len(raw), err)
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}

	// 4. Markdown / plain text
	result.Plan = ParseText(raw)
	result.ParseMethod = MethodTextFallback
	result.Confidence = 0.5
	result.Warnings = append(result.Warnings, "no valid lesson JSON found, parsed response as text")
	p.record(func(s *Stats) { s.Fallback++ })
	logging.ResponseDebug("Text fallback parse: title=%q activities=%d", result.Plan.Title, len(result.Plan.Activities))
	return result, nil
}

func (p *Processor) accept(r *Result, plan *LessonPlan, method string, confidence float64) *Result {
	r.Plan = plan
	r.ParseMethod = method
	r.Confidence = confidence
	p.record(func(s *Stats) { s.JSON++ })
	logging.ResponseDebug("Parsed lesson via %s: title=%q activities=%d", method, plan.Title, len(plan.Activities))
	return r
}

func (p *Processor) record(fn func(*Stats)) {
	p.mu.Lock()
	fn(&p.stats)
	p.mu.Unlock()
}

// Stats returns current processing statistics.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// ResetStats clears the processing statistics.
func (p *Processor) ResetStats() {
	p.mu.Lock()
	p.stats = Stats{}
	p.mu.Unlock()
}

// parsePlan decodes s as a lesson plan object.
func parsePlan(s string) (*LessonPlan, error) {
	s = strings.TrimSpace(s)

	var plan LessonPlan
	if err := json.Unmarshal([]byte(s), &plan); err != nil {
		return nil, err
	}
	if plan.IsEmpty() {
		return nil, fmt.Errorf("missing title and activities")
	}
	plan.Title = strings.TrimSpace(plan.Title)
	return &plan, nil
}

// fencedBlock returns the body of the first ``` code block in s.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	body := s[start+3:]
	// Drop the info string (json, JSON, ...).
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		return "", false
	}
	end := strings.Index(body, "```")
	if end < 0 {
		return "", false
	}
	return body[:end], true
}

// extractEmbedded tries each JSON object found in s, largest first.
func extractEmbedded(s string) (*LessonPlan, error) {
	candidates := rankCandidates(findPlanCandidates(s))
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no embedded lesson plan found")
	}

	var lastErr error
	for _, c := range candidates {
		plan, err := parsePlan(c.text)
		if err == nil {
			return plan, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
