// Package usage accounts for LLM token consumption per workspace.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"lessonforge/internal/logging"
)

// DirName is the per-workspace state directory.
const DirName = ".lessonforge"

type contextKey int

const (
	trackerKey contextKey = iota
	subjectKey
	teacherRoleKey
)

// Tracker records token usage and persists it to <workspace>/.lessonforge/usage.json.
type Tracker struct {
	mu       sync.Mutex
	data     UsageData
	filePath string
	dirty    bool
	now      func() time.Time
}

// NewTracker creates a tracker for the given workspace, loading any existing usage.json.
func NewTracker(workspacePath string) (*Tracker, error) {
	dir := filepath.Join(workspacePath, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s dir: %w", DirName, err)
	}

	t := &Tracker{
		filePath: filepath.Join(dir, "usage.json"),
		data:     UsageData{Version: "1.0"},
		now:      time.Now,
	}
	t.data.Aggregate.initMaps()

	if err := t.Load(); err != nil {
		logging.UsageWarn("Ignoring unreadable %s: %v", t.filePath, err)
		t.data = UsageData{Version: "1.0"}
		t.data.Aggregate.initMaps()
	}
	return t, nil
}

// Path returns the usage.json location.
func (t *Tracker) Path() string {
	return t.filePath
}

// Load reads usage data from disk; a missing file is not an error.
func (t *Tracker) Load() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}
	t.data.Aggregate.initMaps()
	return nil
}

// Save writes usage data to disk when it has changed.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return nil
	}
	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(t.filePath, data, 0644); err != nil {
		return err
	}
	t.dirty = false
	logging.UsageDebug("Saved usage to %s", t.filePath)
	return nil
}

// Track records one LLM call. Subject and teacher role are read from ctx when present.
func (t *Tracker) Track(ctx context.Context, model, provider string, input, output int, operation, lessonID string) {
	subject, _ := ctx.Value(subjectKey).(string)
	role, _ := ctx.Value(teacherRoleKey).(string)

	t.mu.Lock()
	defer t.mu.Unlock()

	agg := &t.data.Aggregate
	agg.Total.Add(input, output)
	if lessonID != "" {
		agg.Lessons++
	}
	addToMap(agg.ByProvider, provider, input, output)
	addToMap(agg.ByModel, model, input, output)
	addToMap(agg.ByOperation, operation, input, output)
	if subject != "" {
		addToMap(agg.BySubject, subject, input, output)
	}
	if role != "" {
		addToMap(agg.ByTeacherRole, role, input, output)
	}

	t.data.Events = append(t.data.Events, UsageEvent{
		Timestamp:    t.now().UTC(),
		Model:        model,
		Provider:     provider,
		InputTokens:  input,
		OutputTokens: output,
		Operation:    operation,
		Subject:      subject,
		TeacherRole:  role,
		LessonID:     lessonID,
	})
	if len(t.data.Events) > maxEvents {
		t.data.Events = append([]UsageEvent(nil), t.data.Events[len(t.data.Events)-maxEvents:]...)
	}
	t.dirty = true
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() AggregatedStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := t.data.Aggregate
	stats.ByProvider = copyTokenCountsMap(stats.ByProvider)
	stats.ByModel = copyTokenCountsMap(stats.ByModel)
	stats.ByOperation = copyTokenCountsMap(stats.ByOperation)
	stats.BySubject = copyTokenCountsMap(stats.BySubject)
	stats.ByTeacherRole = copyTokenCountsMap(stats.ByTeacherRole)
	return stats
}

// Events returns a copy of the recorded events, oldest first.
func (t *Tracker) Events() []UsageEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]UsageEvent(nil), t.data.Events...)
}

func (a *AggregatedStats) initMaps() {
	if a.ByProvider == nil {
		a.ByProvider = make(map[string]TokenCounts)
	}
	if a.ByModel == nil {
		a.ByModel = make(map[string]TokenCounts)
	}
	if a.ByOperation == nil {
		a.ByOperation = make(map[string]TokenCounts)
	}
	if a.BySubject == nil {
		a.BySubject = make(map[string]TokenCounts)
	}
	if a.ByTeacherRole == nil {
		a.ByTeacherRole = make(map[string]TokenCounts)
	}
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	if src == nil {
		return nil
	}
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	if key == "" {
		key = "unknown"
	}
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}

// NewContext returns a context carrying the tracker.
func NewContext(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey, t)
}

// FromContext retrieves the tracker from ctx, or nil.
func FromContext(ctx context.Context) *Tracker {
	t, _ := ctx.Value(trackerKey).(*Tracker)
	return t
}

// WithLessonContext tags ctx with the subject and teacher role of the lesson being generated.
func WithLessonContext(ctx context.Context, subject, teacherRole string) context.Context {
	ctx = context.WithValue(ctx, subjectKey, subject)
	return context.WithValue(ctx, teacherRoleKey, teacherRole)
}
