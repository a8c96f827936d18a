package generator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"lessonforge/internal/adjustment"
	"lessonforge/internal/assessment"
	"lessonforge/internal/config"
	"lessonforge/internal/performance"
	"lessonforge/internal/prompt"
	"lessonforge/internal/response"
	"lessonforge/internal/store"
	"lessonforge/internal/types"
	"lessonforge/internal/usage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fakeLLM struct {
	mu     sync.Mutex
	text   string
	err    error
	calls  int
	system string
	user   string
}

func (f *fakeLLM) CompleteWithSystem(_ context.Context, system, user string) (*types.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.system, f.user = system, user
	if f.err != nil {
		return nil, f.err
	}
	return &types.Completion{
		Text:  f.text,
		Model: "fake-model-1",
		Usage: types.UsageMetadata{InputTokens: 1200, OutputTokens: 300, TotalTokens: 1500},
	}, nil
}

func (f *fakeLLM) Provider() string { return "fake" }
func (f *fakeLLM) Model() string    { return "fake-model" }

type fixture struct {
	store     *store.Store
	queue     *adjustment.Queue
	analyzer  *performance.Analyzer
	llm       *fakeLLM
	generator *Generator
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, store.Options{Driver: store.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	st.SetClock(func() time.Time { return baseTime })
	t.Cleanup(func() { st.Close() })

	_, err = assessment.Seed(ctx, st)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	registry := assessment.NewRegistry(st, 20)
	queue := adjustment.NewQueue(st, cfg.Queue.BatchSize)
	analyzer := performance.NewAnalyzer(st, queue, performance.ThresholdsFromConfig(cfg.Analyzer))
	assembler, err := prompt.NewAssembler(cfg.Lessons, registry)
	require.NoError(t, err)

	llm := &fakeLLM{text: reply}
	g, err := New(Deps{
		Store:     st,
		Registry:  registry,
		Analyzer:  analyzer,
		Queue:     queue,
		Assembler: assembler,
		Client:    llm,
		Lessons:   cfg.Lessons,
	})
	require.NoError(t, err)
	g.SetClock(func() time.Time { return baseTime })

	return &fixture{store: st, queue: queue, analyzer: analyzer, llm: llm, generator: g}
}

func (f *fixture) addStudent(t *testing.T, id string, grade int, accuracies ...float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.UpsertStudent(ctx, &types.Student{
		ID: id, Initials: strings.ToUpper(id), GradeLevel: grade, TeacherRole: "resource",
	}))
	require.NoError(t, f.store.UpsertProfile(ctx, &types.StudentProfile{
		StudentID:      id,
		ReadingLevel:   "F",
		IEPGoals:       []string{"Add within 20 with 80% accuracy"},
		Accommodations: []string{"extended time"},
		UpdatedAt:      baseTime.AddDate(0, 0, -7),
	}))
	for i, acc := range accuracies {
		require.NoError(t, f.store.AddMetric(ctx, &types.PerformanceMetric{
			StudentID:   id,
			Subject:     "math",
			Skill:       "addition",
			Accuracy:    acc,
			SessionDate: baseTime.AddDate(0, 0, i-len(accuracies)),
		}))
	}
}

const planReply = `Here is the lesson.
` + "```json" + `
{
  "title": "Addition Stations",
  "objectives": ["Add within 20"],
  "materials": ["counters", "number lines"],
  "activities": [
    {"name": "Warm-up", "minutes": 5, "description": "Count on from 10"},
    {"name": "Stations", "minutes": 20, "description": "Rotate through three stations"}
  ],
  "student_adaptations": [
    {"student_id": "s1", "adaptation": "Use counters for every problem"}
  ],
  "assessment": "Five-problem exit ticket",
  "notes": "Pair s1 with a peer"
}
` + "```"

func TestGenerate_StoresLessonAndConsumesAdjustments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, planReply)
	f.addStudent(t, "s1", 2, 40, 45, 42)
	f.addStudent(t, "s2", 3, 95, 96, 97)

	for _, id := range []string{"s1", "s2"} {
		_, adj, err := f.analyzer.Evaluate(ctx, id, "math")
		require.NoError(t, err)
		require.NotNil(t, adj, "expected an adjustment for %s", id)
	}

	tracker, err := usage.NewTracker(t.TempDir())
	require.NoError(t, err)
	ctx = usage.NewContext(ctx, tracker)

	res, err := f.generator.Generate(ctx, types.LessonRequest{
		StudentIDs: []string{"s1", "s2"},
		Subject:    " Math ",
		Topic:      "addition",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, f.llm.calls)
	assert.Contains(t, f.llm.user, prompt.SectionProfiles)
	assert.Contains(t, f.llm.user, prompt.SectionAdjustments)
	assert.NotEmpty(t, f.llm.system)

	assert.Equal(t, response.MethodJSONMarkdown, res.ParseMethod)
	assert.Equal(t, "Addition Stations", res.Plan.Title)
	assert.Greater(t, res.PromptConfidence, 0.0)
	assert.InDelta(t, res.PromptConfidence*0.95, res.Lesson.Confidence, 1e-9)
	assert.Equal(t, 1200, res.Usage.InputTokens)
	assert.Equal(t, int64(2), res.ProcessedAdjustments)

	// Defaults applied.
	assert.Equal(t, "math", res.Lesson.Subject)
	assert.Equal(t, 30, res.Lesson.DurationMinutes)
	assert.Equal(t, "2025-03-10", res.Lesson.LessonDate.Format(types.DateLayout))

	saved, err := f.store.GetLesson(ctx, res.Lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, "Addition Stations", saved.Title)
	assert.Equal(t, []string{"s1", "s2"}, saved.StudentIDs)
	assert.Equal(t, "fake-model-1", saved.Model)
	assert.Contains(t, saved.Content, "## Activities")

	perStudent, err := f.store.StudentLessons(ctx, res.Lesson.ID)
	require.NoError(t, err)
	require.Len(t, perStudent, 2)
	adaptations := map[string]string{}
	for _, sl := range perStudent {
		adaptations[sl.StudentID] = sl.Adaptation
	}
	assert.Equal(t, "Use counters for every problem", adaptations["s1"])
	assert.Equal(t, defaultAdaptation, adaptations["s2"])

	pending, err := f.queue.Pending(ctx, adjustment.Filter{})
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats := tracker.Stats()
	assert.Equal(t, int64(1), stats.Lessons)
	assert.Equal(t, int64(1200), stats.Total.Input)
	assert.Equal(t, int64(1200), stats.BySubject["math"].Input)
}

func TestGenerate_MissingStudentFails(t *testing.T) {
	f := newFixture(t, planReply)
	f.addStudent(t, "s1", 2, 80, 82, 81)

	_, err := f.generator.Generate(context.Background(), types.LessonRequest{
		StudentIDs: []string{"s1", "ghost"},
		Subject:    "math",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidRequest))
	assert.Contains(t, err.Error(), "ghost")
	assert.Equal(t, 0, f.llm.calls)
}

func TestGenerate_MissingMetricsWarns(t *testing.T) {
	f := newFixture(t, planReply)
	f.addStudent(t, "s1", 2)

	res, err := f.generator.Generate(context.Background(), types.LessonRequest{
		StudentIDs: []string{"s1"},
		Subject:    "math",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, strings.Join(res.Warnings, "\n"), "no math performance metrics")
	assert.Equal(t, int64(0), res.ProcessedAdjustments)
}

func TestGenerate_EmptyResponseUsesFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "   ")
	f.addStudent(t, "s1", 2, 70, 72, 71)

	res, err := f.generator.Generate(ctx, types.LessonRequest{
		StudentIDs: []string{"s1"},
		Subject:    "math",
	})
	require.NoError(t, err)

	assert.Equal(t, MethodEmptyFallback, res.ParseMethod)
	assert.Equal(t, FallbackContent, res.Lesson.Content)
	assert.Equal(t, 0.0, res.Lesson.Confidence)
	require.Len(t, res.StudentLessons, 1)
	assert.Equal(t, 0.0, res.StudentLessons[0].Confidence)

	saved, err := f.store.GetLesson(ctx, res.Lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, FallbackContent, saved.Content)
}

func TestGenerate_LLMErrorLeavesAdjustmentsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	f.llm.err = errors.New("upstream unavailable")
	f.addStudent(t, "s1", 2, 30, 35, 32)

	_, adj, err := f.analyzer.Evaluate(ctx, "s1", "math")
	require.NoError(t, err)
	require.NotNil(t, adj)

	_, err = f.generator.Generate(ctx, types.LessonRequest{
		StudentIDs: []string{"s1"},
		Subject:    "math",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unavailable")

	lessons, err := f.store.ListLessons(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, lessons)

	pending, err := f.queue.Pending(ctx, adjustment.Filter{StudentIDs: []string{"s1"}})
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestGenerate_RejectsInvalidRequests(t *testing.T) {
	f := newFixture(t, planReply)
	f.addStudent(t, "s1", 2, 80)

	tests := []struct {
		name string
		req  types.LessonRequest
	}{
		{"no subject", types.LessonRequest{StudentIDs: []string{"s1"}}},
		{"no students", types.LessonRequest{Subject: "math"}},
		{"too long", types.LessonRequest{StudentIDs: []string{"s1"}, Subject: "math", DurationMinutes: 500}},
		{"duplicate", types.LessonRequest{StudentIDs: []string{"s1", "s1"}, Subject: "math"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.generator.Generate(context.Background(), tt.req)
			assert.True(t, errors.Is(err, types.ErrInvalidRequest), "got %v", err)
		})
	}
	assert.Equal(t, 0, f.llm.calls)
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}
