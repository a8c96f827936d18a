// Package generator orchestrates one lesson: load student context, assemble
// the prompt, call the LLM, parse the reply and persist the result.
package generator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"lessonforge/internal/adjustment"
	"lessonforge/internal/assessment"
	"lessonforge/internal/config"
	"lessonforge/internal/logging"
	"lessonforge/internal/performance"
	"lessonforge/internal/prompt"
	"lessonforge/internal/response"
	"lessonforge/internal/types"
	"lessonforge/internal/usage"
)

// FallbackContent replaces an empty model response.
const FallbackContent = "Lesson content could not be generated for this request. Review the student data and try again."

// MethodEmptyFallback is the parse method recorded for an empty response.
const MethodEmptyFallback = "empty_fallback"

// defaultAdaptation is stored for students the plan does not mention.
const defaultAdaptation = "Follow the group plan."

// slowLLMCall is logged as a warning when exceeded.
const slowLLMCall = 45 * time.Second

// Store reads students and writes lessons.
type Store interface {
	GetStudent(ctx context.Context, id string) (*types.Student, error)
	SaveLesson(ctx context.Context, l *types.Lesson, perStudent []types.StudentLesson) error
}

// Mapper maps a student's raw records into assessment items.
type Mapper interface {
	MapStudent(ctx context.Context, studentID string, now time.Time) (*assessment.StudentAssessments, error)
}

// Analyzer derives a subject trend for a student.
type Analyzer interface {
	Analyze(ctx context.Context, studentID, subject string) (*performance.Analysis, error)
}

// Queue supplies pending adjustments and marks consumed ones.
type Queue interface {
	Pending(ctx context.Context, f adjustment.Filter) ([]types.Adjustment, error)
	MarkProcessed(ctx context.Context, ids []string) (int64, error)
}

// Deps wires the generator's collaborators.
type Deps struct {
	Store     Store
	Registry  Mapper
	Analyzer  Analyzer
	Queue     Queue
	Assembler *prompt.Assembler
	Client    types.LLMClient
	Processor *response.Processor
	Lessons   config.LessonsConfig
}

// Generator produces and stores lessons.
type Generator struct {
	store     Store
	registry  Mapper
	analyzer  Analyzer
	queue     Queue
	assembler *prompt.Assembler
	client    types.LLMClient
	processor *response.Processor
	limits    config.LessonsConfig

	now   func() time.Time
	newID func() string
}

// Result is the outcome of one generation.
type Result struct {
	Lesson           *types.Lesson
	StudentLessons   []types.StudentLesson
	Plan             *response.LessonPlan
	Prompt           *prompt.Prompt
	ParseMethod      string
	PromptConfidence float64
	Warnings         []string
	Usage            types.UsageMetadata
	// Adjustments marked processed by this lesson
	ProcessedAdjustments int64
}

// New creates a generator. Store, Registry, Analyzer, Queue, Assembler and
// Client are required.
func New(d Deps) (*Generator, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("generator: store is required")
	case d.Registry == nil:
		return nil, errors.New("generator: registry is required")
	case d.Analyzer == nil:
		return nil, errors.New("generator: analyzer is required")
	case d.Queue == nil:
		return nil, errors.New("generator: queue is required")
	case d.Assembler == nil:
		return nil, errors.New("generator: assembler is required")
	case d.Client == nil:
		return nil, errors.New("generator: LLM client is required")
	}
	if d.Processor == nil {
		d.Processor = response.NewProcessor()
	}
	if d.Lessons.LoadConcurrency <= 0 {
		d.Lessons.LoadConcurrency = 4
	}
	return &Generator{
		store:     d.Store,
		registry:  d.Registry,
		analyzer:  d.Analyzer,
		queue:     d.Queue,
		assembler: d.Assembler,
		client:    d.Client,
		processor: d.Processor,
		limits:    d.Lessons,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// SetClock overrides the time source. Intended for tests.
func (g *Generator) SetClock(now func() time.Time) {
	g.now = now
}

// Normalize fills request defaults: duration, lowercase subject, today's date.
func (g *Generator) Normalize(req types.LessonRequest) types.LessonRequest {
	req.Subject = strings.ToLower(strings.TrimSpace(req.Subject))
	req.Topic = strings.TrimSpace(req.Topic)
	if req.DurationMinutes == 0 {
		req.DurationMinutes = g.limits.DefaultDuration
	}
	if req.LessonDate.IsZero() {
		y, m, d := g.now().Date()
		req.LessonDate = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	req.TeacherRole = prompt.NormalizeRole(req.TeacherRole)
	return req
}

// Generate runs the full pipeline for req.
func (g *Generator) Generate(ctx context.Context, req types.LessonRequest) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryGenerator, "Generate")
	defer timer.Stop()

	req = g.Normalize(req)
	if err := g.assembler.Validate(req); err != nil {
		return nil, err
	}
	logging.Generator("Generating %s lesson for %d students (%d min, role=%s)",
		req.Subject, len(req.StudentIDs), req.DurationMinutes, req.TeacherRole)

	// 1. Student context
	students, warnings, err := g.loadStudents(ctx, req)
	if err != nil {
		return nil, err
	}

	// 2. Prompt
	p, err := g.assembler.Assemble(req, students)
	if err != nil {
		return nil, fmt.Errorf("assemble prompt: %w", err)
	}

	// 3. LLM call
	rlog := logging.WithRequestID(logging.CategoryGenerator, uuid.NewString()[:8]).
		WithField("provider", g.client.Provider()).
		WithField("model", g.client.Model())
	rlog.Debug("Sending prompt: %d chars, confidence %.2f", len(p.System)+len(p.User), p.Confidence)

	ctx = usage.WithLessonContext(ctx, req.Subject, req.TeacherRole)
	llmTimer := logging.StartTimer(logging.CategoryGenerator, "CompleteWithSystem")
	completion, err := g.client.CompleteWithSystem(ctx, p.System, p.User)
	llmTimer.StopWithThreshold(slowLLMCall)
	if err != nil {
		rlog.Error("LLM call failed: %v", err)
		return nil, fmt.Errorf("generate lesson: %w", err)
	}
	rlog.Info("Response received: %d chars", len(completion.Text))

	// 4. Parse
	result := &Result{
		Prompt:           p,
		PromptConfidence: p.Confidence,
		Warnings:         warnings,
		Usage:            completion.Usage,
	}
	parseConfidence := g.parse(completion.Text, result)

	// 5. Persist
	lesson, perStudent := g.buildLesson(req, p, completion, result, students, parseConfidence)
	if err := g.store.SaveLesson(ctx, lesson, perStudent); err != nil {
		return nil, fmt.Errorf("save lesson: %w", err)
	}
	result.Lesson = lesson
	result.StudentLessons = perStudent

	// 6. Consume adjustments
	if ids := adjustmentIDs(students); len(ids) > 0 {
		n, err := g.queue.MarkProcessed(ctx, ids)
		if err != nil {
			// The lesson is already stored; leave the adjustments pending.
			logging.GeneratorWarn("Failed to mark %d adjustments processed: %v", len(ids), err)
			result.Warnings = append(result.Warnings, fmt.Sprintf("adjustments not marked processed: %v", err))
		}
		result.ProcessedAdjustments = n
	}

	// 7. Usage
	if tracker := usage.FromContext(ctx); tracker != nil {
		tracker.Track(ctx, lesson.Model, g.client.Provider(),
			completion.Usage.InputTokens, completion.Usage.OutputTokens, "generate_lesson", lesson.ID)
	}

	logging.Get(logging.CategoryGenerator).StructuredLog("info", "lesson saved", map[string]interface{}{
		"lesson_id":    lesson.ID,
		"title":        lesson.Title,
		"parse_method": lesson.ParseMethod,
		"confidence":   lesson.Confidence,
		"students":     len(perStudent),
		"adjustments":  result.ProcessedAdjustments,
		"tokens_in":    lesson.InputTokens,
		"tokens_out":   lesson.OutputTokens,
	})
	return result, nil
}

// loadStudents gathers each student's context concurrently, preserving request order.
func (g *Generator) loadStudents(ctx context.Context, req types.LessonRequest) ([]prompt.StudentContext, []string, error) {
	out := make([]prompt.StudentContext, len(req.StudentIDs))
	now := g.now()

	var mu sync.Mutex
	warnings := []string{}
	warn := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		logging.GeneratorWarn("%s", msg)
		mu.Lock()
		warnings = append(warnings, msg)
		mu.Unlock()
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.limits.LoadConcurrency)

	for i, id := range req.StudentIDs {
		eg.Go(func() error {
			sc, err := g.loadStudent(egCtx, id, req.Subject, now, warn)
			if err != nil {
				return err
			}
			out[i] = *sc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	// Warnings arrive in completion order.
	return out, warnings, nil
}

func (g *Generator) loadStudent(ctx context.Context, id, subject string, now time.Time, warn func(string, ...interface{})) (*prompt.StudentContext, error) {
	student, err := g.store.GetStudent(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("%w: student %s not found", types.ErrInvalidRequest, id)
		}
		return nil, fmt.Errorf("load student %s: %w", id, err)
	}
	sc := &prompt.StudentContext{Student: *student}

	mapped, err := g.registry.MapStudent(ctx, id, now)
	if err != nil {
		return nil, fmt.Errorf("map assessments for %s: %w", id, err)
	}
	if len(mapped.Items) == 0 {
		warn("student %s has no assessment data", id)
	}
	sc.Assessments = mapped

	analysis, err := g.analyzer.Analyze(ctx, id, subject)
	switch {
	case errors.Is(err, performance.ErrNoMetrics):
		warn("student %s has no %s performance metrics", id, subject)
	case err != nil:
		return nil, fmt.Errorf("analyze %s: %w", id, err)
	default:
		sc.Analysis = analysis
	}

	pending, err := g.queue.Pending(ctx, adjustment.Filter{StudentIDs: []string{id}, Subject: subject})
	if err != nil {
		return nil, fmt.Errorf("pending adjustments for %s: %w", id, err)
	}
	sc.Adjustments = pending

	logging.GeneratorDebug("Loaded %s: items=%d adjustments=%d analysis=%t",
		id, len(mapped.Items), len(pending), sc.Analysis != nil)
	return sc, nil
}

// parse fills result's plan and parse metadata and returns the parse confidence.
func (g *Generator) parse(text string, result *Result) float64 {
	if strings.TrimSpace(text) == "" {
		logging.GeneratorWarn("LLM returned an empty response; storing fallback content")
		result.Plan = response.FallbackPlan("Lesson unavailable", FallbackContent)
		result.ParseMethod = MethodEmptyFallback
		result.Warnings = append(result.Warnings, "LLM returned an empty response")
		return 0
	}

	parsed, err := g.processor.Process(text)
	if err != nil {
		// Strict processors reject prose; keep the raw text rather than losing the call.
		logging.GeneratorWarn("Response parse failed: %v", err)
		result.Plan = response.ParseText(text)
		result.ParseMethod = response.MethodTextFallback
		result.Warnings = append(result.Warnings, fmt.Sprintf("response parse failed: %v", err))
		return 0.5
	}
	result.Plan = parsed.Plan
	result.ParseMethod = parsed.ParseMethod
	result.Warnings = append(result.Warnings, parsed.Warnings...)
	return parsed.Confidence
}

func (g *Generator) buildLesson(req types.LessonRequest, p *prompt.Prompt, c *types.Completion, result *Result,
	students []prompt.StudentContext, parseConfidence float64) (*types.Lesson, []types.StudentLesson) {

	now := g.now().UTC()
	planJSON, err := result.Plan.JSON()
	if err != nil {
		logging.GeneratorWarn("Failed to encode plan: %v", err)
		planJSON = "{}"
	}
	model := c.Model
	if model == "" {
		model = g.client.Model()
	}

	lesson := &types.Lesson{
		ID:              g.newID(),
		ProviderID:      req.ProviderID,
		Subject:         req.Subject,
		Topic:           req.Topic,
		LessonDate:      req.LessonDate,
		TimeSlot:        req.TimeSlot,
		DurationMinutes: req.DurationMinutes,
		StudentIDs:      append([]string(nil), req.StudentIDs...),
		Title:           result.Plan.Title,
		Content:         result.Plan.Markdown(),
		PlanJSON:        planJSON,
		Prompt:          p.User,
		RawResponse:     c.Text,
		ParseMethod:     result.ParseMethod,
		Confidence:      types.ClampConfidence(p.Confidence * parseConfidence),
		Model:           model,
		InputTokens:     c.Usage.InputTokens,
		OutputTokens:    c.Usage.OutputTokens,
		CreatedAt:       now,
	}
	if parseConfidence == 0 {
		lesson.Content = FallbackContent
	}

	perStudent := make([]types.StudentLesson, 0, len(students))
	for _, sc := range students {
		adaptation := result.Plan.AdaptationFor(sc.Student.ID)
		if adaptation == "" {
			adaptation = defaultAdaptation
		}
		perStudent = append(perStudent, types.StudentLesson{
			ID:         g.newID(),
			LessonID:   lesson.ID,
			StudentID:  sc.Student.ID,
			Adaptation: adaptation,
			Confidence: types.ClampConfidence(sc.Confidence() * parseConfidence),
			CreatedAt:  now,
		})
	}
	return lesson, perStudent
}

func adjustmentIDs(students []prompt.StudentContext) []string {
	var ids []string
	for _, sc := range students {
		for _, a := range sc.Adjustments {
			ids = append(ids, a.ID)
		}
	}
	return ids
}
