// Package prompt assembles the lesson-generation prompt from student data,
// grouping strategy and material constraint rules.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"lessonforge/internal/assessment"
	"lessonforge/internal/config"
	"lessonforge/internal/logging"
	"lessonforge/internal/performance"
	"lessonforge/internal/types"
)

//go:embed constraints.yaml
var constraintsYAML []byte

// Section headers, in prompt order.
const (
	SectionRequest     = "LESSON REQUEST"
	SectionProfiles    = "STUDENT PROFILES"
	SectionAdjustments = "PERFORMANCE ADJUSTMENTS"
	SectionGrouping    = "GROUPING STRATEGY"
	SectionConstraints = "MATERIAL CONSTRAINTS"
	SectionFormat      = "RESPONSE FORMAT"
)

// StudentContext is everything known about one student for this lesson.
type StudentContext struct {
	Student     types.Student
	Assessments *assessment.StudentAssessments
	Analysis    *performance.Analysis
	Adjustments []types.Adjustment
}

// Confidence is the student's assessment confidence, 0 without assessments.
func (sc StudentContext) Confidence() float64 {
	if sc.Assessments == nil {
		return 0
	}
	return sc.Assessments.Confidence
}

func (sc StudentContext) itemCount() int {
	if sc.Assessments == nil {
		return 0
	}
	return len(sc.Assessments.Items)
}

// Prompt is the assembled system and user text.
type Prompt struct {
	System       string   `json:"system"`
	User         string   `json:"user"`
	Confidence   float64  `json:"confidence"`
	StudentCount int      `json:"student_count"`
	Sections     []string `json:"sections"`
	Grouping     Grouping `json:"-"`
}

// ConstraintGroup is one category of material constraint rules.
type ConstraintGroup struct {
	Category string   `yaml:"category"`
	Rules    []string `yaml:"rules"`
}

// TemplateSource resolves assessment types and their compiled templates.
type TemplateSource interface {
	Get(key string) (types.AssessmentType, bool)
	Template(key string) *template.Template
}

// Assembler builds prompts.
type Assembler struct {
	limits      config.LessonsConfig
	templates   TemplateSource
	constraints []ConstraintGroup

	sectionSeparator string
}

// NewAssembler creates an assembler. templates may be nil, in which case
// assessment items are rendered as key=value pairs.
func NewAssembler(limits config.LessonsConfig, templates TemplateSource) (*Assembler, error) {
	var groups []ConstraintGroup
	if err := yaml.Unmarshal(constraintsYAML, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse constraint rules: %w", err)
	}
	return &Assembler{
		limits:           limits,
		templates:        templates,
		constraints:      groups,
		sectionSeparator: "\n\n",
	}, nil
}

// Constraints returns the material constraint rules.
func (a *Assembler) Constraints() []ConstraintGroup {
	return a.constraints
}

// Validate checks a request against the configured limits.
func (a *Assembler) Validate(req types.LessonRequest) error {
	if strings.TrimSpace(req.Subject) == "" {
		return fmt.Errorf("%w: subject is required", types.ErrInvalidRequest)
	}
	if len(req.StudentIDs) == 0 {
		return fmt.Errorf("%w: at least one student is required", types.ErrInvalidRequest)
	}
	if a.limits.MaxStudents > 0 && len(req.StudentIDs) > a.limits.MaxStudents {
		return fmt.Errorf("%w: %d students exceeds the limit of %d", types.ErrInvalidRequest, len(req.StudentIDs), a.limits.MaxStudents)
	}
	seen := make(map[string]bool, len(req.StudentIDs))
	for _, id := range req.StudentIDs {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: empty student id", types.ErrInvalidRequest)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate student %s", types.ErrInvalidRequest, id)
		}
		seen[id] = true
	}
	if req.DurationMinutes < a.limits.MinDuration || req.DurationMinutes > a.limits.MaxDuration {
		return fmt.Errorf("%w: duration %d outside [%d, %d] minutes",
			types.ErrInvalidRequest, req.DurationMinutes, a.limits.MinDuration, a.limits.MaxDuration)
	}
	return nil
}

// Assemble builds the prompt for req from the per-student contexts.
func (a *Assembler) Assemble(req types.LessonRequest, students []StudentContext) (*Prompt, error) {
	timer := logging.StartTimer(logging.CategoryPrompt, "Assemble")
	defer timer.Stop()

	if len(students) == 0 {
		return nil, fmt.Errorf("%w: no student data", types.ErrInvalidRequest)
	}
	if err := a.Validate(req); err != nil {
		return nil, err
	}

	plain := make([]types.Student, len(students))
	for i, sc := range students {
		plain[i] = sc.Student
	}
	grouping := ChooseGrouping(plain, a.limits.MaxGroupSize)

	p := &Prompt{
		System:       SystemPrompt(req.TeacherRole),
		StudentCount: len(students),
		Grouping:     grouping,
	}

	var body []string
	add := func(name, content string) {
		p.Sections = append(p.Sections, name)
		body = append(body, "## "+name+"\n"+strings.TrimRight(content, "\n"))
	}

	add(SectionRequest, a.renderRequest(req))
	add(SectionProfiles, a.renderProfiles(req, students))
	if adj := renderAdjustments(students); adj != "" {
		add(SectionAdjustments, adj)
	}
	add(SectionGrouping, grouping.Text)
	add(SectionConstraints, a.renderConstraints())
	add(SectionFormat, responseFormat(req.DurationMinutes))

	p.User = strings.Join(body, a.sectionSeparator)
	p.Confidence = promptConfidence(students)

	logging.Prompt("Assembled prompt: students=%d grouping=%s sections=%d len=%d confidence=%.2f",
		p.StudentCount, grouping.Kind, len(p.Sections), len(p.User), p.Confidence)
	return p, nil
}

// promptConfidence weights each student's confidence by item count + 1.
func promptConfidence(students []StudentContext) float64 {
	values := make([]float64, len(students))
	weights := make([]float64, len(students))
	for i, sc := range students {
		values[i] = sc.Confidence()
		weights[i] = float64(sc.itemCount() + 1)
	}
	return types.WeightedAverage(values, weights)
}

func (a *Assembler) renderRequest(req types.LessonRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", req.Subject)
	if req.Topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", req.Topic)
	}
	fmt.Fprintf(&b, "Duration: %d minutes\n", req.DurationMinutes)
	if !req.LessonDate.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", req.LessonDate.Format(types.DateLayout))
	}
	if req.TimeSlot != "" {
		fmt.Fprintf(&b, "Time slot: %s\n", req.TimeSlot)
	}
	fmt.Fprintf(&b, "Teacher role: %s\n", NormalizeRole(req.TeacherRole))
	fmt.Fprintf(&b, "Students: %d", len(req.StudentIDs))
	return b.String()
}

func (a *Assembler) renderProfiles(req types.LessonRequest, students []StudentContext) string {
	fragments := make([]string, 0, len(students))
	for _, sc := range students {
		fragments = append(fragments, a.renderStudent(req, sc))
	}
	return strings.Join(fragments, "\n\n")
}

func (a *Assembler) renderStudent(req types.LessonRequest, sc StudentContext) string {
	var b strings.Builder
	st := sc.Student
	fmt.Fprintf(&b, "### Student %s", st.ID)
	if st.Initials != "" {
		fmt.Fprintf(&b, " (%s)", st.Initials)
	}
	fmt.Fprintf(&b, ", grade %s\n", types.GradeLabel(st.GradeLevel))
	fmt.Fprintf(&b, "Data confidence: %.2f\n", sc.Confidence())

	if sc.Assessments != nil {
		for _, item := range sc.Assessments.Items {
			var tmpl *template.Template
			display := item.AssessmentType
			if a.templates != nil {
				tmpl = a.templates.Template(item.AssessmentType)
				if t, ok := a.templates.Get(item.AssessmentType); ok && t.DisplayName != "" {
					display = t.DisplayName
				}
			}
			fmt.Fprintf(&b, "- %s\n", indentContinuation(assessment.Render(tmpl, display, item)))
		}
	}

	if an := sc.Analysis; an != nil {
		fmt.Fprintf(&b, "- %s performance: average %.1f%% over %d sessions, trend %s, recommendation %s\n",
			req.Subject, an.Average, an.Samples, an.Trend, an.Recommendation)
	} else {
		fmt.Fprintf(&b, "- %s performance: no recent session data\n", req.Subject)
	}
	return b.String()
}

var adjustmentGuidance = map[types.AdjustmentType]string{
	types.AdjustAdvance:      "introduce the next skill in the sequence",
	types.AdjustReteach:      "reteach the current skill with a different approach and more guided practice",
	types.AdjustPrerequisite: "return to the prerequisite skill before continuing",
}

func renderAdjustments(students []StudentContext) string {
	var lines []string
	for _, sc := range students {
		for _, adj := range sc.Adjustments {
			line := fmt.Sprintf("- Student %s, %s: %s (priority %d)", sc.Student.ID, adj.Subject, strings.ToUpper(string(adj.Type)), adj.Priority)
			if g, ok := adjustmentGuidance[adj.Type]; ok {
				line += "; " + g
			}
			if adj.Reason != "" {
				line += ". " + adj.Reason
			}
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func (a *Assembler) renderConstraints() string {
	var b strings.Builder
	for _, g := range a.constraints {
		if g.Category != "" {
			fmt.Fprintf(&b, "%s:\n", strings.ToUpper(g.Category[:1])+g.Category[1:])
		}
		for _, r := range g.Rules {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	return b.String()
}

func indentContinuation(s string) string {
	return strings.ReplaceAll(s, "\n", "\n  ")
}
