package prompt

import (
	"errors"
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonforge/internal/assessment"
	"lessonforge/internal/config"
	"lessonforge/internal/performance"
	"lessonforge/internal/types"
)

type staticTemplates map[string]types.AssessmentType

func (s staticTemplates) Get(key string) (types.AssessmentType, bool) {
	t, ok := s[key]
	return t, ok
}

func (s staticTemplates) Template(key string) *template.Template {
	t, ok := s[key]
	if !ok {
		return nil
	}
	tmpl, _ := assessment.CompileTemplate(t)
	return tmpl
}

func newAssembler(t *testing.T) *Assembler {
	t.Helper()
	defs, err := assessment.DefaultTypes()
	require.NoError(t, err)
	src := staticTemplates{}
	for _, d := range defs {
		src[d.Key] = d
	}
	a, err := NewAssembler(config.DefaultConfig().Lessons, src)
	require.NoError(t, err)
	return a
}

func request(ids ...string) types.LessonRequest {
	return types.LessonRequest{
		StudentIDs:      ids,
		Subject:         "math",
		Topic:           "place value",
		DurationMinutes: 30,
		LessonDate:      time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		TeacherRole:     "resource",
	}
}

func student(id string, grade int, confidence float64, items int) StudentContext {
	sa := &assessment.StudentAssessments{StudentID: id, Confidence: confidence}
	for i := 0; i < items; i++ {
		sa.Items = append(sa.Items, types.AssessmentData{
			AssessmentType: "reading_level",
			Category:       types.CategoryAcademic,
			Data:           map[string]interface{}{"reading_level": "H"},
			Confidence:     confidence,
		})
	}
	return StudentContext{
		Student:     types.Student{ID: id, Initials: strings.ToUpper(id), GradeLevel: grade},
		Assessments: sa,
	}
}

func TestAssemble_SectionsInOrder(t *testing.T) {
	a := newAssembler(t)
	s1 := student("s1", 3, 0.8, 1)
	s1.Analysis = &performance.Analysis{Subject: "math", Average: 62.5, Samples: 4, Trend: types.TrendDeclining, Recommendation: types.AdjustReteach}
	s1.Adjustments = []types.Adjustment{{StudentID: "s1", Subject: "math", Type: types.AdjustReteach, Priority: 2, Reason: "math average 62.5%"}}
	s2 := student("s2", 4, 0.6, 0)

	p, err := a.Assemble(request("s1", "s2"), []StudentContext{s1, s2})
	require.NoError(t, err)

	assert.Equal(t, []string{SectionRequest, SectionProfiles, SectionAdjustments, SectionGrouping, SectionConstraints, SectionFormat}, p.Sections)
	last := -1
	for _, name := range p.Sections {
		idx := strings.Index(p.User, "## "+name)
		require.GreaterOrEqual(t, idx, 0, name)
		assert.Greater(t, idx, last, "section %s out of order", name)
		last = idx
	}

	assert.Contains(t, p.User, "Topic: place value")
	assert.Contains(t, p.User, "### Student s1 (S1), grade 3rd")
	assert.Contains(t, p.User, "Reading level: H")
	assert.Contains(t, p.User, "average 62.5% over 4 sessions, trend declining, recommendation reteach")
	assert.Contains(t, p.User, "math performance: no recent session data")
	assert.Contains(t, p.User, "Student s1, math: RETEACH (priority 2)")
	assert.Contains(t, p.User, "Similar level")
	assert.Contains(t, p.User, "Activity minutes must sum to 30")
	assert.Contains(t, p.System, "resource teacher")
	assert.Equal(t, 2, p.StudentCount)

	// weights: s1 has 1 item (w=2), s2 has none (w=1)
	assert.InDelta(t, (0.8*2+0.6*1)/3, p.Confidence, 1e-9)
}

func TestAssemble_NoAdjustmentsSectionWhenNone(t *testing.T) {
	a := newAssembler(t)
	p, err := a.Assemble(request("s1"), []StudentContext{student("s1", 2, 0.5, 2)})
	require.NoError(t, err)
	assert.NotContains(t, p.Sections, SectionAdjustments)
	assert.Equal(t, GroupIndividual, p.Grouping.Kind)
	assert.InDelta(t, 0.5, p.Confidence, 1e-9)
}

func TestAssemble_ConfidenceZeroWithoutAssessments(t *testing.T) {
	a := newAssembler(t)
	p, err := a.Assemble(request("s1"), []StudentContext{{Student: types.Student{ID: "s1"}}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.Confidence)
}

func TestValidate(t *testing.T) {
	a := newAssembler(t)
	many := make([]string, 13)
	for i := range many {
		many[i] = string(rune('a' + i))
	}

	tests := []struct {
		name string
		mod  func(r *types.LessonRequest)
	}{
		{"empty subject", func(r *types.LessonRequest) { r.Subject = " " }},
		{"no students", func(r *types.LessonRequest) { r.StudentIDs = nil }},
		{"too many students", func(r *types.LessonRequest) { r.StudentIDs = many }},
		{"duplicate student", func(r *types.LessonRequest) { r.StudentIDs = []string{"s1", "s1"} }},
		{"too short", func(r *types.LessonRequest) { r.DurationMinutes = 2 }},
		{"too long", func(r *types.LessonRequest) { r.DurationMinutes = 121 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request("s1")
			tt.mod(&req)
			err := a.Validate(req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrInvalidRequest))
		})
	}

	assert.NoError(t, a.Validate(request("s1", "s2")))
}

func TestChooseGrouping(t *testing.T) {
	mk := func(grades ...int) []types.Student {
		out := make([]types.Student, len(grades))
		for i, g := range grades {
			out[i] = types.Student{ID: string(rune('a' + i)), GradeLevel: g}
		}
		return out
	}

	assert.Equal(t, GroupIndividual, ChooseGrouping(mk(3), 6).Kind)
	assert.Equal(t, GroupWhole, ChooseGrouping(mk(3, 3, 3), 6).Kind)
	assert.Equal(t, GroupSimilarLevel, ChooseGrouping(mk(3, 4), 6).Kind)

	tiered := ChooseGrouping(mk(0, 2, 5), 6)
	assert.Equal(t, GroupTiered, tiered.Kind)
	assert.Equal(t, 5, tiered.GradeSpread)
	assert.Contains(t, tiered.Text, "grades K to 5th")

	small := ChooseGrouping(mk(1, 1, 1, 2, 2, 2, 3, 3), 3)
	assert.Equal(t, GroupSmallGroups, small.Kind)
	require.Len(t, small.Groups, 3)
	assert.Equal(t, []int{3, 3, 2}, []int{len(small.Groups[0]), len(small.Groups[1]), len(small.Groups[2])})
	for _, g := range small.Groups {
		assert.LessOrEqual(t, len(g), 3)
	}
}

func TestSystemPrompt_Roles(t *testing.T) {
	assert.Contains(t, SystemPrompt("speech"), "speech-language pathologist")
	assert.Contains(t, SystemPrompt("SLP"), "speech-language pathologist")
	assert.Contains(t, SystemPrompt("ot"), "occupational therapist")
	assert.Contains(t, SystemPrompt("counseling"), "school counselor")
	assert.Equal(t, SystemPrompt("resource"), SystemPrompt("janitor"))
	assert.Equal(t, RoleResource, NormalizeRole(""))
}

func TestConstraints_Embedded(t *testing.T) {
	a := newAssembler(t)
	require.NotEmpty(t, a.Constraints())
	for _, g := range a.Constraints() {
		assert.NotEmpty(t, g.Category)
		assert.NotEmpty(t, g.Rules)
	}
}
