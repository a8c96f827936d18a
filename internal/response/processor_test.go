package response

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const lessonJSON = `{
  "title": "Adding Fractions with Pizza",
  "objectives": ["Add fractions with like denominators"],
  "materials": ["paper pizza slices", "whiteboard"],
  "activities": [
    {"name": "Warm-up", "minutes": 5, "description": "Review halves and quarters"},
    {"name": "Guided practice", "minutes": "15 min", "description": "Build sums with slices"}
  ],
  "student_adaptations": [
    {"student_id": "s1", "adaptation": "Use pre-cut slices"}
  ],
  "assessment": "Exit ticket with three problems",
  "notes": ["Keep the room quiet", "Offer breaks"]
}`

func wantLessonPlan() *LessonPlan {
	return &LessonPlan{
		Title:      "Adding Fractions with Pizza",
		Objectives: textList{"Add fractions with like denominators"},
		Materials:  textList{"paper pizza slices", "whiteboard"},
		Activities: []Activity{
			{Name: "Warm-up", Minutes: 5, Description: "Review halves and quarters"},
			{Name: "Guided practice", Minutes: 15, Description: "Build sums with slices"},
		},
		StudentAdaptations: []StudentAdaptation{{StudentID: "s1", Adaptation: "Use pre-cut slices"}},
		Assessment:         "Exit ticket with three problems",
		Notes:              "Keep the room quiet\nOffer breaks",
	}
}

func TestProcessor_Process_JSON(t *testing.T) {
	p := NewProcessor()

	res, err := p.Process(lessonJSON)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.ParseMethod != MethodJSON {
		t.Errorf("ParseMethod = %q, want %q", res.ParseMethod, MethodJSON)
	}
	if res.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want 1.0", res.Confidence)
	}
	if diff := cmp.Diff(wantLessonPlan(), res.Plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
	if got := res.Plan.TotalMinutes(); got != 20 {
		t.Errorf("TotalMinutes() = %d, want 20", got)
	}
}

func TestProcessor_Process_Markdown(t *testing.T) {
	p := NewProcessor()

	raw := "Here is your lesson:\n\n```json\n" + lessonJSON + "\n```\nLet me know if you need changes."
	res, err := p.Process(raw)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.ParseMethod != MethodJSONMarkdown {
		t.Errorf("ParseMethod = %q, want %q", res.ParseMethod, MethodJSONMarkdown)
	}
	if res.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95", res.Confidence)
	}
	if diff := cmp.Diff(wantLessonPlan(), res.Plan); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessor_Process_LenientActivities(t *testing.T) {
	want := []Activity{
		{Name: "Warm-up", Minutes: 5, Description: "Review halves"},
		{Name: "Partner game", Minutes: 10, Description: "Roll and add"},
	}
	tests := []struct {
		name       string
		activities string
		want       []Activity
	}{
		{"list of lines", `["Warm-up (5 min): Review halves", "Partner game (10 minutes): Roll and add"]`, want},
		{"mixed list", `["Warm-up (5 min): Review halves", {"name": "Partner game", "minutes": "10 min", "description": "Roll and add"}]`, want},
		{"single string", `"1. Warm-up (5 min): Review halves\n2. Partner game (10 min): Roll and add"`, want},
		{"single object", `{"name": "Warm-up", "minutes": 5, "description": "Review halves"}`, want[:1]},
		{"blank entries dropped", `["", "Warm-up (5 min): Review halves"]`, want[:1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := `{"title": "Dice Sums", "activities": ` + tt.activities + `}`
			res, err := NewProcessor().Process(raw)
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			if res.ParseMethod != MethodJSON {
				t.Errorf("ParseMethod = %q, want %q", res.ParseMethod, MethodJSON)
			}
			if diff := cmp.Diff(tt.want, []Activity(res.Plan.Activities)); diff != "" {
				t.Errorf("activities mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProcessor_Process_Embedded(t *testing.T) {
	p := NewProcessor()

	raw := `I considered {"draft": true} first. Final plan: {"title": "Sight Words", "activities": [{"name": "Flash cards", "minutes": 10}]} Thanks!`
	res, err := p.Process(raw)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.ParseMethod != MethodJSONExtract {
		t.Errorf("ParseMethod = %q, want %q", res.ParseMethod, MethodJSONExtract)
	}
	if res.Confidence != 0.85 {
		t.Errorf("Confidence = %v, want 0.85", res.Confidence)
	}
	if res.Plan.Title != "Sight Words" {
		t.Errorf("Title = %q, want Sight Words", res.Plan.Title)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected an extraction warning")
	}
}

func TestProcessor_Process_TextFallback(t *testing.T) {
	p := NewProcessor()

	raw := "# Counting Coins\n\n## Objectives\n- Identify pennies and nickels\n\n## Activities\n1. Sort coins (10 min): Sort into cups\n"
	res, err := p.Process(raw)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.ParseMethod != MethodTextFallback {
		t.Errorf("ParseMethod = %q, want %q", res.ParseMethod, MethodTextFallback)
	}
	if res.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5", res.Confidence)
	}
	if res.Plan.Title != "Counting Coins" {
		t.Errorf("Title = %q", res.Plan.Title)
	}
	if len(res.Plan.Activities) != 1 || res.Plan.Activities[0].Minutes != 10 {
		t.Errorf("Activities = %+v", res.Plan.Activities)
	}
}

func TestProcessor_Process_JSONWithoutContentFallsBack(t *testing.T) {
	p := NewProcessor()

	res, err := p.Process(`{"status": "ok"}`)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if res.ParseMethod != MethodTextFallback {
		t.Errorf("ParseMethod = %q, want %q", res.ParseMethod, MethodTextFallback)
	}
}

func TestProcessor_Process_Empty(t *testing.T) {
	p := NewProcessor()

	for _, raw := range []string{"", "   \n\t"} {
		if _, err := p.Process(raw); !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("Process(%q) error = %v, want ErrEmptyResponse", raw, err)
		}
	}
	if got := p.Stats().Failures; got != 2 {
		t.Errorf("Failures = %d, want 2", got)
	}
}

func TestProcessor_Process_Strict(t *testing.T) {
	p := &Processor{Strict: true}

	_, err := p.Process("Sorry, I can't produce JSON today.")
	if !errors.Is(err, ErrNoJSON) {
		t.Fatalf("error = %v, want ErrNoJSON", err)
	}

	res, err := p.Process(lessonJSON)
	if err != nil {
		t.Fatalf("strict JSON error = %v", err)
	}
	if res.ParseMethod != MethodJSON {
		t.Errorf("ParseMethod = %q", res.ParseMethod)
	}
}

func TestProcessor_Stats(t *testing.T) {
	p := NewProcessor()

	_, _ = p.Process(lessonJSON)
	_, _ = p.Process("plain text lesson")
	_, _ = p.Process("")

	want := Stats{Total: 3, JSON: 1, Fallback: 1, Failures: 1}
	if diff := cmp.Diff(want, p.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	p.ResetStats()
	if p.Stats() != (Stats{}) {
		t.Errorf("ResetStats() left %+v", p.Stats())
	}
}

func TestLessonPlan_Markdown(t *testing.T) {
	md := wantLessonPlan().Markdown()

	for _, want := range []string{
		"# Adding Fractions with Pizza\n",
		"## Objectives\n\n- Add fractions with like denominators\n",
		"1. **Warm-up** (5 min): Review halves and quarters\n",
		"2. **Guided practice** (15 min): Build sums with slices\n",
		"- **s1**: Use pre-cut slices\n",
		"## Assessment\n\nExit ticket with three problems\n",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("Markdown() missing %q\n%s", want, md)
		}
	}
	if strings.Contains((&LessonPlan{Title: "Only"}).Markdown(), "## ") {
		t.Error("empty sections should be omitted")
	}
}

func TestLessonPlan_AdaptationFor(t *testing.T) {
	plan := wantLessonPlan()
	if got := plan.AdaptationFor("S1"); got != "Use pre-cut slices" {
		t.Errorf("AdaptationFor(S1) = %q", got)
	}
	if got := plan.AdaptationFor("s9"); got != "" {
		t.Errorf("AdaptationFor(s9) = %q, want empty", got)
	}
}
