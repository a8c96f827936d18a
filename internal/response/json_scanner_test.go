package response

import (
	"strings"
	"testing"
)

func TestFindPlanCandidates(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple",
			input: `Here is the lesson: {"title": "Fractions"} enjoy`,
			want:  []string{`{"title": "Fractions"}`},
		},
		{
			name:  "nested",
			input: `start {"activities": [{"name": "warm-up"}]} end`,
			want:  []string{`{"activities": [{"name": "warm-up"}]}`},
		},
		{
			name:  "multiple",
			input: `draft {"id": 1} final {"id": 2}`,
			want:  []string{`{"id": 1}`, `{"id": 2}`},
		},
		{
			name:  "string_with_braces",
			input: `{"notes": "use } and { as symbols"}`,
			want:  []string{`{"notes": "use } and { as symbols"}`},
		},
		{
			name:  "escaped_quote",
			input: `{"title": "The \"Big\" Idea"}`,
			want:  []string{`{"title": "The \"Big\" Idea"}`},
		},
		{
			name:  "incomplete",
			input: `prefix { "title": "cut off`,
			want:  nil,
		},
		{
			name:  "malformed_braces",
			input: `} { valid } {`,
			want:  []string{`{ valid }`},
		},
		{
			name:  "escaped_backslash",
			input: `{"path": "c:\\lessons"}`,
			want:  []string{`{"path": "c:\\lessons"}`},
		},
		{
			name:  "empty_object",
			input: `{}`,
			want:  []string{`{}`},
		},
		{
			name:  "unicode_text",
			input: `Leçon → {"title": "Números"} ✓`,
			want:  []string{`{"title": "Números"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findPlanCandidates(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d candidates, want %d (%v)", len(got), len(tt.want), got)
			}
			for i, cand := range got {
				if cand.text != tt.want[i] {
					t.Errorf("candidate[%d] = %q, want %q", i, cand.text, tt.want[i])
				}
			}
		})
	}
}

func TestFindPlanCandidates_CountsTopLevelPlanKeys(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"plan keys", `{"title": "Fractions", "activities": [], "notes": ""}`, 3},
		{"repeated key counted once", `{"title": "a", "title": "b"}`, 1},
		{"nested keys ignored", `{"meta": {"title": "draft", "objectives": []}}`, 0},
		{"string values ignored", `{"kind": "title", "label": "activities"}`, 0},
		{"whitespace before colon", "{\"materials\"\n  : [\"cubes\"]}", 1},
		{"unrelated object", `{"id": 1}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findPlanCandidates(tt.input)
			if len(got) != 1 {
				t.Fatalf("got %d candidates, want 1", len(got))
			}
			if got[0].keys != tt.want {
				t.Errorf("keys = %d, want %d", got[0].keys, tt.want)
			}
		})
	}
}

func TestRankCandidates(t *testing.T) {
	input := `{"meta": {"model": "x", "tokens": 1200, "padding": "a long field that is bigger than the plan"}} ` +
		`{"title": "Short"} ` +
		`{"title": "Full", "activities": [{"name": "Warm-up"}]}`

	got := rankCandidates(findPlanCandidates(input))
	if len(got) != 2 {
		t.Fatalf("got %d ranked candidates, want 2", len(got))
	}
	if !strings.Contains(got[0].text, `"Full"`) {
		t.Errorf("first candidate = %q, want the object with the most plan keys", got[0].text)
	}
	if !strings.Contains(got[1].text, `"Short"`) {
		t.Errorf("second candidate = %q", got[1].text)
	}
}

func BenchmarkFindPlanCandidates(b *testing.B) {
	var sb strings.Builder
	sb.WriteString("Sure! Here is the lesson plan you asked for.\n")
	for i := 0; i < 200; i++ {
		sb.WriteString(`{"name": "activity", "minutes": 5, "description": "braces } inside"} `)
	}
	input := sb.String()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		findPlanCandidates(input)
	}
}
