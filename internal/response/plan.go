package response

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// LessonPlan is the structured lesson returned by the model.
type LessonPlan struct {
	Title              string              `json:"title"`
	Objectives         textList            `json:"objectives"`
	Materials          textList            `json:"materials"`
	Activities         activityList        `json:"activities"`
	StudentAdaptations []StudentAdaptation `json:"student_adaptations"`
	Assessment         flexText            `json:"assessment"`
	Notes              flexText            `json:"notes"`
}

// Activity is one timed step of the lesson.
type Activity struct {
	Name        string  `json:"name"`
	Minutes     minutes `json:"minutes"`
	Description string  `json:"description"`
}

// StudentAdaptation is how one student's work differs from the group plan.
type StudentAdaptation struct {
	StudentID  string `json:"student_id"`
	Adaptation string `json:"adaptation"`
}

// IsEmpty reports whether the plan carries no usable content.
func (p *LessonPlan) IsEmpty() bool {
	return strings.TrimSpace(p.Title) == "" && len(p.Activities) == 0 && len(p.Objectives) == 0
}

// TotalMinutes sums the activity durations.
func (p *LessonPlan) TotalMinutes() int {
	total := 0
	for _, a := range p.Activities {
		total += int(a.Minutes)
	}
	return total
}

// AdaptationFor returns the adaptation text for a student, or "".
func (p *LessonPlan) AdaptationFor(studentID string) string {
	for _, a := range p.StudentAdaptations {
		if strings.EqualFold(a.StudentID, studentID) {
			return a.Adaptation
		}
	}
	return ""
}

// JSON returns the canonical JSON encoding of the plan.
func (p *LessonPlan) JSON() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Markdown renders the plan for terminals and storage.
func (p *LessonPlan) Markdown() string {
	var b strings.Builder
	title := strings.TrimSpace(p.Title)
	if title == "" {
		title = "Lesson Plan"
	}
	fmt.Fprintf(&b, "# %s\n", title)

	writeList := func(heading string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n", heading)
		for _, it := range items {
			fmt.Fprintf(&b, "- %s\n", it)
		}
	}
	writeText := func(heading, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", heading, strings.TrimSpace(text))
	}

	writeList("Objectives", p.Objectives)
	writeList("Materials", p.Materials)

	if len(p.Activities) > 0 {
		b.WriteString("\n## Activities\n\n")
		for i, a := range p.Activities {
			fmt.Fprintf(&b, "%d. **%s**", i+1, a.Name)
			if a.Minutes > 0 {
				fmt.Fprintf(&b, " (%d min)", int(a.Minutes))
			}
			if a.Description != "" {
				fmt.Fprintf(&b, ": %s", a.Description)
			}
			b.WriteByte('\n')
		}
	}

	if len(p.StudentAdaptations) > 0 {
		b.WriteString("\n## Student Adaptations\n\n")
		for _, a := range p.StudentAdaptations {
			fmt.Fprintf(&b, "- **%s**: %s\n", a.StudentID, a.Adaptation)
		}
	}

	writeText("Assessment", string(p.Assessment))
	writeText("Notes", string(p.Notes))
	return b.String()
}

// textList decodes either a JSON array of strings or a single string.
type textList []string

func (l *textList) UnmarshalJSON(data []byte) error {
	var list []interface{}
	if err := json.Unmarshal(data, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s := strings.TrimSpace(stringify(v)); s != "" {
				out = append(out, s)
			}
		}
		*l = out
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected string or list: %w", err)
	}
	if s = strings.TrimSpace(s); s != "" {
		*l = textList{s}
	}
	return nil
}

// UnmarshalJSON accepts an activity object or a line such as
// "Warm-up (5 min): count by twos".
func (a *Activity) UnmarshalJSON(data []byte) error {
	var line string
	if err := json.Unmarshal(data, &line); err == nil {
		*a = parseActivity(line)
		return nil
	}
	type plain Activity
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("invalid activity: %w", err)
	}
	*a = Activity(p)
	return nil
}

// activityList decodes a list of activities (objects or lines), a single
// activity object, or one string with an activity per line.
type activityList []Activity

func (l *activityList) UnmarshalJSON(data []byte) error {
	var list []Activity
	if err := json.Unmarshal(data, &list); err == nil {
		*l = keepNamed(list)
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		var out []Activity
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if m := bulletRe.FindStringSubmatch(line); m != nil {
				line = m[1]
			}
			out = append(out, parseActivity(line))
		}
		*l = keepNamed(out)
		return nil
	}
	var one Activity
	if err := json.Unmarshal(data, &one); err != nil {
		return fmt.Errorf("expected activity list: %w", err)
	}
	*l = keepNamed([]Activity{one})
	return nil
}

func keepNamed(list []Activity) activityList {
	out := make(activityList, 0, len(list))
	for _, a := range list {
		if strings.TrimSpace(a.Name) != "" || strings.TrimSpace(a.Description) != "" {
			out = append(out, a)
		}
	}
	return out
}

// flexText decodes a string, or joins a list of strings with newlines.
type flexText string

func (t *flexText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = flexText(s)
		return nil
	}
	var list textList
	if err := list.UnmarshalJSON(data); err != nil {
		return err
	}
	*t = flexText(strings.Join(list, "\n"))
	return nil
}

// minutes decodes a number or a numeric string such as "10" or "10 min".
type minutes int

func (m *minutes) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*m = minutes(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid minutes: %s", data)
	}
	*m = minutes(leadingInt(s))
	return nil
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}

func stringify(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case map[string]interface{}:
		// {"name": ..., "description": ...} style list entries.
		for _, key := range []string{"text", "name", "item", "description"} {
			if s, ok := x[key].(string); ok {
				return s
			}
		}
		data, _ := json.Marshal(x)
		return string(data)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// FallbackPlan wraps fixed text in a minimal plan.
func FallbackPlan(title, text string) *LessonPlan {
	return &LessonPlan{Title: title, Notes: flexText(text)}
}
