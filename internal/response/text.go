package response

import (
	"regexp"
	"strings"
)

type section int

const (
	sectionNone section = iota
	sectionObjectives
	sectionMaterials
	sectionActivities
	sectionAdaptations
	sectionAssessment
	sectionNotes
)

var (
	headingRe  = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	boldLineRe = regexp.MustCompile(`^\*\*([^*]+)\*\*:?\s*$`)
	bulletRe   = regexp.MustCompile(`^(?:[-*•+]|\d+[.)])\s+(.*)$`)
	minutesRe  = regexp.MustCompile(`(?i)\(?\s*(\d+)\s*(?:min|mins|minutes)\b\.?\s*\)?`)
)

// sectionKeywords maps heading keywords to sections. Order matters:
// "Assessment accommodations" is an assessment heading.
var sectionKeywords = []struct {
	keyword string
	section section
}{
	{"objective", sectionObjectives},
	{"goal", sectionObjectives},
	{"material", sectionMaterials},
	{"assess", sectionAssessment},
	{"check for understanding", sectionAssessment},
	{"adapt", sectionAdaptations},
	{"differentiat", sectionAdaptations},
	{"accommodat", sectionAdaptations},
	{"activit", sectionActivities},
	{"procedure", sectionActivities},
	{"steps", sectionActivities},
	{"note", sectionNotes},
}

func classifyHeading(h string) section {
	h = strings.ToLower(h)
	for _, k := range sectionKeywords {
		if strings.Contains(h, k.keyword) {
			return k.section
		}
	}
	return sectionNone
}

// ParseText builds a LessonPlan from markdown or plain text. Headings name
// sections, bullets become items, and the first "#" heading (or the first
// non-empty line) becomes the title. Text outside any known section lands
// in Notes.
func ParseText(raw string) *LessonPlan {
	plan := &LessonPlan{}
	current := sectionNone
	var assessment, notes []string
	firstLine := ""

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		if firstLine == "" {
			firstLine = line
		}

		if m := headingRe.FindStringSubmatch(line); m != nil {
			text := cleanInline(m[2])
			if len(m[1]) == 1 && plan.Title == "" {
				plan.Title = text
				current = sectionNone
				continue
			}
			current = classifyHeading(text)
			continue
		}
		if m := boldLineRe.FindStringSubmatch(line); m != nil {
			if s := classifyHeading(m[1]); s != sectionNone {
				current = s
				continue
			}
		}

		item := line
		isBullet := false
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			item = m[1]
			isBullet = true
		}
		item = strings.TrimSpace(item)

		switch current {
		case sectionObjectives:
			plan.Objectives = append(plan.Objectives, cleanInline(item))
		case sectionMaterials:
			plan.Materials = append(plan.Materials, cleanInline(item))
		case sectionActivities:
			if isBullet || len(plan.Activities) == 0 {
				plan.Activities = append(plan.Activities, parseActivity(item))
			} else {
				last := &plan.Activities[len(plan.Activities)-1]
				last.Description = strings.TrimSpace(last.Description + " " + cleanInline(item))
			}
		case sectionAdaptations:
			plan.StudentAdaptations = append(plan.StudentAdaptations, parseAdaptation(item))
		case sectionAssessment:
			assessment = append(assessment, cleanInline(item))
		default:
			if line == firstLine && plan.Title == "" {
				continue
			}
			notes = append(notes, cleanInline(item))
		}
	}

	if plan.Title == "" {
		plan.Title = cleanInline(strings.TrimLeft(firstLine, "#"))
	}
	plan.Assessment = flexText(strings.Join(assessment, "\n"))
	plan.Notes = flexText(strings.Join(notes, "\n"))
	return plan
}

// parseActivity reads "Name (10 min): description" and similar shapes.
func parseActivity(item string) Activity {
	var a Activity
	if m := minutesRe.FindStringSubmatchIndex(item); m != nil {
		a.Minutes = minutes(leadingInt(item[m[2]:m[3]]))
		item = strings.TrimSpace(item[:m[0]] + " " + item[m[1]:])
	}
	item = cleanInline(item)

	name, desc := splitLabel(item)
	a.Name = strings.Trim(name, " -–:")
	a.Description = strings.Trim(desc, " -–:")
	return a
}

// parseAdaptation reads "S1: extra time" or "Student S1 - extra time".
func parseAdaptation(item string) StudentAdaptation {
	item = cleanInline(item)
	label, text := splitLabel(item)
	if text == "" {
		return StudentAdaptation{Adaptation: item}
	}
	label = strings.TrimSpace(label)
	if lower := strings.ToLower(label); strings.HasPrefix(lower, "student ") {
		label = strings.TrimSpace(label[len("student "):])
	}
	return StudentAdaptation{StudentID: label, Adaptation: text}
}

// splitLabel splits "label: rest" or "label - rest".
func splitLabel(s string) (string, string) {
	if i := strings.Index(s, ":"); i > 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	}
	for _, sep := range []string{" - ", " – "} {
		if i := strings.Index(s, sep); i > 0 {
			return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(sep):])
		}
	}
	return s, ""
}

func cleanInline(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.TrimSpace(s)
}
