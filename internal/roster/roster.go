// Package roster reads caseload roster files and watches them for changes.
package roster

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lessonforge/internal/store"
	"lessonforge/internal/types"
)

// File is the YAML roster format:
//
//	students:
//	  - id: s1
//	    initials: AB
//	    grade_level: 2
//	    profile: {reading_level: F, iep_goals: [...]}
//	    metrics: [{subject: math, accuracy: 72, session_date: 2025-03-01}]
//	    assessments: [{type: behavior_plan, assessed_at: 2025-02-01, data: {...}}]
type File struct {
	Students []Student `yaml:"students"`
}

// Student is one roster entry.
type Student struct {
	types.Student `yaml:",inline"`
	Profile       *types.StudentProfile     `yaml:"profile"`
	Metrics       []types.PerformanceMetric `yaml:"metrics"`
	Assessments   []types.AssessmentRecord  `yaml:"assessments"`
}

// Load reads and parses a roster file.
func Load(path string) ([]store.RosterEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}
	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return entries, nil
}

// Parse converts roster YAML into store entries.
func Parse(data []byte) ([]store.RosterEntry, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	if len(file.Students) == 0 {
		return nil, fmt.Errorf("no students")
	}

	entries := make([]store.RosterEntry, 0, len(file.Students))
	seen := make(map[string]bool, len(file.Students))
	for _, rs := range file.Students {
		if rs.ID == "" {
			return nil, fmt.Errorf("entry %q has no id", rs.Initials)
		}
		if seen[rs.ID] {
			return nil, fmt.Errorf("duplicate student id %s", rs.ID)
		}
		seen[rs.ID] = true
		entries = append(entries, store.RosterEntry{
			Student:     rs.Student,
			Profile:     rs.Profile,
			Metrics:     rs.Metrics,
			Assessments: rs.Assessments,
		})
	}
	return entries, nil
}

// Counts tallies what a roster contains.
func Counts(entries []store.RosterEntry) (students, metrics, records int) {
	for _, e := range entries {
		metrics += len(e.Metrics)
		records += len(e.Assessments)
	}
	return len(entries), metrics, records
}
