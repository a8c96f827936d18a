// Package types holds the domain model shared by every stage of the lesson pipeline.
package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidRequest wraps lesson request validation failures.
var ErrInvalidRequest = errors.New("invalid lesson request")

// DateLayout is the calendar date format used for lesson, session and assessment dates.
const DateLayout = "2006-01-02"

// Student is a caseload entry. GradeLevel 0 is kindergarten.
type Student struct {
	ID          string    `json:"id" yaml:"id"`
	Initials    string    `json:"initials" yaml:"initials"`
	GradeLevel  int       `json:"grade_level" yaml:"grade_level"`
	TeacherRole string    `json:"teacher_role,omitempty" yaml:"teacher_role"`
	SchoolID    string    `json:"school_id,omitempty" yaml:"school_id"`
	CreatedAt   time.Time `json:"created_at" yaml:"-"`
}

// StudentProfile carries the raw per-student data the registry maps into assessments.
type StudentProfile struct {
	StudentID       string             `json:"student_id" yaml:"-"`
	ReadingLevel    string             `json:"reading_level,omitempty" yaml:"reading_level"`
	IEPGoals        []string           `json:"iep_goals,omitempty" yaml:"iep_goals"`
	CognitiveScores map[string]float64 `json:"cognitive_scores,omitempty" yaml:"cognitive_scores"`
	Accommodations  []string           `json:"accommodations,omitempty" yaml:"accommodations"`
	UpdatedAt       time.Time          `json:"updated_at" yaml:"updated_at"`
}

// PerformanceMetric is one recorded session accuracy for a subject skill.
type PerformanceMetric struct {
	ID          string    `json:"id" yaml:"-"`
	StudentID   string    `json:"student_id" yaml:"-"`
	Subject     string    `json:"subject" yaml:"subject"`
	Skill       string    `json:"skill,omitempty" yaml:"skill"`
	Accuracy    float64   `json:"accuracy" yaml:"accuracy"` // percent, 0..100
	SessionDate time.Time `json:"session_date" yaml:"session_date"`
}

// Assessment categories.
const (
	CategoryAcademic    = "academic"
	CategoryCognitive   = "cognitive"
	CategoryBehavioral  = "behavioral"
	CategoryPerformance = "performance"
	CategoryIEP         = "iep"
)

// AssessmentType is a configurable definition of one kind of student measurement.
type AssessmentType struct {
	ID             string   `json:"id" yaml:"id"`
	Key            string   `json:"key" yaml:"key"`
	DisplayName    string   `json:"display_name" yaml:"display_name"`
	Category       string   `json:"category" yaml:"category"`
	Source         string   `json:"source" yaml:"source"`
	Fields         []string `json:"fields" yaml:"fields"`
	PromptTemplate string   `json:"prompt_template" yaml:"prompt_template"`
	Weight         float64  `json:"weight" yaml:"weight"`
	MaxAgeDays     int      `json:"max_age_days" yaml:"max_age_days"`
	Active         bool     `json:"active" yaml:"active"`
}

// AssessmentRecord is a stored result for a record-sourced assessment type.
type AssessmentRecord struct {
	ID               string                 `json:"id" yaml:"-"`
	StudentID        string                 `json:"student_id" yaml:"-"`
	AssessmentTypeID string                 `json:"assessment_type_id" yaml:"type"`
	AssessedAt       time.Time              `json:"assessed_at" yaml:"assessed_at"`
	Data             map[string]interface{} `json:"data" yaml:"data"`
}

// AssessmentData is the uniform shape every student measurement is mapped into.
type AssessmentData struct {
	AssessmentType string                 `json:"assessment_type"`
	Category       string                 `json:"category"`
	Data           map[string]interface{} `json:"data"`
	Confidence     float64                `json:"confidence"`
	AssessedAt     time.Time              `json:"assessed_at,omitempty"`
}

// Trend classifies the direction of recent accuracy.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// AdjustmentType is a recommended change in instructional difficulty or support.
type AdjustmentType string

const (
	AdjustAdvance      AdjustmentType = "advance"
	AdjustMaintain     AdjustmentType = "maintain"
	AdjustReteach      AdjustmentType = "reteach"
	AdjustPrerequisite AdjustmentType = "prerequisite"
)

// Priority returns the queue priority for the adjustment; maintain is never queued.
func (a AdjustmentType) Priority() int {
	switch a {
	case AdjustPrerequisite:
		return 3
	case AdjustReteach:
		return 2
	case AdjustAdvance:
		return 1
	default:
		return 0
	}
}

// Valid reports whether a is a known adjustment type.
func (a AdjustmentType) Valid() bool {
	switch a {
	case AdjustAdvance, AdjustMaintain, AdjustReteach, AdjustPrerequisite:
		return true
	}
	return false
}

// LessonRequest describes one lesson to generate for a group of students.
type LessonRequest struct {
	StudentIDs      []string  `json:"student_ids"`
	Subject         string    `json:"subject"`
	Topic           string    `json:"topic,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	LessonDate      time.Time `json:"lesson_date"`
	TimeSlot        string    `json:"time_slot,omitempty"`
	TeacherRole     string    `json:"teacher_role,omitempty"`
	ProviderID      string    `json:"provider_id,omitempty"`
}

// GradeLabel renders a grade level for humans.
func GradeLabel(grade int) string {
	switch {
	case grade <= 0:
		return "K"
	case grade == 1:
		return "1st"
	case grade == 2:
		return "2nd"
	case grade == 3:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", grade)
	}
}

// Lesson is a persisted generated lesson.
type Lesson struct {
	ID              string    `json:"id"`
	ProviderID      string    `json:"provider_id,omitempty"`
	Subject         string    `json:"subject"`
	Topic           string    `json:"topic,omitempty"`
	LessonDate      time.Time `json:"lesson_date"`
	TimeSlot        string    `json:"time_slot,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	StudentIDs      []string  `json:"student_ids"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`   // rendered markdown
	PlanJSON        string    `json:"plan_json"` // structured plan
	Prompt          string    `json:"prompt"`
	RawResponse     string    `json:"raw_response"`
	ParseMethod     string    `json:"parse_method"`
	Confidence      float64   `json:"confidence"`
	Model           string    `json:"model"`
	InputTokens     int       `json:"input_tokens"`
	OutputTokens    int       `json:"output_tokens"`
	CreatedAt       time.Time `json:"created_at"`
}

// StudentLesson is the per-student slice of a generated lesson.
type StudentLesson struct {
	ID         string    `json:"id"`
	LessonID   string    `json:"lesson_id"`
	StudentID  string    `json:"student_id"`
	Adaptation string    `json:"adaptation"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// Adjustment is a queued instructional adjustment for one student and subject.
type Adjustment struct {
	ID          string                 `json:"id"`
	StudentID   string                 `json:"student_id"`
	Subject     string                 `json:"subject"`
	Type        AdjustmentType         `json:"adjustment_type"`
	Priority    int                    `json:"priority"`
	Reason      string                 `json:"reason"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Processed   bool                   `json:"processed"`
	ProcessedAt time.Time              `json:"processed_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}
