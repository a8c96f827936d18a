package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"lessonforge/internal/logging"
	"lessonforge/internal/types"
)

// UpsertStudent inserts or updates a student row.
func (s *Store) UpsertStudent(ctx context.Context, st *types.Student) error {
	return s.upsertStudent(ctx, s.db, st)
}

func (s *Store) upsertStudent(ctx context.Context, q queryer, st *types.Student) error {
	if strings.TrimSpace(st.ID) == "" {
		return fmt.Errorf("student id is required")
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.clock()
	}
	_, err := s.exec(ctx, q, `
		INSERT INTO students (id, initials, grade_level, teacher_role, school_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			initials = excluded.initials,
			grade_level = excluded.grade_level,
			teacher_role = excluded.teacher_role,
			school_id = excluded.school_id`,
		st.ID, st.Initials, st.GradeLevel, st.TeacherRole, st.SchoolID, toMillis(st.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert student %s: %w", st.ID, err)
	}
	return nil
}

// GetStudent loads one student; missing rows yield types.ErrNotFound.
func (s *Store) GetStudent(ctx context.Context, id string) (*types.Student, error) {
	var st types.Student
	var created int64
	err := s.queryRow(ctx, s.db,
		"SELECT id, initials, grade_level, teacher_role, school_id, created_at FROM students WHERE id = ?", id).
		Scan(&st.ID, &st.Initials, &st.GradeLevel, &st.TeacherRole, &st.SchoolID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("student %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load student %s: %w", id, err)
	}
	st.CreatedAt = fromMillis(created)
	return &st, nil
}

// ListStudents returns all students ordered by grade then initials.
func (s *Store) ListStudents(ctx context.Context) ([]types.Student, error) {
	rows, err := s.query(ctx, s.db,
		"SELECT id, initials, grade_level, teacher_role, school_id, created_at FROM students ORDER BY grade_level, initials, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var out []types.Student
	for rows.Next() {
		var st types.Student
		var created int64
		if err := rows.Scan(&st.ID, &st.Initials, &st.GradeLevel, &st.TeacherRole, &st.SchoolID, &created); err != nil {
			return nil, err
		}
		st.CreatedAt = fromMillis(created)
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpsertProfile stores the raw profile data for a student.
func (s *Store) UpsertProfile(ctx context.Context, p *types.StudentProfile) error {
	return s.upsertProfile(ctx, s.db, p)
}

func (s *Store) upsertProfile(ctx context.Context, q queryer, p *types.StudentProfile) error {
	goals, err := encodeJSON(nonNilStrings(p.IEPGoals))
	if err != nil {
		return err
	}
	scores := p.CognitiveScores
	if scores == nil {
		scores = map[string]float64{}
	}
	cognitive, err := encodeJSON(scores)
	if err != nil {
		return err
	}
	accommodations, err := encodeJSON(nonNilStrings(p.Accommodations))
	if err != nil {
		return err
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = s.clock()
	}

	_, err = s.exec(ctx, q, `
		INSERT INTO student_profiles (student_id, reading_level, iep_goals, cognitive_scores, accommodations, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id) DO UPDATE SET
			reading_level = excluded.reading_level,
			iep_goals = excluded.iep_goals,
			cognitive_scores = excluded.cognitive_scores,
			accommodations = excluded.accommodations,
			updated_at = excluded.updated_at`,
		p.StudentID, p.ReadingLevel, goals, cognitive, accommodations, toMillis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert profile for %s: %w", p.StudentID, err)
	}
	return nil
}

// GetProfile loads a student's profile; missing rows yield types.ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, studentID string) (*types.StudentProfile, error) {
	var p types.StudentProfile
	var goals, cognitive, accommodations string
	var updated int64
	err := s.queryRow(ctx, s.db, `
		SELECT student_id, reading_level, iep_goals, cognitive_scores, accommodations, updated_at
		FROM student_profiles WHERE student_id = ?`, studentID).
		Scan(&p.StudentID, &p.ReadingLevel, &goals, &cognitive, &accommodations, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("profile %s: %w", studentID, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", studentID, err)
	}
	if err := decodeJSON(goals, &p.IEPGoals); err != nil {
		return nil, fmt.Errorf("corrupt iep_goals for %s: %w", studentID, err)
	}
	if err := decodeJSON(cognitive, &p.CognitiveScores); err != nil {
		return nil, fmt.Errorf("corrupt cognitive_scores for %s: %w", studentID, err)
	}
	if err := decodeJSON(accommodations, &p.Accommodations); err != nil {
		return nil, fmt.Errorf("corrupt accommodations for %s: %w", studentID, err)
	}
	p.UpdatedAt = fromMillis(updated)
	return &p, nil
}

// AddMetric records one session accuracy.
func (s *Store) AddMetric(ctx context.Context, m *types.PerformanceMetric) error {
	return s.addMetric(ctx, s.db, m)
}

func (s *Store) addMetric(ctx context.Context, q queryer, m *types.PerformanceMetric) error {
	if math.IsNaN(m.Accuracy) || m.Accuracy < 0 || m.Accuracy > 100 {
		return fmt.Errorf("accuracy %.1f out of range [0, 100]", m.Accuracy)
	}
	if m.SessionDate.IsZero() {
		return fmt.Errorf("metric session date is required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	_, err := s.exec(ctx, q, `
		INSERT INTO performance_metrics (id, student_id, subject, skill, accuracy, session_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.StudentID, strings.ToLower(m.Subject), m.Skill, m.Accuracy, toDate(m.SessionDate), toMillis(s.clock()))
	if err != nil {
		return fmt.Errorf("failed to add metric for %s: %w", m.StudentID, err)
	}
	return nil
}

// RecentMetrics returns up to limit most recent metrics for a student, oldest first.
// An empty subject returns metrics for all subjects.
func (s *Store) RecentMetrics(ctx context.Context, studentID, subject string, limit int) ([]types.PerformanceMetric, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT id, student_id, subject, skill, accuracy, session_date FROM performance_metrics WHERE student_id = ?`
	args := []interface{}{studentID}
	if subject != "" {
		query += " AND subject = ?"
		args = append(args, strings.ToLower(subject))
	}
	query += " ORDER BY session_date DESC, created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load metrics for %s: %w", studentID, err)
	}
	defer rows.Close()

	var out []types.PerformanceMetric
	for rows.Next() {
		var m types.PerformanceMetric
		var date string
		if err := rows.Scan(&m.ID, &m.StudentID, &m.Subject, &m.Skill, &m.Accuracy, &date); err != nil {
			return nil, err
		}
		m.SessionDate = fromDate(date)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RosterEntry bundles everything imported for one student.
type RosterEntry struct {
	Student     types.Student
	Profile     *types.StudentProfile
	Metrics     []types.PerformanceMetric
	Assessments []types.AssessmentRecord
}

// ImportRoster writes students, profiles, metrics and assessment records in one transaction.
// A roster is authoritative for what it lists: when an entry carries metrics
// (or assessment records), the student's stored metrics (or records) are
// replaced, so importing the same file twice leaves the store unchanged.
func (s *Store) ImportRoster(ctx context.Context, entries []RosterEntry) error {
	timer := logging.StartTimer(logging.CategoryStore, "ImportRoster")
	defer timer.Stop()

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range entries {
			e := &entries[i]
			if err := s.upsertStudent(ctx, tx, &e.Student); err != nil {
				return err
			}
			if e.Profile != nil {
				e.Profile.StudentID = e.Student.ID
				if err := s.upsertProfile(ctx, tx, e.Profile); err != nil {
					return err
				}
			}
			if len(e.Metrics) > 0 {
				if _, err := s.exec(ctx, tx, `DELETE FROM performance_metrics WHERE student_id = ?`, e.Student.ID); err != nil {
					return fmt.Errorf("failed to replace metrics for %s: %w", e.Student.ID, err)
				}
			}
			for j := range e.Metrics {
				e.Metrics[j].StudentID = e.Student.ID
				if err := s.addMetric(ctx, tx, &e.Metrics[j]); err != nil {
					return err
				}
			}
			if len(e.Assessments) > 0 {
				if _, err := s.exec(ctx, tx, `DELETE FROM student_assessments WHERE student_id = ?`, e.Student.ID); err != nil {
					return fmt.Errorf("failed to replace assessment records for %s: %w", e.Student.ID, err)
				}
			}
			for j := range e.Assessments {
				e.Assessments[j].StudentID = e.Student.ID
				if err := s.addAssessmentRecord(ctx, tx, &e.Assessments[j]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		logging.StoreError("Roster import failed: %v", err)
		return err
	}
	logging.Store("Imported %d roster entries", len(entries))
	return nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
