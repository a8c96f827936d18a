package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"lessonforge/internal/logging"
	"lessonforge/internal/types"
)

const lessonColumns = `id, provider_id, subject, topic, lesson_date, time_slot, duration_minutes, student_ids,
	title, content, plan_json, prompt, raw_response, parse_method, confidence, model,
	input_tokens, output_tokens, created_at`

// SaveLesson writes the lesson row and one student_lessons row per student in a
// single transaction. Ids and timestamps are assigned when empty.
func (s *Store) SaveLesson(ctx context.Context, l *types.Lesson, perStudent []types.StudentLesson) error {
	timer := logging.StartTimer(logging.CategoryStore, "SaveLesson")
	defer timer.Stop()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.clock()
	}
	studentIDs, err := encodeJSON(nonNilStrings(l.StudentIDs))
	if err != nil {
		return err
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := s.exec(ctx, tx, `INSERT INTO lessons (`+lessonColumns+`)
			VALUES (`+placeholders(19)+`)`,
			l.ID, l.ProviderID, l.Subject, l.Topic, toDate(l.LessonDate), l.TimeSlot, l.DurationMinutes, studentIDs,
			l.Title, l.Content, l.PlanJSON, l.Prompt, l.RawResponse, l.ParseMethod, l.Confidence, l.Model,
			l.InputTokens, l.OutputTokens, toMillis(l.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert lesson: %w", err)
		}

		for i := range perStudent {
			sl := &perStudent[i]
			if sl.ID == "" {
				sl.ID = uuid.NewString()
			}
			sl.LessonID = l.ID
			if sl.CreatedAt.IsZero() {
				sl.CreatedAt = l.CreatedAt
			}
			_, err := s.exec(ctx, tx, `
				INSERT INTO student_lessons (id, lesson_id, student_id, adaptation, confidence, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				sl.ID, sl.LessonID, sl.StudentID, sl.Adaptation, sl.Confidence, toMillis(sl.CreatedAt))
			if err != nil {
				return fmt.Errorf("failed to insert student lesson for %s: %w", sl.StudentID, err)
			}
		}
		return nil
	})
	if err != nil {
		logging.StoreError("SaveLesson %s failed: %v", l.ID, err)
		return err
	}
	logging.StoreDebug("Saved lesson %s for %d students", l.ID, len(perStudent))
	return nil
}

// GetLesson loads one lesson by id.
func (s *Store) GetLesson(ctx context.Context, id string) (*types.Lesson, error) {
	row := s.queryRow(ctx, s.db, "SELECT "+lessonColumns+" FROM lessons WHERE id = ?", id)
	l, err := scanLesson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lesson %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lesson %s: %w", id, err)
	}
	return l, nil
}

// ListLessons returns the newest lessons first.
func (s *Store) ListLessons(ctx context.Context, limit int) ([]types.Lesson, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.query(ctx, s.db,
		"SELECT "+lessonColumns+" FROM lessons ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list lessons: %w", err)
	}
	defer rows.Close()

	var out []types.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// StudentLessons returns the per-student rows of a lesson.
func (s *Store) StudentLessons(ctx context.Context, lessonID string) ([]types.StudentLesson, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT id, lesson_id, student_id, adaptation, confidence, created_at
		FROM student_lessons WHERE lesson_id = ? ORDER BY student_id`, lessonID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student lessons for %s: %w", lessonID, err)
	}
	defer rows.Close()

	var out []types.StudentLesson
	for rows.Next() {
		var sl types.StudentLesson
		var created int64
		if err := rows.Scan(&sl.ID, &sl.LessonID, &sl.StudentID, &sl.Adaptation, &sl.Confidence, &created); err != nil {
			return nil, err
		}
		sl.CreatedAt = fromMillis(created)
		out = append(out, sl)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLesson(r rowScanner) (*types.Lesson, error) {
	var l types.Lesson
	var lessonDate, studentIDs string
	var created int64
	err := r.Scan(&l.ID, &l.ProviderID, &l.Subject, &l.Topic, &lessonDate, &l.TimeSlot, &l.DurationMinutes, &studentIDs,
		&l.Title, &l.Content, &l.PlanJSON, &l.Prompt, &l.RawResponse, &l.ParseMethod, &l.Confidence, &l.Model,
		&l.InputTokens, &l.OutputTokens, &created)
	if err != nil {
		return nil, err
	}
	l.LessonDate = fromDate(lessonDate)
	l.CreatedAt = fromMillis(created)
	if err := decodeJSON(studentIDs, &l.StudentIDs); err != nil {
		return nil, fmt.Errorf("corrupt student_ids for lesson %s: %w", l.ID, err)
	}
	return &l, nil
}
