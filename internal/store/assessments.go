package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"lessonforge/internal/types"
)

// UpsertAssessmentType inserts or updates a type definition keyed by Key.
func (s *Store) UpsertAssessmentType(ctx context.Context, t *types.AssessmentType) error {
	if strings.TrimSpace(t.Key) == "" {
		return fmt.Errorf("assessment type key is required")
	}
	if t.ID == "" {
		t.ID = t.Key
	}
	fields, err := encodeJSON(nonNilStrings(t.Fields))
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, s.db, `
		INSERT INTO assessment_types (id, type_key, display_name, category, source, fields, prompt_template, weight, max_age_days, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (type_key) DO UPDATE SET
			display_name = excluded.display_name,
			category = excluded.category,
			source = excluded.source,
			fields = excluded.fields,
			prompt_template = excluded.prompt_template,
			weight = excluded.weight,
			max_age_days = excluded.max_age_days,
			active = excluded.active,
			updated_at = excluded.updated_at`,
		t.ID, t.Key, t.DisplayName, t.Category, t.Source, fields, t.PromptTemplate,
		t.Weight, t.MaxAgeDays, t.Active, toMillis(s.clock()))
	if err != nil {
		return fmt.Errorf("failed to upsert assessment type %s: %w", t.Key, err)
	}
	return nil
}

// ListAssessmentTypes returns type definitions ordered by key.
func (s *Store) ListAssessmentTypes(ctx context.Context, activeOnly bool) ([]types.AssessmentType, error) {
	query := `SELECT id, type_key, display_name, category, source, fields, prompt_template, weight, max_age_days, active
		FROM assessment_types`
	var args []interface{}
	if activeOnly {
		query += " WHERE active = ?"
		args = append(args, true)
	}
	query += " ORDER BY type_key"

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessment types: %w", err)
	}
	defer rows.Close()

	var out []types.AssessmentType
	for rows.Next() {
		var t types.AssessmentType
		var fields string
		if err := rows.Scan(&t.ID, &t.Key, &t.DisplayName, &t.Category, &t.Source, &fields,
			&t.PromptTemplate, &t.Weight, &t.MaxAgeDays, &t.Active); err != nil {
			return nil, err
		}
		if err := decodeJSON(fields, &t.Fields); err != nil {
			return nil, fmt.Errorf("corrupt fields for assessment type %s: %w", t.Key, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountAssessmentTypes returns the number of stored definitions, active or not.
func (s *Store) CountAssessmentTypes(ctx context.Context) (int, error) {
	var n int
	if err := s.queryRow(ctx, s.db, "SELECT COUNT(*) FROM assessment_types").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count assessment types: %w", err)
	}
	return n, nil
}

// AddAssessmentRecord stores one result for a record-sourced assessment type.
func (s *Store) AddAssessmentRecord(ctx context.Context, r *types.AssessmentRecord) error {
	return s.addAssessmentRecord(ctx, s.db, r)
}

func (s *Store) addAssessmentRecord(ctx context.Context, q queryer, r *types.AssessmentRecord) error {
	if r.AssessmentTypeID == "" {
		return fmt.Errorf("assessment record for %s has no type", r.StudentID)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	data := r.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	encoded, err := encodeJSON(data)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, q, `
		INSERT INTO student_assessments (id, student_id, assessment_type_id, assessed_at, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.StudentID, r.AssessmentTypeID, toDate(r.AssessedAt), encoded, toMillis(s.clock()))
	if err != nil {
		return fmt.Errorf("failed to add assessment record for %s: %w", r.StudentID, err)
	}
	return nil
}

// LatestAssessmentRecords returns the most recent record per assessment type for a student,
// keyed by assessment type id.
func (s *Store) LatestAssessmentRecords(ctx context.Context, studentID string) (map[string]types.AssessmentRecord, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT id, student_id, assessment_type_id, assessed_at, data
		FROM student_assessments
		WHERE student_id = ?
		ORDER BY assessed_at DESC, created_at DESC, id DESC`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment records for %s: %w", studentID, err)
	}
	defer rows.Close()

	out := make(map[string]types.AssessmentRecord)
	for rows.Next() {
		var r types.AssessmentRecord
		var assessed, data string
		if err := rows.Scan(&r.ID, &r.StudentID, &r.AssessmentTypeID, &assessed, &data); err != nil {
			return nil, err
		}
		if _, seen := out[r.AssessmentTypeID]; seen {
			continue
		}
		r.AssessedAt = fromDate(assessed)
		if err := decodeJSON(data, &r.Data); err != nil {
			return nil, fmt.Errorf("corrupt assessment data %s: %w", r.ID, err)
		}
		out[r.AssessmentTypeID] = r
	}
	return out, rows.Err()
}
