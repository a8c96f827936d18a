package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lessonforge/internal/logging"
)

// Schema versions:
// v1: students, profiles, metrics, assessment types and records
// v2: lessons and student_lessons
// v3: lesson_adjustment_queue
// v4: lesson usage columns and queue lookup index
const CurrentSchemaVersion = 4

// Migration is one versioned schema step. Statements must be valid for
// SQLite and PostgreSQL alike.
type Migration struct {
	Version     int
	Description string
	Statements  []string
}

// MigrationResult holds the result of a migration run.
type MigrationResult struct {
	FromVersion   int
	ToVersion     int
	MigrationsRun int
	Duration      time.Duration
}

var allTables = []string{
	"students",
	"student_profiles",
	"performance_metrics",
	"assessment_types",
	"student_assessments",
	"lessons",
	"student_lessons",
	"lesson_adjustment_queue",
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "student data and assessment registry",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS students (
				id TEXT PRIMARY KEY,
				initials TEXT NOT NULL,
				grade_level INTEGER NOT NULL DEFAULT 0,
				teacher_role TEXT NOT NULL DEFAULT '',
				school_id TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS student_profiles (
				student_id TEXT PRIMARY KEY REFERENCES students(id) ON DELETE CASCADE,
				reading_level TEXT NOT NULL DEFAULT '',
				iep_goals TEXT NOT NULL DEFAULT '[]',
				cognitive_scores TEXT NOT NULL DEFAULT '{}',
				accommodations TEXT NOT NULL DEFAULT '[]',
				updated_at BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS performance_metrics (
				id TEXT PRIMARY KEY,
				student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
				subject TEXT NOT NULL,
				skill TEXT NOT NULL DEFAULT '',
				accuracy DOUBLE PRECISION NOT NULL,
				session_date TEXT NOT NULL,
				created_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_metrics_student_subject ON performance_metrics(student_id, subject, session_date)`,
			`CREATE TABLE IF NOT EXISTS assessment_types (
				id TEXT PRIMARY KEY,
				type_key TEXT NOT NULL UNIQUE,
				display_name TEXT NOT NULL,
				category TEXT NOT NULL,
				source TEXT NOT NULL,
				fields TEXT NOT NULL DEFAULT '[]',
				prompt_template TEXT NOT NULL DEFAULT '',
				weight DOUBLE PRECISION NOT NULL DEFAULT 1,
				max_age_days INTEGER NOT NULL DEFAULT 365,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				updated_at BIGINT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS student_assessments (
				id TEXT PRIMARY KEY,
				student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
				assessment_type_id TEXT NOT NULL REFERENCES assessment_types(id),
				assessed_at TEXT NOT NULL,
				data TEXT NOT NULL DEFAULT '{}',
				created_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_student_assessments_student ON student_assessments(student_id, assessment_type_id)`,
		},
	},
	{
		Version:     2,
		Description: "generated lessons",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS lessons (
				id TEXT PRIMARY KEY,
				provider_id TEXT NOT NULL DEFAULT '',
				subject TEXT NOT NULL,
				topic TEXT NOT NULL DEFAULT '',
				lesson_date TEXT NOT NULL,
				time_slot TEXT NOT NULL DEFAULT '',
				duration_minutes INTEGER NOT NULL,
				student_ids TEXT NOT NULL DEFAULT '[]',
				title TEXT NOT NULL DEFAULT '',
				content TEXT NOT NULL,
				plan_json TEXT NOT NULL DEFAULT '',
				prompt TEXT NOT NULL DEFAULT '',
				raw_response TEXT NOT NULL DEFAULT '',
				parse_method TEXT NOT NULL DEFAULT '',
				confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
				model TEXT NOT NULL DEFAULT '',
				created_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_lessons_date ON lessons(lesson_date)`,
			`CREATE TABLE IF NOT EXISTS student_lessons (
				id TEXT PRIMARY KEY,
				lesson_id TEXT NOT NULL REFERENCES lessons(id) ON DELETE CASCADE,
				student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
				adaptation TEXT NOT NULL DEFAULT '',
				confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_student_lessons_student ON student_lessons(student_id)`,
		},
	},
	{
		Version:     3,
		Description: "adjustment queue",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS lesson_adjustment_queue (
				id TEXT PRIMARY KEY,
				student_id TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
				subject TEXT NOT NULL,
				adjustment_type TEXT NOT NULL,
				priority INTEGER NOT NULL DEFAULT 0,
				reason TEXT NOT NULL DEFAULT '',
				details TEXT NOT NULL DEFAULT '{}',
				processed BOOLEAN NOT NULL DEFAULT FALSE,
				processed_at BIGINT,
				created_at BIGINT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_adjustments_pending ON lesson_adjustment_queue(processed, priority)`,
		},
	},
	{
		Version:     4,
		Description: "lesson token usage and queue lookup index",
		Statements: []string{
			`ALTER TABLE lessons ADD COLUMN input_tokens INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE lessons ADD COLUMN output_tokens INTEGER NOT NULL DEFAULT 0`,
			`CREATE INDEX IF NOT EXISTS idx_adjustments_lookup ON lesson_adjustment_queue(student_id, subject, adjustment_type, processed)`,
		},
	},
}

// Migrate applies every migration newer than the recorded schema version.
func (s *Store) Migrate(ctx context.Context) (*MigrationResult, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Migrate")
	defer timer.Stop()
	start := time.Now()

	if _, err := s.exec(ctx, s.db, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at BIGINT NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	from, err := s.SchemaVersion(ctx)
	if err != nil {
		return nil, err
	}
	result := &MigrationResult{FromVersion: from, ToVersion: from}

	for _, m := range migrations {
		if m.Version <= from {
			continue
		}
		logging.Store("Applying migration v%d: %s", m.Version, m.Description)
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			for _, stmt := range m.Statements {
				if _, err := s.exec(ctx, tx, stmt); err != nil {
					return fmt.Errorf("migration v%d failed: %w", m.Version, err)
				}
			}
			_, err := s.exec(ctx, tx,
				"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
				m.Version, m.Description, toMillis(s.clock()))
			return err
		})
		if err != nil {
			logging.StoreError("Migration v%d failed: %v", m.Version, err)
			return nil, err
		}
		result.ToVersion = m.Version
		result.MigrationsRun++
	}

	result.Duration = time.Since(start)
	logging.Store("Schema migrations complete: v%d -> v%d (%d applied)", result.FromVersion, result.ToVersion, result.MigrationsRun)
	return result, nil
}

// SchemaVersion returns the highest applied migration version, 0 for a fresh database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	if err := s.queryRow(ctx, s.db, "SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}
