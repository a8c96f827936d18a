package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"lessonforge/internal/types"
)

const adjustmentColumns = `id, student_id, subject, adjustment_type, priority, reason, details, processed, processed_at, created_at`

// AdjustmentFilter narrows a pending-adjustment query. Zero values match everything.
type AdjustmentFilter struct {
	StudentIDs []string
	Subject    string
	Limit      int
}

// AdjustmentCount is the pending/processed tally for one adjustment type.
type AdjustmentCount struct {
	Type      types.AdjustmentType `json:"adjustment_type"`
	Pending   int64                `json:"pending"`
	Processed int64                `json:"processed"`
}

// UpsertPendingAdjustment inserts a new unprocessed adjustment, or refreshes the
// existing unprocessed row for the same student, subject and type. It reports
// whether an existing row was refreshed.
func (s *Store) UpsertPendingAdjustment(ctx context.Context, a *types.Adjustment) (bool, error) {
	details := a.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	encoded, err := encodeJSON(details)
	if err != nil {
		return false, err
	}
	a.Subject = strings.ToLower(a.Subject)

	refreshed := false
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var existingID string
		var created int64
		err := s.queryRow(ctx, tx, `
			SELECT id, created_at FROM lesson_adjustment_queue
			WHERE student_id = ? AND subject = ? AND adjustment_type = ? AND processed = ?
			ORDER BY created_at ASC, id ASC LIMIT 1`,
			a.StudentID, a.Subject, string(a.Type), false).Scan(&existingID, &created)

		switch {
		case err == nil:
			_, err = s.exec(ctx, tx, `
				UPDATE lesson_adjustment_queue SET priority = ?, reason = ?, details = ?
				WHERE id = ?`,
				a.Priority, a.Reason, encoded, existingID)
			if err != nil {
				return fmt.Errorf("failed to refresh adjustment %s: %w", existingID, err)
			}
			a.ID = existingID
			a.CreatedAt = fromMillis(created)
			refreshed = true
			return nil
		case errors.Is(err, sql.ErrNoRows):
		default:
			return fmt.Errorf("failed to look up pending adjustment: %w", err)
		}

		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = s.clock()
		}
		_, err = s.exec(ctx, tx, `INSERT INTO lesson_adjustment_queue (`+adjustmentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)`,
			a.ID, a.StudentID, a.Subject, string(a.Type), a.Priority, a.Reason, encoded, false, toMillis(a.CreatedAt))
		if err != nil {
			return fmt.Errorf("failed to insert adjustment: %w", err)
		}
		return nil
	})
	return refreshed, err
}

// PendingAdjustments returns unprocessed adjustments ordered by priority (highest
// first), then age (oldest first), then id.
func (s *Store) PendingAdjustments(ctx context.Context, f AdjustmentFilter) ([]types.Adjustment, error) {
	query := "SELECT " + adjustmentColumns + " FROM lesson_adjustment_queue WHERE processed = ?"
	args := []interface{}{false}
	if len(f.StudentIDs) > 0 {
		query += " AND student_id IN (" + placeholders(len(f.StudentIDs)) + ")"
		for _, id := range f.StudentIDs {
			args = append(args, id)
		}
	}
	if f.Subject != "" {
		query += " AND subject = ?"
		args = append(args, strings.ToLower(f.Subject))
	}
	query += " ORDER BY priority DESC, created_at ASC, id ASC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending adjustments: %w", err)
	}
	defer rows.Close()

	var out []types.Adjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetAdjustment loads one adjustment regardless of state.
func (s *Store) GetAdjustment(ctx context.Context, id string) (*types.Adjustment, error) {
	a, err := scanAdjustment(s.queryRow(ctx, s.db,
		"SELECT "+adjustmentColumns+" FROM lesson_adjustment_queue WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("adjustment %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// MarkAdjustmentsProcessed flags ids as processed in one transaction, issuing
// updates in chunks of batchSize. Ids that are unknown or already processed are
// ignored. It returns the number of rows changed.
func (s *Store) MarkAdjustmentsProcessed(ctx context.Context, ids []string, batchSize int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = len(ids)
	}
	now := toMillis(s.clock())

	var changed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(ids); start += batchSize {
			end := start + batchSize
			if end > len(ids) {
				end = len(ids)
			}
			chunk := ids[start:end]
			args := make([]interface{}, 0, len(chunk)+3)
			args = append(args, true, now)
			for _, id := range chunk {
				args = append(args, id)
			}
			args = append(args, false)
			res, err := s.exec(ctx, tx, `
				UPDATE lesson_adjustment_queue SET processed = ?, processed_at = ?
				WHERE id IN (`+placeholders(len(chunk))+`) AND processed = ?`, args...)
			if err != nil {
				return fmt.Errorf("failed to mark adjustments processed: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			changed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

// DeleteProcessedBefore removes processed adjustments whose processed_at is older than cutoff.
func (s *Store) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, s.db, `
		DELETE FROM lesson_adjustment_queue
		WHERE processed = ? AND processed_at IS NOT NULL AND processed_at < ?`,
		true, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up adjustments: %w", err)
	}
	return res.RowsAffected()
}

// AdjustmentCounts tallies pending and processed rows per adjustment type.
func (s *Store) AdjustmentCounts(ctx context.Context) ([]AdjustmentCount, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT adjustment_type, processed, COUNT(*)
		FROM lesson_adjustment_queue
		GROUP BY adjustment_type, processed
		ORDER BY adjustment_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count adjustments: %w", err)
	}
	defer rows.Close()

	byType := make(map[types.AdjustmentType]*AdjustmentCount)
	var order []types.AdjustmentType
	for rows.Next() {
		var t string
		var processed bool
		var n int64
		if err := rows.Scan(&t, &processed, &n); err != nil {
			return nil, err
		}
		at := types.AdjustmentType(t)
		c, ok := byType[at]
		if !ok {
			c = &AdjustmentCount{Type: at}
			byType[at] = c
			order = append(order, at)
		}
		if processed {
			c.Processed += n
		} else {
			c.Pending += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]AdjustmentCount, 0, len(order))
	for _, t := range order {
		out = append(out, *byType[t])
	}
	return out, nil
}

func scanAdjustment(r rowScanner) (*types.Adjustment, error) {
	var a types.Adjustment
	var adjType, details string
	var processedAt sql.NullInt64
	var created int64
	if err := r.Scan(&a.ID, &a.StudentID, &a.Subject, &adjType, &a.Priority, &a.Reason, &details,
		&a.Processed, &processedAt, &created); err != nil {
		return nil, err
	}
	a.Type = types.AdjustmentType(adjType)
	a.ProcessedAt = nullMillis(processedAt)
	a.CreatedAt = fromMillis(created)
	if err := decodeJSON(details, &a.Details); err != nil {
		return nil, fmt.Errorf("corrupt details for adjustment %s: %w", a.ID, err)
	}
	return &a, nil
}
