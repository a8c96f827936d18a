// Package adjustment implements the priority-ordered queue of pending
// instructional adjustments.
package adjustment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lessonforge/internal/logging"
	"lessonforge/internal/store"
	"lessonforge/internal/types"
)

// Filter narrows Pending. Zero values match everything.
type Filter = store.AdjustmentFilter

// Counts is the pending/processed tally for one adjustment type.
type Counts = store.AdjustmentCount

// Store is the persistence the queue needs.
type Store interface {
	UpsertPendingAdjustment(ctx context.Context, a *types.Adjustment) (bool, error)
	PendingAdjustments(ctx context.Context, f store.AdjustmentFilter) ([]types.Adjustment, error)
	MarkAdjustmentsProcessed(ctx context.Context, ids []string, batchSize int) (int64, error)
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	AdjustmentCounts(ctx context.Context) ([]store.AdjustmentCount, error)
}

// Queue is a database-backed work list of adjustments.
type Queue struct {
	store     Store
	batchSize int
}

// NewQueue creates a queue. batchSize bounds the ids per UPDATE in MarkProcessed.
func NewQueue(s Store, batchSize int) *Queue {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Queue{store: s, batchSize: batchSize}
}

// Enqueue adds an adjustment, or refreshes the pending one for the same
// student, subject and type. Maintain is never queued.
func (q *Queue) Enqueue(ctx context.Context, a types.Adjustment) (*types.Adjustment, error) {
	if strings.TrimSpace(a.StudentID) == "" || strings.TrimSpace(a.Subject) == "" {
		return nil, fmt.Errorf("adjustment requires student and subject")
	}
	if !a.Type.Valid() {
		return nil, fmt.Errorf("unknown adjustment type %q", a.Type)
	}
	if a.Type == types.AdjustMaintain {
		return nil, fmt.Errorf("maintain adjustments are not queued")
	}
	if a.Priority == 0 {
		a.Priority = a.Type.Priority()
	}
	a.Processed = false
	a.ProcessedAt = time.Time{}

	refreshed, err := q.store.UpsertPendingAdjustment(ctx, &a)
	if err != nil {
		logging.QueueError("Enqueue %s/%s/%s failed: %v", a.StudentID, a.Subject, a.Type, err)
		return nil, err
	}
	if refreshed {
		logging.QueueDebug("Refreshed pending %s adjustment %s for %s", a.Type, a.ID, a.StudentID)
	} else {
		logging.Queue("Queued %s adjustment %s for %s (%s, priority %d)", a.Type, a.ID, a.StudentID, a.Subject, a.Priority)
	}
	return &a, nil
}

// Pending returns unprocessed adjustments, highest priority first, oldest first within a priority.
func (q *Queue) Pending(ctx context.Context, f Filter) ([]types.Adjustment, error) {
	return q.store.PendingAdjustments(ctx, f)
}

// MarkProcessed flags ids as processed in one transaction and returns how many changed.
func (q *Queue) MarkProcessed(ctx context.Context, ids []string) (int64, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := q.store.MarkAdjustmentsProcessed(ctx, ids, q.batchSize)
	if err != nil {
		logging.QueueError("MarkProcessed failed for %d ids: %v", len(ids), err)
		return 0, err
	}
	logging.Queue("Marked %d/%d adjustments processed", n, len(ids))
	return n, nil
}

// Cleanup deletes processed adjustments whose processed_at is older than now-maxAge.
func (q *Queue) Cleanup(ctx context.Context, maxAge time.Duration, now time.Time) (int64, error) {
	if maxAge < 0 {
		return 0, fmt.Errorf("cleanup age must not be negative")
	}
	n, err := q.store.DeleteProcessedBefore(ctx, now.Add(-maxAge))
	if err != nil {
		logging.QueueError("Cleanup failed: %v", err)
		return 0, err
	}
	logging.Queue("Cleaned up %d processed adjustments older than %v", n, maxAge)
	return n, nil
}

// Stats returns pending/processed counts per adjustment type.
func (q *Queue) Stats(ctx context.Context) ([]Counts, error) {
	return q.store.AdjustmentCounts(ctx)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
