// Package queue is the durable local log of pending mutations captured while
// offline or optimistically. Enqueueing never touches the network; the sync
// engine drains the log when it holds leadership.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/store"
)

// Queue wraps the local store with enqueue semantics and change
// notifications.
type Queue struct {
	local   store.Local
	logger  *zap.Logger
	changes chan struct{}
}

// New creates a queue over the local store.
func New(local store.Local, logger *zap.Logger) *Queue {
	return &Queue{
		local:   local,
		logger:  logger,
		changes: make(chan struct{}, 1),
	}
}

// Enqueue appends a mutation and returns its id. It always succeeds locally
// when the disk does; payload validity is checked at replay time, not here,
// so a user's work is never dropped at capture time.
func (q *Queue) Enqueue(ctx context.Context, op domain.Operation, et domain.EntityType, entityID string, payload json.RawMessage) (string, error) {
	item := &domain.QueueItem{
		ID:         uuid.NewString(),
		Operation:  op,
		EntityType: et,
		EntityID:   entityID,
		Payload:    payload,
		Status:     domain.QueuePending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := q.local.InsertQueueItem(ctx, item); err != nil {
		return "", err
	}
	q.logger.Debug("enqueued mutation",
		zap.String("id", item.ID),
		zap.String("operation", string(op)),
		zap.String("entity_type", string(et)),
		zap.String("entity_id", entityID))
	q.notify()
	return item.ID, nil
}

// Changes returns a channel that receives a signal whenever the queue gains
// replayable work. The signal is coalesced: a slow consumer sees at most one
// pending notification.
func (q *Queue) Changes() <-chan struct{} {
	return q.changes
}

func (q *Queue) notify() {
	select {
	case q.changes <- struct{}{}:
	default:
	}
}

// Due returns the next batch of replayable items, oldest first.
func (q *Queue) Due(ctx context.Context, now time.Time, retryCeiling, limit int) ([]domain.QueueItem, error) {
	return q.local.DueQueueItems(ctx, now, retryCeiling, limit)
}

// MarkSyncing transitions a batch to syncing.
func (q *Queue) MarkSyncing(ctx context.Context, ids []string) error {
	return q.local.MarkSyncing(ctx, ids)
}

// ReclaimStale recovers items stranded in syncing by a crash mid-replay,
// returning them to pending.
func (q *Queue) ReclaimStale(ctx context.Context, olderThan time.Time) (int64, error) {
	n, err := q.local.ReclaimStaleSyncing(ctx, olderThan)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		q.logger.Warn("reclaimed stranded syncing items", zap.Int64("items", n))
	}
	return n, nil
}

// MarkSynced finalizes a successfully replayed item.
func (q *Queue) MarkSynced(ctx context.Context, id string) error {
	return q.local.MarkSynced(ctx, id)
}

// MarkFailed records a failed attempt and its backoff deadline.
func (q *Queue) MarkFailed(ctx context.Context, id string, retryCount int, nextAttempt time.Time, lastError string) error {
	return q.local.MarkFailed(ctx, id, retryCount, nextAttempt, lastError)
}

// Retry resets a failed item for an immediate attempt and wakes the engine.
func (q *Queue) Retry(ctx context.Context, id string) error {
	if err := q.local.ResetQueueItem(ctx, id); err != nil {
		return err
	}
	q.notify()
	return nil
}

// List returns items for display, newest first.
func (q *Queue) List(ctx context.Context, status domain.QueueStatus, limit int) ([]domain.QueueItem, error) {
	return q.local.ListQueueItems(ctx, status, limit)
}

// Counts returns per-status item counts.
func (q *Queue) Counts(ctx context.Context) (map[domain.QueueStatus]int, error) {
	return q.local.CountQueueItems(ctx)
}

// Maintain prunes old synced items and enforces the storage cap. Only the
// leader runs maintenance.
func (q *Queue) Maintain(ctx context.Context, pruneAfter time.Duration, cap int) error {
	pruned, err := q.local.PruneSynced(ctx, time.Now().UTC().Add(-pruneAfter))
	if err != nil {
		return err
	}
	dropped, err := q.local.EnforceQueueCap(ctx, cap)
	if err != nil {
		return err
	}
	if pruned > 0 || dropped > 0 {
		q.logger.Info("queue maintenance",
			zap.Int64("pruned", pruned),
			zap.Int64("dropped", dropped))
	}
	return nil
}
