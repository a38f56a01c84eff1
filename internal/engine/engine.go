// Package engine drains the offline mutation queue against the central
// store. Only the elected leader replays; conflicts resolve local-wins, and
// transient failures back off exponentially up to a retry ceiling.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/leader"
	"github.com/hireloop/mailsync/internal/queue"
	"github.com/hireloop/mailsync/internal/store"
)

const (
	backoffBase = 30 * time.Second
	backoffCap  = time.Hour

	// Synced items older than this are pruned during maintenance.
	pruneAfter = 24 * time.Hour
	// Hard cap on stored queue items; oldest synced rows go first.
	queueCap = 1000
)

// Options tunes the engine. Zero values take defaults.
type Options struct {
	BatchSize    int
	RetryCeiling int
	// Interval is the periodic replay cadence between change notifications.
	Interval time.Duration
	// SyncingStale is how long an item may sit in syncing before a pass
	// treats it as stranded by a crash and returns it to pending.
	SyncingStale time.Duration
	// Online reports current connectivity; nil means always online.
	Online func() bool
}

// Engine owns the replay loop.
type Engine struct {
	queue    *queue.Queue
	remote   store.Remote
	election leader.Election
	notifier *Notifier
	logger   *zap.Logger

	batchSize    int
	retryCeiling int
	interval     time.Duration
	syncingStale time.Duration
	online       func() bool

	kick chan struct{}
}

// New creates an engine over the queue and remote store.
func New(q *queue.Queue, remote store.Remote, election leader.Election, notifier *Notifier, logger *zap.Logger, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.RetryCeiling <= 0 {
		opts.RetryCeiling = 5
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.SyncingStale == 0 {
		opts.SyncingStale = 5 * time.Minute
	}
	if opts.Online == nil {
		opts.Online = func() bool { return true }
	}
	return &Engine{
		queue:        q,
		remote:       remote,
		election:     election,
		notifier:     notifier,
		logger:       logger,
		batchSize:    opts.BatchSize,
		retryCeiling: opts.RetryCeiling,
		interval:     opts.Interval,
		syncingStale: opts.SyncingStale,
		online:       opts.Online,
		kick:         make(chan struct{}, 1),
	}
}

// Kick requests an immediate replay pass, e.g. when connectivity returns.
func (e *Engine) Kick() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Run replays until ctx is cancelled. Passes are triggered by queue change
// notifications, explicit kicks, and a periodic ticker that picks up items
// whose backoff deadline has passed.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.queue.Changes():
		case <-e.kick:
		case <-ticker.C:
			if err := e.maintain(ctx); err != nil {
				e.logger.Warn("queue maintenance failed", zap.Error(err))
			}
		}
		if err := e.SyncPending(ctx); err != nil {
			e.logger.Error("replay pass failed", zap.Error(err))
			e.notifier.publish(EventError{Err: err})
		}
	}
}

// SyncPending runs one replay pass. It is a no-op unless this context is the
// leader and connectivity is up; items that fail stay queued for the next
// pass, so a pass never returns an error for per-item failures.
func (e *Engine) SyncPending(ctx context.Context) error {
	if !e.election.IsLeader() || !e.online() {
		return nil
	}

	// A crash between MarkSyncing and replay strands items in syncing;
	// anything stuck there past the staleness threshold goes back to pending.
	if _, err := e.queue.ReclaimStale(ctx, time.Now().UTC().Add(-e.syncingStale)); err != nil {
		return err
	}

	items, err := e.queue.Due(ctx, time.Now().UTC(), e.retryCeiling, e.batchSize)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := e.queue.MarkSyncing(ctx, ids); err != nil {
		return err
	}

	e.notifier.publish(EventStarted{Items: len(items)})
	e.logger.Info("replaying queue batch", zap.Int("items", len(items)))

	var processed, failed, conflicts int
	for _, it := range items {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch err := e.replay(ctx, &it); {
		case err == nil:
			processed++
		case errors.Is(err, errConflictForced):
			processed++
			conflicts++
		default:
			failed++
		}
	}

	if conflicts > 0 {
		e.notifier.publish(EventConflicts{Count: conflicts})
	}
	e.notifier.publish(EventCompleted{Processed: processed, Failed: failed, Conflicts: conflicts})
	e.logger.Info("replay pass complete",
		zap.Int("processed", processed),
		zap.Int("failed", failed),
		zap.Int("conflicts", conflicts))
	return nil
}

// errConflictForced signals that an item applied only after forcing the
// local value over a diverged remote.
var errConflictForced = errors.New("conflict forced")

// replay applies one item and records the outcome. The returned error is
// nil for a clean apply, errConflictForced for a local-wins resolution, and
// the apply error otherwise (already recorded on the item).
func (e *Engine) replay(ctx context.Context, it *domain.QueueItem) error {
	if _, err := domain.DecodePayload(it.EntityType, it.Operation, it.Payload); err != nil {
		// The payload can never replay. Park it at the ceiling so it is
		// never picked up again, but stays visible for inspection.
		e.logger.Warn("queue item has invalid payload",
			zap.String("id", it.ID),
			zap.Error(err))
		if mErr := e.queue.MarkFailed(ctx, it.ID, e.retryCeiling, time.Now().UTC(), err.Error()); mErr != nil {
			return mErr
		}
		return err
	}

	err := e.remote.Apply(ctx, it.Operation, it.EntityType, it.EntityID, it.Payload)
	if errors.Is(err, store.ErrConflict) {
		e.logger.Info("conflict detected, forcing local value",
			zap.String("id", it.ID),
			zap.String("entity_type", string(it.EntityType)),
			zap.String("entity_id", it.EntityID))
		if err := e.remote.ForceApply(ctx, it.Operation, it.EntityType, it.EntityID, it.Payload); err != nil {
			return e.recordFailure(ctx, it, err)
		}
		if err := e.queue.MarkSynced(ctx, it.ID); err != nil {
			return err
		}
		return errConflictForced
	}
	if err != nil {
		return e.recordFailure(ctx, it, err)
	}
	return e.queue.MarkSynced(ctx, it.ID)
}

func (e *Engine) recordFailure(ctx context.Context, it *domain.QueueItem, cause error) error {
	retries := it.RetryCount + 1
	next := time.Now().UTC().Add(Backoff(it.RetryCount))
	e.logger.Warn("replay attempt failed",
		zap.String("id", it.ID),
		zap.Int("retry_count", retries),
		zap.Time("next_attempt", next),
		zap.Error(cause))
	if err := e.queue.MarkFailed(ctx, it.ID, retries, next, cause.Error()); err != nil {
		return err
	}
	return cause
}

func (e *Engine) maintain(ctx context.Context) error {
	if !e.election.IsLeader() {
		return nil
	}
	return e.queue.Maintain(ctx, pruneAfter, queueCap)
}

// Backoff returns the delay before the attempt after retryCount failures:
// 30s doubling per failure, capped at an hour.
func Backoff(retryCount int) time.Duration {
	d := backoffBase
	for i := 0; i < retryCount && d < backoffCap; i++ {
		d *= 2
	}
	if d > backoffCap {
		return backoffCap
	}
	return d
}
