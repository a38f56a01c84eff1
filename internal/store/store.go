package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/hireloop/mailsync/internal/domain"
)

// ErrConflict reports that remote state diverged in a way the operation
// cannot cleanly apply. The sync engine resolves it by forcing the local
// value (local wins).
var ErrConflict = errors.New("remote state conflict")

// ErrNotFound reports a missing row.
var ErrNotFound = errors.New("not found")

// Remote is the central CRM store consumed by the ingestion driver and the
// sync engine. Entity schemas beyond what these methods touch belong to the
// external CRUD layer.
type Remote interface {
	// Matching inputs and outputs.
	OpenRequirements(ctx context.Context, userID string) ([]domain.Requirement, error)
	MatchRecordExists(ctx context.Context, messageID string) (bool, error)
	CreateMatchRecord(ctx context.Context, rec *domain.MatchRecord) error

	// Ingestion bookkeeping.
	GetSyncCursor(ctx context.Context, userID string) (*domain.SyncCursor, error)
	CompleteTick(ctx context.Context, cursor *domain.SyncCursor, run *domain.SyncRun) error
	RecentRuns(ctx context.Context, userID string, limit int) ([]domain.SyncRun, error)

	// Mailboxes.
	GetMailbox(ctx context.Context, userID string) (*domain.Mailbox, error)
	ListMailboxes(ctx context.Context, frequency time.Duration) ([]domain.Mailbox, error)
	Frequencies(ctx context.Context) ([]time.Duration, error)
	UpsertMailbox(ctx context.Context, mb *domain.Mailbox) error

	// Queue replay. Apply returns ErrConflict when the remote diverged;
	// ForceApply overwrites with the local value.
	Apply(ctx context.Context, op domain.Operation, et domain.EntityType, entityID string, payload json.RawMessage) error
	ForceApply(ctx context.Context, op domain.Operation, et domain.EntityType, entityID string, payload json.RawMessage) error

	Close()
}

// Local is the durable per-instance store backing the offline mutation queue
// and the leader-lease fallback.
type Local interface {
	InsertQueueItem(ctx context.Context, item *domain.QueueItem) error
	GetQueueItem(ctx context.Context, id string) (*domain.QueueItem, error)
	ListQueueItems(ctx context.Context, status domain.QueueStatus, limit int) ([]domain.QueueItem, error)
	// DueQueueItems returns pending items plus failed items with retries
	// remaining whose next attempt has passed, oldest first.
	DueQueueItems(ctx context.Context, now time.Time, retryCeiling, limit int) ([]domain.QueueItem, error)
	MarkSyncing(ctx context.Context, ids []string) error
	// ReclaimStaleSyncing resets syncing items last touched before olderThan
	// back to pending, recovering batches stranded by a crash mid-replay.
	ReclaimStaleSyncing(ctx context.Context, olderThan time.Time) (int64, error)
	MarkSynced(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, retryCount int, nextAttempt time.Time, lastError string) error
	ResetQueueItem(ctx context.Context, id string) error
	CountQueueItems(ctx context.Context) (map[domain.QueueStatus]int, error)
	PruneSynced(ctx context.Context, olderThan time.Time) (int64, error)
	EnforceQueueCap(ctx context.Context, max int) (int64, error)

	// Leader-lease fallback record (single row, claim/heartbeat/expiry).
	ClaimLease(ctx context.Context, holderID string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, holderID string) error

	Close() error
}
