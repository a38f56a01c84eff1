package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/queue"
	"github.com/hireloop/mailsync/internal/store"
	"github.com/hireloop/mailsync/internal/store/sqlite"
)

type stubElection struct{ leader bool }

func (s stubElection) IsLeader() bool { return s.leader }

// fakeRemote scripts Apply outcomes per entity id and records calls.
type fakeRemote struct {
	store.Remote

	applyErrs  map[string]error
	applied    []string
	forced     []string
	applyCalls map[string]int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		applyErrs:  map[string]error{},
		applyCalls: map[string]int{},
	}
}

func (f *fakeRemote) Apply(_ context.Context, _ domain.Operation, _ domain.EntityType, entityID string, _ json.RawMessage) error {
	f.applyCalls[entityID]++
	if err, ok := f.applyErrs[entityID]; ok {
		return err
	}
	f.applied = append(f.applied, entityID)
	return nil
}

func (f *fakeRemote) ForceApply(_ context.Context, _ domain.Operation, _ domain.EntityType, entityID string, _ json.RawMessage) error {
	f.forced = append(f.forced, entityID)
	return nil
}

func newTestEngine(t *testing.T, remote store.Remote, leader bool) (*Engine, *queue.Queue, *sqlite.DB) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	q := queue.New(db, zap.NewNop())
	e := New(q, remote, stubElection{leader: leader}, NewNotifier(), zap.NewNop(), Options{
		BatchSize:    10,
		RetryCeiling: 5,
	})
	return e, q, db
}

func enqueueRequirement(t *testing.T, q *queue.Queue, entityID string) string {
	t.Helper()
	payload, _ := json.Marshal(domain.RequirementPayload{Title: "Senior Go Developer"})
	id, err := q.Enqueue(context.Background(), domain.OpCreate, domain.EntityRequirement, entityID, payload)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	return id
}

func TestSyncPending_Success(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	e, q, db := newTestEngine(t, remote, true)

	id := enqueueRequirement(t, q, "req-1")

	if err := e.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending() error: %v", err)
	}

	item, err := db.GetQueueItem(ctx, id)
	if err != nil {
		t.Fatalf("GetQueueItem() error: %v", err)
	}
	if item.Status != domain.QueueSynced {
		t.Errorf("status = %q, want %q", item.Status, domain.QueueSynced)
	}
	if len(remote.applied) != 1 || remote.applied[0] != "req-1" {
		t.Errorf("applied = %v, want [req-1]", remote.applied)
	}

	// A second pass finds nothing new.
	if err := e.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending() second pass error: %v", err)
	}
	if remote.applyCalls["req-1"] != 1 {
		t.Errorf("apply calls = %d, want 1", remote.applyCalls["req-1"])
	}
}

func TestSyncPending_NotLeader(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	e, q, db := newTestEngine(t, remote, false)

	id := enqueueRequirement(t, q, "req-1")

	if err := e.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending() error: %v", err)
	}
	if len(remote.applyCalls) != 0 {
		t.Errorf("non-leader replayed %d items, want 0", len(remote.applyCalls))
	}
	item, _ := db.GetQueueItem(ctx, id)
	if item.Status != domain.QueuePending {
		t.Errorf("status = %q, want %q", item.Status, domain.QueuePending)
	}
}

func TestSyncPending_Offline(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New() error: %v", err)
	}
	defer db.Close()
	q := queue.New(db, zap.NewNop())
	e := New(q, remote, stubElection{leader: true}, NewNotifier(), zap.NewNop(), Options{
		Online: func() bool { return false },
	})

	enqueueRequirement(t, q, "req-1")
	if err := e.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending() error: %v", err)
	}
	if len(remote.applyCalls) != 0 {
		t.Errorf("offline engine replayed %d items, want 0", len(remote.applyCalls))
	}
}

func TestSyncPending_TransientFailureBacksOff(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.applyErrs["req-1"] = errors.New("connection reset")
	e, q, db := newTestEngine(t, remote, true)

	id := enqueueRequirement(t, q, "req-1")

	if err := e.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending() error: %v", err)
	}

	item, err := db.GetQueueItem(ctx, id)
	if err != nil {
		t.Fatalf("GetQueueItem() error: %v", err)
	}
	if item.Status != domain.QueueFailed {
		t.Errorf("status = %q, want %q", item.Status, domain.QueueFailed)
	}
	if item.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", item.RetryCount)
	}
	if item.LastError == "" {
		t.Error("last error not recorded")
	}
	if !item.NextAttempt.After(time.Now().UTC().Add(20 * time.Second)) {
		t.Errorf("next attempt %v not backed off", item.NextAttempt)
	}

	// The item is not due again until its backoff deadline passes.
	if err := e.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending() second pass error: %v", err)
	}
	if remote.applyCalls["req-1"] != 1 {
		t.Errorf("apply calls = %d, want 1 while backed off", remote.applyCalls["req-1"])
	}
}

func TestSyncPending_RetryCeilingExhausts(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.applyErrs["req-1"] = errors.New("connection reset")
	e, q, db := newTestEngine(t, remote, true)

	id := enqueueRequirement(t, q, "req-1")

	for i := 0; i < 10; i++ {
		// Collapse the backoff so each pass sees the item as due.
		if i > 0 {
			item, _ := db.GetQueueItem(ctx, id)
			if err := db.MarkFailed(ctx, id, item.RetryCount, time.Now().UTC().Add(-time.Second), item.LastError); err != nil {
				t.Fatalf("MarkFailed() error: %v", err)
			}
		}
		if err := e.SyncPending(ctx); err != nil {
			t.Fatalf("SyncPending() pass %d error: %v", i, err)
		}
	}

	if got := remote.applyCalls["req-1"]; got != 5 {
		t.Errorf("apply calls = %d, want 5 (retry ceiling)", got)
	}
	item, _ := db.GetQueueItem(ctx, id)
	if item.Status != domain.QueueFailed {
		t.Errorf("status = %q, want %q", item.Status, domain.QueueFailed)
	}
}

func TestSyncPending_ConflictForcesLocal(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.applyErrs["req-1"] = store.ErrConflict
	e, q, db := newTestEngine(t, remote, true)
	events := e.notifier.Subscribe()

	id := enqueueRequirement(t, q, "req-1")

	if err := e.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending() error: %v", err)
	}

	if len(remote.forced) != 1 || remote.forced[0] != "req-1" {
		t.Errorf("forced = %v, want [req-1]", remote.forced)
	}
	item, _ := db.GetQueueItem(ctx, id)
	if item.Status != domain.QueueSynced {
		t.Errorf("status = %q, want %q after forced apply", item.Status, domain.QueueSynced)
	}

	var sawConflicts bool
	for done := false; !done; {
		select {
		case ev := <-events:
			if c, ok := ev.(EventConflicts); ok {
				if c.Count != 1 {
					t.Errorf("conflict count = %d, want 1", c.Count)
				}
				sawConflicts = true
			}
			if _, ok := ev.(EventCompleted); ok {
				done = true
			}
		default:
			done = true
		}
	}
	if !sawConflicts {
		t.Error("no conflicts event published")
	}
}

func TestSyncPending_InvalidPayloadNotRetried(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	e, q, db := newTestEngine(t, remote, true)

	// Missing title fails validation at replay time.
	payload, _ := json.Marshal(domain.RequirementPayload{Description: "no title"})
	id, err := q.Enqueue(ctx, domain.OpCreate, domain.EntityRequirement, "req-bad", payload)
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	if err := e.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending() error: %v", err)
	}

	if len(remote.applyCalls) != 0 {
		t.Errorf("invalid payload reached the remote: %v", remote.applyCalls)
	}
	item, _ := db.GetQueueItem(ctx, id)
	if item.Status != domain.QueueFailed {
		t.Errorf("status = %q, want %q", item.Status, domain.QueueFailed)
	}

	// Parked at the ceiling: never due again.
	if err := e.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending() second pass error: %v", err)
	}
	item, _ = db.GetQueueItem(ctx, id)
	if item.RetryCount < 5 {
		t.Errorf("retry count = %d, want ceiling", item.RetryCount)
	}
}

func TestSyncPending_ReplaysStrandedSyncingItems(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()

	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New() error: %v", err)
	}
	defer db.Close()
	q := queue.New(db, zap.NewNop())
	e := New(q, remote, stubElection{leader: true}, NewNotifier(), zap.NewNop(), Options{
		// Treat any already-syncing item as stranded.
		SyncingStale: time.Nanosecond,
	})

	// A previous process marked the item syncing and crashed before
	// replaying it.
	id := enqueueRequirement(t, q, "req-1")
	if err := db.MarkSyncing(ctx, []string{id}); err != nil {
		t.Fatalf("MarkSyncing() error: %v", err)
	}

	if err := e.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending() error: %v", err)
	}

	if remote.applyCalls["req-1"] != 1 {
		t.Errorf("apply calls = %d, want 1 after reclaim", remote.applyCalls["req-1"])
	}
	item, err := db.GetQueueItem(ctx, id)
	if err != nil {
		t.Fatalf("GetQueueItem() error: %v", err)
	}
	if item.Status != domain.QueueSynced {
		t.Errorf("status = %q, want %q after reclaimed replay", item.Status, domain.QueueSynced)
	}
}

func TestSyncPending_DrainsWholeBatch(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	e, q, _ := newTestEngine(t, remote, true)

	for i := 0; i < 3; i++ {
		enqueueRequirement(t, q, "req-ordered")
	}

	if err := e.SyncPending(ctx); err != nil {
		t.Fatalf("SyncPending() error: %v", err)
	}
	if got := remote.applyCalls["req-ordered"]; got != 3 {
		t.Errorf("apply calls = %d, want 3", got)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{6, 32 * time.Minute},
		{7, time.Hour},
		{20, time.Hour},
	}
	for _, tt := range tests {
		if got := Backoff(tt.retries); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.retries, got, tt.want)
		}
	}
}
