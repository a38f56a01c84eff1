package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/hireloop/mailsync/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertItem(t *testing.T, db *DB, item domain.QueueItem) domain.QueueItem {
	t.Helper()
	if item.Status == "" {
		item.Status = domain.QueuePending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	if err := db.InsertQueueItem(context.Background(), &item); err != nil {
		t.Fatalf("InsertQueueItem() error: %v", err)
	}
	return item
}

func TestNew_CreatesTables(t *testing.T) {
	db := newTestDB(t)

	rows, err := db.db.Query("SELECT name FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		t.Fatalf("query sqlite_master error: %v", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan error: %v", err)
		}
		tables = append(tables, name)
	}

	for _, exp := range []string{"queue_items", "leader_lease"} {
		found := false
		for _, tbl := range tables {
			if tbl == exp {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected table %q not found in %v", exp, tables)
		}
	}
}

func TestQueueItem_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	item := insertItem(t, db, domain.QueueItem{
		ID:         "q1",
		Operation:  domain.OpCreate,
		EntityType: domain.EntityCandidate,
		EntityID:   "c1",
		Payload:    []byte(`{"name":"Jane"}`),
	})

	got, err := db.GetQueueItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetQueueItem() error: %v", err)
	}
	if got.Operation != domain.OpCreate || got.EntityType != domain.EntityCandidate {
		t.Errorf("round trip mangled item: %+v", got)
	}
	if string(got.Payload) != `{"name":"Jane"}` {
		t.Errorf("payload = %s", got.Payload)
	}
	if got.Status != domain.QueuePending {
		t.Errorf("status = %s, want pending", got.Status)
	}
}

func TestDueQueueItems(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insertItem(t, db, domain.QueueItem{ID: "due-pending", Operation: domain.OpCreate,
		EntityType: domain.EntityCandidate, EntityID: "c1", CreatedAt: now.Add(-3 * time.Minute)})
	insertItem(t, db, domain.QueueItem{ID: "due-failed", Operation: domain.OpUpdate,
		EntityType: domain.EntityCandidate, EntityID: "c1", Status: domain.QueueFailed,
		RetryCount: 1, NextAttempt: now.Add(-time.Minute), CreatedAt: now.Add(-2 * time.Minute)})
	insertItem(t, db, domain.QueueItem{ID: "backoff-future", Operation: domain.OpUpdate,
		EntityType: domain.EntityCandidate, EntityID: "c2", Status: domain.QueueFailed,
		RetryCount: 1, NextAttempt: now.Add(time.Hour), CreatedAt: now.Add(-time.Minute)})
	insertItem(t, db, domain.QueueItem{ID: "exhausted", Operation: domain.OpDelete,
		EntityType: domain.EntityCandidate, EntityID: "c3", Status: domain.QueueFailed,
		RetryCount: 5, CreatedAt: now.Add(-time.Minute)})
	insertItem(t, db, domain.QueueItem{ID: "done", Operation: domain.OpCreate,
		EntityType: domain.EntityCandidate, EntityID: "c4", Status: domain.QueueSynced,
		CreatedAt: now.Add(-time.Minute)})

	due, err := db.DueQueueItems(ctx, now, 5, 10)
	if err != nil {
		t.Fatalf("DueQueueItems() error: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("got %d due items, want 2: %+v", len(due), due)
	}
	// Oldest first preserves per-entity operation order.
	if due[0].ID != "due-pending" || due[1].ID != "due-failed" {
		t.Errorf("due order = [%s %s], want [due-pending due-failed]", due[0].ID, due[1].ID)
	}
}

func TestDueQueueItems_FutureBackoffExcluded(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()
	insertItem(t, db, domain.QueueItem{ID: "later", Operation: domain.OpCreate,
		EntityType: domain.EntityCandidate, EntityID: "c1", Status: domain.QueueFailed,
		RetryCount: 1, NextAttempt: now.Add(time.Minute), CreatedAt: now})

	due, err := db.DueQueueItems(context.Background(), now, 5, 10)
	if err != nil {
		t.Fatalf("DueQueueItems() error: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("item with future next_attempt must not be due, got %+v", due)
	}
}

func TestDueQueueItems_SameSecondKeepsEnqueueOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	// Identical created_at: the create-then-update pattern lands within one
	// clock tick, so the timestamp alone cannot order the pair.
	now := time.Now().UTC().Truncate(time.Second)

	insertItem(t, db, domain.QueueItem{ID: "first-create", Operation: domain.OpCreate,
		EntityType: domain.EntityCandidate, EntityID: "c1", CreatedAt: now})
	insertItem(t, db, domain.QueueItem{ID: "then-update", Operation: domain.OpUpdate,
		EntityType: domain.EntityCandidate, EntityID: "c1", CreatedAt: now})

	due, err := db.DueQueueItems(ctx, now.Add(time.Second), 5, 10)
	if err != nil {
		t.Fatalf("DueQueueItems() error: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("got %d due items, want 2", len(due))
	}
	if due[0].ID != "first-create" || due[1].ID != "then-update" {
		t.Errorf("due order = [%s %s], want enqueue order", due[0].ID, due[1].ID)
	}
	if due[0].Seq >= due[1].Seq {
		t.Errorf("seq %d !< %d, sequence must follow insertion", due[0].Seq, due[1].Seq)
	}
}

func TestReclaimStaleSyncing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	item := insertItem(t, db, domain.QueueItem{ID: "stranded", Operation: domain.OpCreate,
		EntityType: domain.EntityRequirement, EntityID: "r1", Payload: []byte(`{"title":"x"}`)})
	if err := db.MarkSyncing(ctx, []string{item.ID}); err != nil {
		t.Fatalf("MarkSyncing() error: %v", err)
	}

	// A fresh syncing item is left alone.
	n, err := db.ReclaimStaleSyncing(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleSyncing() error: %v", err)
	}
	if n != 0 {
		t.Fatalf("reclaimed = %d, want 0 for a fresh item", n)
	}

	// Past the staleness threshold it goes back to pending.
	n, err = db.ReclaimStaleSyncing(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleSyncing() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("reclaimed = %d, want 1", n)
	}
	got, err := db.GetQueueItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetQueueItem() error: %v", err)
	}
	if got.Status != domain.QueuePending {
		t.Errorf("status = %s, want pending after reclaim", got.Status)
	}

	// Only syncing items are touched.
	if err := db.MarkSynced(ctx, item.ID); err != nil {
		t.Fatalf("MarkSynced() error: %v", err)
	}
	n, err = db.ReclaimStaleSyncing(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStaleSyncing() error: %v", err)
	}
	if n != 0 {
		t.Errorf("reclaimed = %d, want 0 for a synced item", n)
	}
}

func TestQueueTransitions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	item := insertItem(t, db, domain.QueueItem{ID: "q1", Operation: domain.OpCreate,
		EntityType: domain.EntityRequirement, EntityID: "r1", Payload: []byte(`{"title":"x"}`)})

	if err := db.MarkSyncing(ctx, []string{item.ID}); err != nil {
		t.Fatalf("MarkSyncing() error: %v", err)
	}
	got, _ := db.GetQueueItem(ctx, item.ID)
	if got.Status != domain.QueueSyncing {
		t.Errorf("status = %s, want syncing", got.Status)
	}

	if err := db.MarkFailed(ctx, item.ID, 1, now.Add(time.Minute), "boom"); err != nil {
		t.Fatalf("MarkFailed() error: %v", err)
	}
	got, _ = db.GetQueueItem(ctx, item.ID)
	if got.Status != domain.QueueFailed || got.RetryCount != 1 || got.LastError != "boom" {
		t.Errorf("after MarkFailed: %+v", got)
	}
	if got.NextAttempt.IsZero() {
		t.Error("next_attempt not persisted")
	}

	if err := db.ResetQueueItem(ctx, item.ID); err != nil {
		t.Fatalf("ResetQueueItem() error: %v", err)
	}
	got, _ = db.GetQueueItem(ctx, item.ID)
	if got.Status != domain.QueuePending || got.RetryCount != 0 || got.LastError != "" {
		t.Errorf("after reset: %+v", got)
	}

	if err := db.MarkSynced(ctx, item.ID); err != nil {
		t.Fatalf("MarkSynced() error: %v", err)
	}
	got, _ = db.GetQueueItem(ctx, item.ID)
	if got.Status != domain.QueueSynced {
		t.Errorf("status = %s, want synced", got.Status)
	}
}

func TestCountAndPrune(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	insertItem(t, db, domain.QueueItem{ID: "old-synced", Operation: domain.OpCreate,
		EntityType: domain.EntityCandidate, EntityID: "c1", Status: domain.QueueSynced,
		CreatedAt: now.Add(-48 * time.Hour)})
	insertItem(t, db, domain.QueueItem{ID: "new-synced", Operation: domain.OpCreate,
		EntityType: domain.EntityCandidate, EntityID: "c2", Status: domain.QueueSynced, CreatedAt: now})
	insertItem(t, db, domain.QueueItem{ID: "pending", Operation: domain.OpCreate,
		EntityType: domain.EntityCandidate, EntityID: "c3", CreatedAt: now.Add(-72 * time.Hour)})

	counts, err := db.CountQueueItems(ctx)
	if err != nil {
		t.Fatalf("CountQueueItems() error: %v", err)
	}
	if counts[domain.QueueSynced] != 2 || counts[domain.QueuePending] != 1 {
		t.Errorf("counts = %v", counts)
	}

	pruned, err := db.PruneSynced(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneSynced() error: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1 (only old synced items)", pruned)
	}
	if _, err := db.GetQueueItem(ctx, "pending"); err != nil {
		t.Errorf("prune must never touch pending items: %v", err)
	}
}

func TestEnforceQueueCap(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := 0; i < 5; i++ {
		status := domain.QueueSynced
		if i == 4 {
			status = domain.QueuePending
		}
		insertItem(t, db, domain.QueueItem{
			ID: string(rune('a' + i)), Operation: domain.OpCreate,
			EntityType: domain.EntityCandidate, EntityID: "c",
			Status: status, CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
	}

	dropped, err := db.EnforceQueueCap(ctx, 3)
	if err != nil {
		t.Fatalf("EnforceQueueCap() error: %v", err)
	}
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	if _, err := db.GetQueueItem(ctx, "e"); err != nil {
		t.Errorf("cap must never drop pending items: %v", err)
	}
}

func TestLease_ClaimRenewRelease(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()
	ttl := 10 * time.Second

	ok, err := db.ClaimLease(ctx, "a", ttl, now)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v, want success", ok, err)
	}

	// Fresh lease blocks another contender.
	ok, err = db.ClaimLease(ctx, "b", ttl, now.Add(time.Second))
	if err != nil {
		t.Fatalf("contender claim error: %v", err)
	}
	if ok {
		t.Error("contender must not steal a fresh lease")
	}

	// Holder renews its own lease.
	ok, err = db.ClaimLease(ctx, "a", ttl, now.Add(5*time.Second))
	if err != nil || !ok {
		t.Fatalf("renewal = %v, %v, want success", ok, err)
	}

	// Stale lease is taken over.
	ok, err = db.ClaimLease(ctx, "b", ttl, now.Add(20*time.Second))
	if err != nil || !ok {
		t.Fatalf("stale takeover = %v, %v, want success", ok, err)
	}

	// Release lets a third contender claim immediately.
	if err := db.ReleaseLease(ctx, "b"); err != nil {
		t.Fatalf("ReleaseLease() error: %v", err)
	}
	ok, err = db.ClaimLease(ctx, "c", ttl, now.Add(21*time.Second))
	if err != nil || !ok {
		t.Fatalf("claim after release = %v, %v, want success", ok, err)
	}
}

func TestReleaseLease_NotOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := db.ClaimLease(ctx, "a", 10*time.Second, now); err != nil {
		t.Fatal(err)
	}
	if err := db.ReleaseLease(ctx, "not-the-owner"); err != nil {
		t.Fatalf("ReleaseLease() error: %v", err)
	}
	// Lease must still be held by "a".
	ok, err := db.ClaimLease(ctx, "b", 10*time.Second, now.Add(time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("release by non-owner must not drop the lease")
	}
}
