package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
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

type stubRemote struct {
	store.Remote
	runs []domain.SyncRun
}

func (s *stubRemote) RecentRuns(_ context.Context, _ string, _ int) ([]domain.SyncRun, error) {
	return s.runs, nil
}

func newTestServer(t *testing.T, remote store.Remote) (*Server, *queue.Queue) {
	t.Helper()
	db, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("sqlite.New() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	q := queue.New(db, zap.NewNop())
	return New("127.0.0.1:0", q, remote, stubElection{leader: true}, zap.NewNop()), q
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t, &stubRemote{})
	ts := httptest.NewServer(s.http.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStatus(t *testing.T) {
	remote := &stubRemote{runs: []domain.SyncRun{{
		ID:        "run-1",
		UserID:    "user-1",
		Processed: 4,
		Matched:   2,
		StartedAt: time.Now().UTC(),
		Duration:  1200 * time.Millisecond,
	}}}
	s, q := newTestServer(t, remote)
	ts := httptest.NewServer(s.http.Handler)
	defer ts.Close()

	payload, _ := json.Marshal(domain.RequirementPayload{Title: "Backend Engineer"})
	if _, err := q.Enqueue(context.Background(), domain.OpCreate, domain.EntityRequirement, "req-1", payload); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	resp, err := http.Get(ts.URL + "/status?user=user-1")
	if err != nil {
		t.Fatalf("GET /status error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if !body.Leader {
		t.Error("leader = false, want true")
	}
	if body.Queue[domain.QueuePending] != 1 {
		t.Errorf("pending = %d, want 1", body.Queue[domain.QueuePending])
	}
	if len(body.Runs) != 1 || body.Runs[0].Matched != 2 {
		t.Errorf("runs = %+v, want the seeded run", body.Runs)
	}
}
