// Package httpapi exposes the daemon's health and sync status over HTTP for
// the desktop app's status panel and for probes.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/leader"
	"github.com/hireloop/mailsync/internal/queue"
	"github.com/hireloop/mailsync/internal/store"
)

// Server serves /healthz and /status.
type Server struct {
	queue    *queue.Queue
	remote   store.Remote
	election leader.Election
	logger   *zap.Logger
	http     *http.Server
}

// New builds the server on addr.
func New(addr string, q *queue.Queue, remote store.Remote, election leader.Election, logger *zap.Logger) *Server {
	s := &Server{
		queue:    q,
		remote:   remote,
		election: election,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errC := make(chan error, 1)
	go func() {
		errC <- s.http.ListenAndServe()
	}()
	s.logger.Info("http api listening", zap.String("addr", s.http.Addr))

	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type statusResponse struct {
	Leader bool                       `json:"leader"`
	Queue  map[domain.QueueStatus]int `json:"queue"`
	Runs   []runView                  `json:"recent_runs,omitempty"`
}

type runView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Processed int       `json:"processed"`
	Matched   int       `json:"matched"`
	Skipped   int       `json:"skipped"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
	Error     string    `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := s.queue.Counts(ctx)
	if err != nil {
		s.logger.Error("failed to count queue items", zap.Error(err))
		http.Error(w, "failed to read queue", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		Leader: s.election.IsLeader(),
		Queue:  counts,
	}

	if userID := r.URL.Query().Get("user"); userID != "" {
		runs, err := s.remote.RecentRuns(ctx, userID, 10)
		if err != nil {
			s.logger.Error("failed to load recent runs", zap.Error(err))
			http.Error(w, "failed to read runs", http.StatusInternalServerError)
			return
		}
		for _, run := range runs {
			resp.Runs = append(resp.Runs, runView{
				ID:        run.ID,
				UserID:    run.UserID,
				Processed: run.Processed,
				Matched:   run.Matched,
				Skipped:   run.Skipped,
				StartedAt: run.StartedAt,
				Duration:  run.Duration.Round(time.Millisecond).String(),
				Error:     run.Error,
			})
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode status", zap.Error(err))
	}
}
