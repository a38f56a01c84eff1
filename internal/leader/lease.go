package leader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LeaseStore is the slice of the local store the polled fallback needs.
type LeaseStore interface {
	ClaimLease(ctx context.Context, holderID string, ttl time.Duration, now time.Time) (bool, error)
	ReleaseLease(ctx context.Context, holderID string) error
}

// LeaseElector is the fallback election for environments without a broadcast
// bus. Every heartbeat interval it tries to claim or renew a single shared
// lease row; whoever holds the unexpired lease is the leader.
type LeaseElector struct {
	id        string
	store     LeaseStore
	logger    *zap.Logger
	heartbeat time.Duration
	ttl       time.Duration

	isLeader atomic.Bool
}

// NewLeaseElector creates a polled elector with default timing.
func NewLeaseElector(store LeaseStore, logger *zap.Logger) *LeaseElector {
	return &LeaseElector{
		id:        uuid.NewString(),
		store:     store,
		logger:    logger,
		heartbeat: DefaultHeartbeat,
		ttl:       DefaultTTL,
	}
}

// ID returns the elector's holder id.
func (e *LeaseElector) ID() string { return e.id }

// IsLeader reports whether this context holds the lease.
func (e *LeaseElector) IsLeader() bool { return e.isLeader.Load() }

// Run polls the lease until ctx is cancelled, releasing it on graceful exit
// if held.
func (e *LeaseElector) Run(ctx context.Context) error {
	e.poll(ctx)

	ticker := time.NewTicker(e.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if e.isLeader.Load() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				if err := e.store.ReleaseLease(releaseCtx, e.id); err != nil {
					e.logger.Warn("failed to release lease", zap.Error(err))
				}
				cancel()
				e.isLeader.Store(false)
			}
			return ctx.Err()
		case <-ticker.C:
			e.poll(ctx)
		}
	}
}

func (e *LeaseElector) poll(ctx context.Context) {
	ok, err := e.store.ClaimLease(ctx, e.id, e.ttl, time.Now())
	if err != nil {
		e.logger.Warn("failed to claim lease", zap.Error(err))
		return
	}
	if ok != e.isLeader.Load() {
		if ok {
			e.logger.Info("claimed lease", zap.String("holder_id", e.id))
		} else {
			e.logger.Info("lost lease", zap.String("holder_id", e.id))
		}
	}
	e.isLeader.Store(ok)
}
