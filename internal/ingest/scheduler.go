package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hireloop/mailsync/internal/lock"
	"github.com/hireloop/mailsync/internal/store"
)

const lockKeyPrefix = "ingest:lock:"

// lockMargin pads the bucket lock TTL beyond the tick interval so a slow
// tick finishes before its lock can expire under a crashed-holder recovery.
const lockMargin = 30 * time.Second

// rescanInterval is how often the scheduler looks for new frequency buckets.
const rescanInterval = time.Minute

// Scheduler ticks every mailbox at its configured frequency. Mailboxes are
// grouped into frequency buckets; each deployed instance races for a
// per-bucket Redis lock every interval, so exactly one instance runs a
// bucket's ticks even with several replicas.
type Scheduler struct {
	driver   *Driver
	remote   store.Remote
	locker   *lock.Locker
	logger   *zap.Logger
	holderID string

	mu      sync.Mutex
	buckets map[time.Duration]context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler over the driver and lock.
func NewScheduler(driver *Driver, remote store.Remote, locker *lock.Locker, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		driver:   driver,
		remote:   remote,
		locker:   locker,
		logger:   logger,
		holderID: uuid.NewString(),
		buckets:  map[time.Duration]context.CancelFunc{},
	}
}

// Run starts a ticker per frequency bucket and rescans for new buckets until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.rescan(ctx)

	ticker := time.NewTicker(rescanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.rescan(ctx)
		}
	}
}

// rescan starts a bucket loop for every frequency that gained mailboxes
// since the last scan. Buckets are never stopped: an empty bucket's tick is
// a no-op and frequencies rarely disappear.
func (s *Scheduler) rescan(ctx context.Context) {
	freqs, err := s.remote.Frequencies(ctx)
	if err != nil {
		s.logger.Warn("failed to list sync frequencies", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range freqs {
		if f <= 0 {
			continue
		}
		if _, ok := s.buckets[f]; ok {
			continue
		}
		bctx, cancel := context.WithCancel(ctx)
		s.buckets[f] = cancel
		s.wg.Add(1)
		go s.runBucket(bctx, f)
		s.logger.Info("scheduling frequency bucket", zap.Duration("frequency", f))
	}
}

func (s *Scheduler) runBucket(ctx context.Context, freq time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(freq)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickBucket(ctx, freq)
		}
	}
}

// tickBucket runs every mailbox in the bucket while holding the bucket lock.
// Losing the race means another instance is handling this interval; skip.
// A nil locker (single-instance deployment without Redis) skips the race.
func (s *Scheduler) tickBucket(ctx context.Context, freq time.Duration) {
	if s.locker != nil {
		key := lockKeyPrefix + freq.String()
		ok, err := s.locker.Acquire(ctx, key, s.holderID, freq+lockMargin)
		if err != nil {
			s.logger.Warn("failed to acquire bucket lock",
				zap.String("key", key),
				zap.Error(err))
			return
		}
		if !ok {
			return
		}
		defer func() {
			// Fresh context: the bucket ctx may already be cancelled on
			// shutdown, and a skipped release lingers until TTL expiry.
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := s.locker.Release(releaseCtx, key, s.holderID); err != nil {
				s.logger.Warn("failed to release bucket lock",
					zap.String("key", key),
					zap.Error(err))
			}
		}()
	}

	mbs, err := s.remote.ListMailboxes(ctx, freq)
	if err != nil {
		s.logger.Warn("failed to list mailboxes",
			zap.Duration("frequency", freq),
			zap.Error(err))
		return
	}
	for _, mb := range mbs {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.driver.RunTick(ctx, mb.UserID); err != nil {
			// One bad mailbox must not starve the rest of the bucket.
			s.logger.Warn("ingestion tick failed",
				zap.String("user_id", mb.UserID),
				zap.Error(err))
		}
	}
}
