package leader

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Election is the reactive leadership flag contexts consult before invoking
// drain or maintenance.
type Election interface {
	IsLeader() bool
}

const (
	// DefaultQueryWindow is how long a starting context waits for a sitting
	// leader to answer before claiming leadership itself.
	DefaultQueryWindow = 250 * time.Millisecond
	// DefaultHeartbeat is the leader's heartbeat interval.
	DefaultHeartbeat = 5 * time.Second
	// DefaultTTL is how long followers tolerate silence before takeover.
	DefaultTTL = 10 * time.Second
)

// Elector runs the broadcast-bus election protocol: query on start, follow a
// responding leader, otherwise claim and heartbeat. Followers take over on a
// release notice or heartbeat expiry.
type Elector struct {
	id          string
	bus         Bus
	logger      *zap.Logger
	queryWindow time.Duration
	heartbeat   time.Duration
	ttl         time.Duration

	isLeader atomic.Bool
}

// NewElector creates an elector with a random holder id and default timing.
func NewElector(bus Bus, logger *zap.Logger) *Elector {
	return &Elector{
		id:          uuid.NewString(),
		bus:         bus,
		logger:      logger,
		queryWindow: DefaultQueryWindow,
		heartbeat:   DefaultHeartbeat,
		ttl:         DefaultTTL,
	}
}

// ID returns the elector's holder id.
func (e *Elector) ID() string { return e.id }

// IsLeader reports whether this context currently holds leadership.
func (e *Elector) IsLeader() bool { return e.isLeader.Load() }

// Run participates in the election until ctx is cancelled. On graceful exit
// a leader broadcasts a release so a follower claims immediately.
func (e *Elector) Run(ctx context.Context) error {
	msgs, err := e.bus.Subscribe(ctx)
	if err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.electionRound(ctx, msgs) {
			e.lead(ctx, msgs)
		} else {
			e.follow(ctx, msgs)
		}
	}
}

// electionRound broadcasts a query and waits the query window for a sitting
// leader's heartbeat. It returns true when this context should claim.
func (e *Elector) electionRound(ctx context.Context, msgs <-chan Message) bool {
	if err := e.bus.Publish(ctx, Message{Type: MsgQuery, HolderID: e.id}); err != nil {
		e.logger.Warn("failed to publish leader query", zap.Error(err))
	}

	window := time.NewTimer(e.queryWindow)
	defer window.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-window.C:
			return true
		case msg, ok := <-msgs:
			if !ok {
				return false
			}
			if msg.HolderID != e.id && msg.Type == MsgHeartbeat {
				return false
			}
		}
	}
}

// lead heartbeats until ctx is cancelled or a competing leader with a lower
// id appears. Queries are answered with an immediate heartbeat, which doubles
// as the response for late joiners.
func (e *Elector) lead(ctx context.Context, msgs <-chan Message) {
	e.isLeader.Store(true)
	e.logger.Info("claimed leadership", zap.String("holder_id", e.id))
	defer e.isLeader.Store(false)

	e.publishHeartbeat(ctx)
	ticker := time.NewTicker(e.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: let a follower claim without waiting out
			// the TTL. Use a fresh context since ours is already cancelled.
			releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			if err := e.bus.Publish(releaseCtx, Message{Type: MsgRelease, HolderID: e.id}); err != nil {
				e.logger.Warn("failed to publish leader release", zap.Error(err))
			}
			cancel()
			return
		case <-ticker.C:
			e.publishHeartbeat(ctx)
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if msg.HolderID == e.id {
				continue
			}
			switch msg.Type {
			case MsgQuery:
				e.publishHeartbeat(ctx)
			case MsgHeartbeat:
				// Split brain after a partition heals: the lower id wins so
				// both sides converge within one heartbeat.
				if msg.HolderID < e.id {
					e.logger.Info("yielding leadership",
						zap.String("holder_id", e.id),
						zap.String("to", msg.HolderID))
					return
				}
			}
		}
	}
}

// follow watches heartbeats, returning when the leader releases or goes
// silent past the TTL so the caller can run a fresh election round.
func (e *Elector) follow(ctx context.Context, msgs <-chan Message) {
	expiry := time.NewTimer(e.ttl)
	defer expiry.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-expiry.C:
			e.logger.Info("leader heartbeat expired", zap.String("holder_id", e.id))
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if msg.HolderID == e.id {
				continue
			}
			switch msg.Type {
			case MsgHeartbeat:
				if !expiry.Stop() {
					<-expiry.C
				}
				expiry.Reset(e.ttl)
			case MsgRelease:
				return
			}
		}
	}
}

func (e *Elector) publishHeartbeat(ctx context.Context) {
	if err := e.bus.Publish(ctx, Message{Type: MsgHeartbeat, HolderID: e.id}); err != nil {
		e.logger.Warn("failed to publish heartbeat", zap.Error(err))
	}
}
