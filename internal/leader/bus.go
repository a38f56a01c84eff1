// Package leader elects a single local context to own queue draining and
// maintenance. Contexts coordinate by message passing over a broadcast bus;
// when no bus is available, a polled shared lease record provides the same
// claim/heartbeat/expiry semantics.
package leader

import (
	"context"
	"sync"
)

// MessageType enumerates the election protocol messages.
type MessageType string

const (
	// MsgQuery asks "who is leader". The current leader answers with a
	// heartbeat.
	MsgQuery MessageType = "query"
	// MsgHeartbeat asserts leadership. It doubles as the query response for
	// late joiners.
	MsgHeartbeat MessageType = "heartbeat"
	// MsgRelease announces a graceful abdication so a follower can claim
	// immediately instead of waiting out the TTL.
	MsgRelease MessageType = "release"
)

// Message is one election protocol frame.
type Message struct {
	Type     MessageType `json:"type"`
	HolderID string      `json:"holder_id"`
}

// Bus is the broadcast channel connecting all local contexts. Publish is
// fire-and-forget; subscribers receive every message including their own.
type Bus interface {
	Publish(ctx context.Context, msg Message) error
	Subscribe(ctx context.Context) (<-chan Message, error)
}

// MemoryBus is an in-process Bus for tests and single-process setups.
type MemoryBus struct {
	mu   sync.Mutex
	subs []chan Message
}

// NewMemoryBus returns an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

// Publish fans the message out to all subscribers without blocking: a
// subscriber that has fallen behind misses the frame, mirroring the lossy
// semantics of real broadcast channels.
func (b *MemoryBus) Publish(_ context.Context, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers a new listener.
func (b *MemoryBus) Subscribe(_ context.Context) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Message, 16)
	b.subs = append(b.subs, ch)
	return ch, nil
}
