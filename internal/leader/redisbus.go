package leader

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const channel = "mailsync:leader"

// RedisBus broadcasts election messages over a Redis pub/sub channel so
// separate processes on one workstation (or one deployment) share leadership.
type RedisBus struct {
	rdb *redis.Client
}

// NewRedisBus wraps an existing Redis client.
func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

// Publish broadcasts one election frame.
func (b *RedisBus) Publish(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal election message: %w", err)
	}
	if err := b.rdb.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish election message: %w", err)
	}
	return nil
}

// Subscribe listens for election frames until ctx is cancelled. Frames that
// fail to decode are dropped; the protocol tolerates lost messages.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Message, error) {
	sub := b.rdb.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to election channel: %w", err)
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-sub.Channel():
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					continue
				}
				select {
				case out <- msg:
				default:
				}
			}
		}
	}()
	return out, nil
}
