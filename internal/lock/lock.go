// Package lock provides the Redis mutual-exclusion primitive that keeps a
// scheduled batch from running on more than one deployed instance at a time.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while we still own it, so a lock that
// expired and was re-acquired by another instance is never released from here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Locker acquires and releases TTL-bounded locks in Redis.
type Locker struct {
	rdb *redis.Client
}

// New creates a Locker over an existing Redis client. The client's lifecycle
// (opened at process start, closed at shutdown) belongs to the caller.
func New(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// Acquire takes the lock with SET NX. It returns false without error when
// another holder owns it. The TTL must cover a full tick plus margin; expiry
// is what recovers locks from crashed holders.
func (l *Locker) Acquire(ctx context.Context, key, holderID string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, holderID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Release drops the lock if holderID still owns it.
func (l *Locker) Release(ctx context.Context, key, holderID string) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{key}, holderID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}
