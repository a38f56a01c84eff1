package sqlite

import (
	"context"
	"fmt"
	"time"
)

// ClaimLease claims or renews the single leader-lease row. The claim succeeds
// when the row is absent, stale (no heartbeat within ttl), or already held by
// holderID. It returns whether holderID holds the lease afterwards.
func (s *DB) ClaimLease(ctx context.Context, holderID string, ttl time.Duration, now time.Time) (bool, error) {
	// timeFormat keeps the string comparison below chronological.
	stale := now.Add(-ttl).UTC().Format(timeFormat)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leader_lease (id, holder_id, heartbeat) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			holder_id = excluded.holder_id,
			heartbeat = excluded.heartbeat
		WHERE leader_lease.holder_id = excluded.holder_id
		   OR leader_lease.heartbeat < ?`,
		holderID, now.UTC().Format(timeFormat), stale,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lease claim result: %w", err)
	}
	return n > 0, nil
}

// ReleaseLease drops the lease if holderID still owns it, so another
// contender can claim without waiting for expiry.
func (s *DB) ReleaseLease(ctx context.Context, holderID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM leader_lease WHERE id = 1 AND holder_id = ?`, holderID)
	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}
	return nil
}
