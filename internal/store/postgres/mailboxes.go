package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/store"
)

// GetMailbox returns a user's mailbox settings.
func (s *Store) GetMailbox(ctx context.Context, userID string) (*domain.Mailbox, error) {
	var mb domain.Mailbox
	var freqSec int64
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, email, refresh_token, tier, frequency_sec, created_at
		FROM mailboxes WHERE user_id = $1`, userID,
	).Scan(&mb.UserID, &mb.Email, &mb.RefreshToken, &mb.Tier, &freqSec, &mb.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("mailbox for user %s: %w", userID, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox for %s: %w", userID, err)
	}
	mb.Frequency = time.Duration(freqSec) * time.Second
	return &mb, nil
}

// ListMailboxes returns all mailboxes in a sync-frequency bucket.
func (s *Store) ListMailboxes(ctx context.Context, frequency time.Duration) ([]domain.Mailbox, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, email, refresh_token, tier, frequency_sec, created_at
		FROM mailboxes WHERE frequency_sec = $1
		ORDER BY user_id`, int64(frequency/time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	defer rows.Close()

	var mbs []domain.Mailbox
	for rows.Next() {
		var mb domain.Mailbox
		var freqSec int64
		if err := rows.Scan(&mb.UserID, &mb.Email, &mb.RefreshToken, &mb.Tier, &freqSec, &mb.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mailbox: %w", err)
		}
		mb.Frequency = time.Duration(freqSec) * time.Second
		mbs = append(mbs, mb)
	}
	return mbs, rows.Err()
}

// Frequencies returns the distinct sync-frequency buckets in use.
func (s *Store) Frequencies(ctx context.Context) ([]time.Duration, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT frequency_sec FROM mailboxes ORDER BY frequency_sec`)
	if err != nil {
		return nil, fmt.Errorf("failed to query frequencies: %w", err)
	}
	defer rows.Close()

	var freqs []time.Duration
	for rows.Next() {
		var sec int64
		if err := rows.Scan(&sec); err != nil {
			return nil, fmt.Errorf("failed to scan frequency: %w", err)
		}
		freqs = append(freqs, time.Duration(sec)*time.Second)
	}
	return freqs, rows.Err()
}

// UpsertMailbox registers or updates a user's mailbox.
func (s *Store) UpsertMailbox(ctx context.Context, mb *domain.Mailbox) error {
	if mb.Frequency <= 0 {
		mb.Frequency = 15 * time.Minute
	}
	if mb.Tier == "" {
		mb.Tier = domain.TierMedium
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mailboxes (user_id, email, refresh_token, tier, frequency_sec)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			email         = excluded.email,
			refresh_token = excluded.refresh_token,
			tier          = excluded.tier,
			frequency_sec = excluded.frequency_sec`,
		mb.UserID, mb.Email, mb.RefreshToken, mb.Tier, int64(mb.Frequency/time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert mailbox for %s: %w", mb.UserID, err)
	}
	return nil
}
