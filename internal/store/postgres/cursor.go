package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hireloop/mailsync/internal/domain"
)

// GetSyncCursor returns the resumption cursor for a user. A missing row
// yields an empty cursor, meaning ingestion starts from scratch.
func (s *Store) GetSyncCursor(ctx context.Context, userID string) (*domain.SyncCursor, error) {
	var c domain.SyncCursor
	var lastSync sql.NullTime
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, last_message_id, page_token, last_sync_at
		FROM sync_cursors WHERE user_id = $1`, userID,
	).Scan(&c.UserID, &c.LastMessageID, &c.PageToken, &lastSync)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.SyncCursor{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync cursor for %s: %w", userID, err)
	}
	if lastSync.Valid {
		c.LastSyncAt = lastSync.Time
	}
	return &c, nil
}

// CompleteTick persists a tick's run outcome and, when cursor is non-nil,
// advances the cursor — both in one transaction so a tick is either fully
// recorded or not at all.
func (s *Store) CompleteTick(ctx context.Context, cursor *domain.SyncCursor, run *domain.SyncRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO sync_runs (id, user_id, processed, matched, skipped, started_at, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.UserID, run.Processed, run.Matched, run.Skipped,
		run.StartedAt, run.Duration.Milliseconds(), run.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	if cursor != nil {
		_, err = tx.Exec(ctx, `
			INSERT INTO sync_cursors (user_id, last_message_id, page_token, last_sync_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE SET
				last_message_id = excluded.last_message_id,
				page_token      = excluded.page_token,
				last_sync_at    = excluded.last_sync_at`,
			cursor.UserID, cursor.LastMessageID, cursor.PageToken, cursor.LastSyncAt,
		)
		if err != nil {
			return fmt.Errorf("failed to advance sync cursor: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tick: %w", err)
	}
	return nil
}

// RecentRuns returns the latest run outcomes for a user, newest first.
func (s *Store) RecentRuns(ctx context.Context, userID string, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, processed, matched, skipped, started_at, duration_ms, error
		FROM sync_runs WHERE user_id = $1
		ORDER BY started_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.SyncRun
	for rows.Next() {
		var r domain.SyncRun
		var durationMS int64
		if err := rows.Scan(&r.ID, &r.UserID, &r.Processed, &r.Matched, &r.Skipped,
			&r.StartedAt, &durationMS, &r.Error); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
