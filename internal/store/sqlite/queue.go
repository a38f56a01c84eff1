package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/store"
)

// timeFormat pads the fraction to a fixed width so the lexicographic
// comparisons in SQL match chronological order. All stored times are UTC.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

const queueColumns = `seq, id, operation, entity_type, entity_id, payload,
	status, retry_count, next_attempt, last_error, created_at, updated_at`

// InsertQueueItem appends a mutation to the local queue log. The store
// assigns the enqueue sequence.
func (s *DB) InsertQueueItem(ctx context.Context, item *domain.QueueItem) error {
	var next any
	if !item.NextAttempt.IsZero() {
		next = item.NextAttempt.UTC().Format(timeFormat)
	}
	created := item.CreatedAt.UTC().Format(timeFormat)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queue_items (id, operation, entity_type, entity_id, payload,
			status, retry_count, next_attempt, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Operation, item.EntityType, item.EntityID, string(item.Payload),
		item.Status, item.RetryCount, next, item.LastError, created, created,
	)
	if err != nil {
		return fmt.Errorf("failed to insert queue item: %w", err)
	}
	return nil
}

// GetQueueItem returns one item by id.
func (s *DB) GetQueueItem(ctx context.Context, id string) (*domain.QueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+queueColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanQueueItem(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("queue item %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue item %s: %w", id, err)
	}
	return item, nil
}

// ListQueueItems returns items newest first, optionally filtered by status.
func (s *DB) ListQueueItems(ctx context.Context, status domain.QueueStatus, limit int) ([]domain.QueueItem, error) {
	query := `SELECT ` + queueColumns + ` FROM queue_items`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryQueueItems(ctx, query, args...)
}

// DueQueueItems returns replayable items in enqueue order: pending items,
// plus failed items that still have retries and whose backoff has elapsed.
func (s *DB) DueQueueItems(ctx context.Context, now time.Time, retryCeiling, limit int) ([]domain.QueueItem, error) {
	query := `
		SELECT ` + queueColumns + ` FROM queue_items
		WHERE (status = 'pending' OR (status = 'failed' AND retry_count < ?))
		  AND (next_attempt IS NULL OR next_attempt <= ?)
		ORDER BY seq ASC
		LIMIT ?`
	return s.queryQueueItems(ctx, query, retryCeiling, now.UTC().Format(timeFormat), limit)
}

// MarkSyncing transitions the given items to syncing in one statement.
func (s *DB) MarkSyncing(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := []any{time.Now().UTC().Format(timeFormat)}
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = 'syncing', updated_at = ? WHERE id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("failed to mark items syncing: %w", err)
	}
	return nil
}

// MarkSynced transitions an item to synced and clears its error state.
func (s *DB) MarkSynced(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = 'synced', last_error = '', next_attempt = NULL, updated_at = ?
		WHERE id = ?`, time.Now().UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("failed to mark item %s synced: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed attempt with its backoff deadline.
func (s *DB) MarkFailed(ctx context.Context, id string, retryCount int, nextAttempt time.Time, lastError string) error {
	var next any
	if !nextAttempt.IsZero() {
		next = nextAttempt.UTC().Format(timeFormat)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = 'failed', retry_count = ?, next_attempt = ?, last_error = ?, updated_at = ?
		WHERE id = ?`, retryCount, next, lastError, time.Now().UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("failed to mark item %s failed: %w", id, err)
	}
	return nil
}

// ResetQueueItem puts an item back to pending for an immediate user-requested
// retry, clearing its backoff.
func (s *DB) ResetQueueItem(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = 'pending', retry_count = 0, next_attempt = NULL, last_error = '', updated_at = ?
		WHERE id = ?`, time.Now().UTC().Format(timeFormat), id)
	if err != nil {
		return fmt.Errorf("failed to reset queue item %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("queue item %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ReclaimStaleSyncing resets syncing items whose last transition is older
// than olderThan back to pending. A crash between marking a batch syncing
// and replaying it would otherwise strand those items forever.
func (s *DB) ReclaimStaleSyncing(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE queue_items
		SET status = 'pending', updated_at = ?
		WHERE status = 'syncing' AND updated_at < ?`,
		time.Now().UTC().Format(timeFormat), olderThan.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale syncing items: %w", err)
	}
	return res.RowsAffected()
}

// CountQueueItems returns item counts grouped by status.
func (s *DB) CountQueueItems(ctx context.Context) (map[domain.QueueStatus]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count queue items: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.QueueStatus]int)
	for rows.Next() {
		var status domain.QueueStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// PruneSynced deletes synced items created before olderThan.
func (s *DB) PruneSynced(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_items WHERE status = 'synced' AND created_at < ?`,
		olderThan.UTC().Format(timeFormat))
	if err != nil {
		return 0, fmt.Errorf("failed to prune synced items: %w", err)
	}
	return res.RowsAffected()
}

// EnforceQueueCap keeps the table at or below max items, dropping the oldest
// synced items first. Pending and failed items are never dropped.
func (s *DB) EnforceQueueCap(ctx context.Context, max int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM queue_items
		WHERE id IN (
			SELECT id FROM queue_items WHERE status = 'synced'
			ORDER BY seq ASC
			LIMIT (SELECT MAX(COUNT(*) - ?, 0) FROM queue_items)
		)`, max)
	if err != nil {
		return 0, fmt.Errorf("failed to enforce queue cap: %w", err)
	}
	return res.RowsAffected()
}

func (s *DB) queryQueueItems(ctx context.Context, query string, args ...any) ([]domain.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue items: %w", err)
	}
	defer rows.Close()

	var items []domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanQueueItem(scan func(...any) error) (*domain.QueueItem, error) {
	var item domain.QueueItem
	var payload, lastError sql.NullString
	var next sql.NullString
	var created, updated string
	if err := scan(
		&item.Seq, &item.ID, &item.Operation, &item.EntityType, &item.EntityID, &payload,
		&item.Status, &item.RetryCount, &next, &lastError, &created, &updated,
	); err != nil {
		return nil, err
	}
	if payload.Valid && payload.String != "" {
		item.Payload = json.RawMessage(payload.String)
	}
	item.LastError = lastError.String
	if next.Valid && next.String != "" {
		t, err := time.Parse(timeFormat, next.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse next_attempt: %w", err)
		}
		item.NextAttempt = t
	}
	t, err := time.Parse(timeFormat, created)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	item.CreatedAt = t
	u, err := time.Parse(timeFormat, updated)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	item.UpdatedAt = u
	return &item, nil
}
