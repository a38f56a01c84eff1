package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hireloop/mailsync/internal/domain"
)

// MatchRecordExists reports whether any record exists for a message id.
// The ingestion driver uses it to skip already-processed messages when a
// tick replays a page after a crash.
func (s *Store) MatchRecordExists(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM match_records WHERE message_id = $1)`,
		messageID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check match record for message %s: %w", messageID, err)
	}
	return exists, nil
}

// CreateMatchRecord inserts a match record. Duplicate (message_id, recipient)
// pairs are silently dropped; the first record wins.
func (s *Store) CreateMatchRecord(ctx context.Context, rec *domain.MatchRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO match_records (id, requirement_id, recipient, confidence, status, message_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id, recipient) DO NOTHING`,
		rec.ID, rec.RequirementID, rec.Recipient, rec.Confidence, rec.Status, rec.MessageID,
	)
	if err != nil {
		return fmt.Errorf("failed to create match record for message %s: %w", rec.MessageID, err)
	}
	return nil
}
