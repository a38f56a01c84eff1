package domain

import "time"

// SyncCursor marks the last fully processed point in a user's mailbox feed.
// It is advanced only after a whole ingestion tick completes; a crash mid-tick
// reprocesses the same page, which is safe because MatchRecord creation is
// idempotent.
type SyncCursor struct {
	UserID        string
	LastMessageID string
	PageToken     string
	LastSyncAt    time.Time
}

// SyncRun records the outcome of one ingestion tick.
type SyncRun struct {
	ID        string
	UserID    string
	Processed int
	Matched   int
	Skipped   int
	StartedAt time.Time
	Duration  time.Duration
	Error     string
}

// Mailbox holds per-user ingestion settings and the Gmail refresh token the
// daemon exchanges for access tokens.
type Mailbox struct {
	UserID       string
	Email        string
	RefreshToken string
	Tier         ConfidenceTier
	Frequency    time.Duration // sync-frequency bucket
	CreatedAt    time.Time
}
