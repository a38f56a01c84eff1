package domain

import (
	"fmt"
	"time"
)

type MatchStatus string

const (
	MatchLinked              MatchStatus = "linked"
	MatchPendingConfirmation MatchStatus = "pending_confirmation"
)

// MatchRecord links an inbound message to a requirement for one recipient.
// (MessageID, Recipient) is the idempotency key: at most one record exists
// per message per recipient, no matter how often a page is reprocessed.
type MatchRecord struct {
	ID            string
	RequirementID string
	Recipient     string
	Confidence    int // 0..100
	Status        MatchStatus
	MessageID     string
	CreatedAt     time.Time
}

// ConfidenceTier is the user-chosen threshold above which matches are linked
// without confirmation.
type ConfidenceTier string

const (
	TierHigh   ConfidenceTier = "high"
	TierMedium ConfidenceTier = "medium"
	TierLow    ConfidenceTier = "low"
)

// Threshold returns the minimum score for auto-linking at this tier.
func (t ConfidenceTier) Threshold() int {
	switch t {
	case TierHigh:
		return 95
	case TierLow:
		return 50
	default:
		return 70
	}
}

// ParseTier validates a tier name, defaulting the empty string to medium.
func ParseTier(s string) (ConfidenceTier, error) {
	switch ConfidenceTier(s) {
	case TierHigh, TierMedium, TierLow:
		return ConfidenceTier(s), nil
	case "":
		return TierMedium, nil
	}
	return "", fmt.Errorf("unknown confidence tier %q (use high, medium, or low)", s)
}

// LinkFloor is the absolute minimum score below which no match is ever recorded.
const LinkFloor = 50
