package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Operation string

const (
	OpCreate Operation = "CREATE"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueSyncing QueueStatus = "syncing"
	QueueSynced  QueueStatus = "synced"
	QueueFailed  QueueStatus = "failed"
)

type EntityType string

const (
	EntityRequirement EntityType = "requirement"
	EntityCandidate   EntityType = "candidate"
	EntityInterview   EntityType = "interview"
)

// QueueItem is one pending local mutation awaiting replay against the
// central store. Items for the same entity id are replayed in enqueue order;
// Seq is the store-assigned enqueue sequence that defines that order.
type QueueItem struct {
	Seq         int64
	ID          string
	Operation   Operation
	EntityType  EntityType
	EntityID    string
	Payload     json.RawMessage
	Status      QueueStatus
	RetryCount  int
	NextAttempt time.Time
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ErrInvalidPayload marks a payload that can never replay successfully.
// Items failing with it are not retried.
var ErrInvalidPayload = errors.New("invalid payload")

// RequirementPayload is the queue payload for requirement mutations.
type RequirementPayload struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      RequirementStatus `json:"status"`
}

func (p RequirementPayload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: requirement title is required", ErrInvalidPayload)
	}
	switch p.Status {
	case RequirementOpen, RequirementClosed, "":
		return nil
	}
	return fmt.Errorf("%w: unknown requirement status %q", ErrInvalidPayload, p.Status)
}

// CandidatePayload is the queue payload for candidate mutations.
type CandidatePayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

func (p CandidatePayload) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: candidate name is required", ErrInvalidPayload)
	}
	return nil
}

// InterviewPayload is the queue payload for interview mutations.
type InterviewPayload struct {
	RequirementID string    `json:"requirement_id"`
	CandidateID   string    `json:"candidate_id"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	Notes         string    `json:"notes,omitempty"`
}

func (p InterviewPayload) Validate() error {
	if p.RequirementID == "" || p.CandidateID == "" {
		return fmt.Errorf("%w: interview needs requirement_id and candidate_id", ErrInvalidPayload)
	}
	return nil
}

// DecodePayload parses and validates a queue payload for its entity type.
// A DELETE carries no payload, so raw may be empty in that case.
func DecodePayload(et EntityType, op Operation, raw json.RawMessage) (any, error) {
	if op == OpDelete {
		return nil, nil
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload for %s %s", ErrInvalidPayload, op, et)
	}
	switch et {
	case EntityRequirement:
		var p RequirementPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p, p.Validate()
	case EntityCandidate:
		var p CandidatePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p, p.Validate()
	case EntityInterview:
		var p InterviewPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return p, p.Validate()
	}
	return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidPayload, et)
}
