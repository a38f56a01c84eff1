package domain

import "time"

type RequirementStatus string

const (
	RequirementOpen   RequirementStatus = "open"
	RequirementClosed RequirementStatus = "closed"
)

// Requirement is an open job requirement, read-only to this process.
// It is only used as matching input; the CRM owns its lifecycle.
type Requirement struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Status      RequirementStatus
	UpdatedAt   time.Time
}
