package postgres

import (
	"context"
	"fmt"

	"github.com/hireloop/mailsync/internal/domain"
)

// OpenRequirements returns all open requirements for a user, ordered by
// last update so resolver tie-breaks are stable between ticks.
func (s *Store) OpenRequirements(ctx context.Context, userID string) ([]domain.Requirement, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, description, status, updated_at
		FROM requirements
		WHERE user_id = $1 AND status = 'open'
		ORDER BY updated_at DESC, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query open requirements: %w", err)
	}
	defer rows.Close()

	var reqs []domain.Requirement
	for rows.Next() {
		var r domain.Requirement
		if err := rows.Scan(&r.ID, &r.UserID, &r.Title, &r.Description, &r.Status, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}
