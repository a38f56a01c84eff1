package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/store"
)

// Apply replays one queued mutation against the central store.
//
// Conflict semantics: creating an entity that already exists, or updating one
// that no longer exists, means the remote diverged from the state the client
// queued against — both return store.ErrConflict. Deleting a missing entity
// is idempotent and succeeds.
func (s *Store) Apply(ctx context.Context, op domain.Operation, et domain.EntityType, entityID string, payload json.RawMessage) error {
	decoded, err := domain.DecodePayload(et, op, payload)
	if err != nil {
		return err
	}

	switch op {
	case domain.OpCreate:
		err := s.insertEntity(ctx, et, entityID, decoded)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return fmt.Errorf("create %s %s: %w", et, entityID, store.ErrConflict)
		}
		return err
	case domain.OpUpdate:
		n, err := s.updateEntity(ctx, et, entityID, decoded)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("update %s %s: %w", et, entityID, store.ErrConflict)
		}
		return nil
	case domain.OpDelete:
		_, err := s.deleteEntity(ctx, et, entityID)
		return err
	}
	return fmt.Errorf("%w: unknown operation %q", domain.ErrInvalidPayload, op)
}

// ForceApply overwrites remote state with the local value after a conflict:
// creates and updates become upserts, deletes stay deletes.
func (s *Store) ForceApply(ctx context.Context, op domain.Operation, et domain.EntityType, entityID string, payload json.RawMessage) error {
	decoded, err := domain.DecodePayload(et, op, payload)
	if err != nil {
		return err
	}
	if op == domain.OpDelete {
		_, err := s.deleteEntity(ctx, et, entityID)
		return err
	}
	return s.upsertEntity(ctx, et, entityID, decoded)
}

func (s *Store) insertEntity(ctx context.Context, et domain.EntityType, id string, decoded any) error {
	var err error
	switch p := decoded.(type) {
	case domain.RequirementPayload:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO requirements (id, user_id, title, description, status, updated_at)
			VALUES ($1, '', $2, $3, COALESCE(NULLIF($4, ''), 'open'), now())`,
			id, p.Title, p.Description, string(p.Status))
	case domain.CandidatePayload:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO candidates (id, name, email, phone, updated_at)
			VALUES ($1, $2, $3, $4, now())`,
			id, p.Name, p.Email, p.Phone)
	case domain.InterviewPayload:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO interviews (id, requirement_id, candidate_id, scheduled_at, notes, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())`,
			id, p.RequirementID, p.CandidateID, p.ScheduledAt, p.Notes)
	default:
		return fmt.Errorf("%w: unsupported payload %T", domain.ErrInvalidPayload, decoded)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return err // classified by Apply
		}
		return fmt.Errorf("failed to insert %s %s: %w", et, id, err)
	}
	return nil
}

func (s *Store) updateEntity(ctx context.Context, et domain.EntityType, id string, decoded any) (int64, error) {
	var tag pgconn.CommandTag
	var err error
	switch p := decoded.(type) {
	case domain.RequirementPayload:
		tag, err = s.pool.Exec(ctx, `
			UPDATE requirements
			SET title = $2, description = $3,
			    status = COALESCE(NULLIF($4, ''), status), updated_at = now()
			WHERE id = $1`,
			id, p.Title, p.Description, string(p.Status))
	case domain.CandidatePayload:
		tag, err = s.pool.Exec(ctx, `
			UPDATE candidates SET name = $2, email = $3, phone = $4, updated_at = now()
			WHERE id = $1`,
			id, p.Name, p.Email, p.Phone)
	case domain.InterviewPayload:
		tag, err = s.pool.Exec(ctx, `
			UPDATE interviews
			SET requirement_id = $2, candidate_id = $3, scheduled_at = $4, notes = $5, updated_at = now()
			WHERE id = $1`,
			id, p.RequirementID, p.CandidateID, p.ScheduledAt, p.Notes)
	default:
		return 0, fmt.Errorf("%w: unsupported payload %T", domain.ErrInvalidPayload, decoded)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to update %s %s: %w", et, id, err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) upsertEntity(ctx context.Context, et domain.EntityType, id string, decoded any) error {
	var err error
	switch p := decoded.(type) {
	case domain.RequirementPayload:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO requirements (id, user_id, title, description, status, updated_at)
			VALUES ($1, '', $2, $3, COALESCE(NULLIF($4, ''), 'open'), now())
			ON CONFLICT (id) DO UPDATE SET
				title = excluded.title, description = excluded.description,
				status = excluded.status, updated_at = now()`,
			id, p.Title, p.Description, string(p.Status))
	case domain.CandidatePayload:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO candidates (id, name, email, phone, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name, email = excluded.email,
				phone = excluded.phone, updated_at = now()`,
			id, p.Name, p.Email, p.Phone)
	case domain.InterviewPayload:
		_, err = s.pool.Exec(ctx, `
			INSERT INTO interviews (id, requirement_id, candidate_id, scheduled_at, notes, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (id) DO UPDATE SET
				requirement_id = excluded.requirement_id, candidate_id = excluded.candidate_id,
				scheduled_at = excluded.scheduled_at, notes = excluded.notes, updated_at = now()`,
			id, p.RequirementID, p.CandidateID, p.ScheduledAt, p.Notes)
	default:
		return fmt.Errorf("%w: unsupported payload %T", domain.ErrInvalidPayload, decoded)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert %s %s: %w", et, id, err)
	}
	return nil
}

func (s *Store) deleteEntity(ctx context.Context, et domain.EntityType, id string) (int64, error) {
	var table string
	switch et {
	case domain.EntityRequirement:
		table = "requirements"
	case domain.EntityCandidate:
		table = "candidates"
	case domain.EntityInterview:
		table = "interviews"
	default:
		return 0, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidPayload, et)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s %s: %w", et, id, err)
	}
	return tag.RowsAffected(), nil
}
