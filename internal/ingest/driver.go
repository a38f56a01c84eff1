// Package ingest pulls mailbox pages, matches messages against open
// requirements, and records the outcome. A tick is the unit of work: one
// page, processed to completion or not at all from the cursor's view.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/match"
	"github.com/hireloop/mailsync/internal/provider"
	"github.com/hireloop/mailsync/internal/store"
)

const (
	// DefaultPageSize is how many message ids one tick processes.
	DefaultPageSize = 100
	// DefaultFanOut bounds concurrent message fetches within a tick.
	DefaultFanOut = 5
)

// ProviderFactory builds a mail provider for a connected mailbox.
type ProviderFactory func(mb *domain.Mailbox) (provider.MailProvider, error)

// Driver runs ingestion ticks.
type Driver struct {
	remote      store.Remote
	providerFor ProviderFactory
	logger      *zap.Logger
	pageSize    int
	fanOut      int
}

// NewDriver creates an ingestion driver.
func NewDriver(remote store.Remote, providerFor ProviderFactory, logger *zap.Logger) *Driver {
	return &Driver{
		remote:      remote,
		providerFor: providerFor,
		logger:      logger,
		pageSize:    DefaultPageSize,
		fanOut:      DefaultFanOut,
	}
}

// RunTick processes one page of the user's mailbox: list ids from the
// cursor, fetch and score each unseen message, record matches, then advance
// the cursor and log the run in one transaction. On error the cursor stays
// put and the failed run is still recorded; reprocessing the same page later
// is safe because match records are keyed by (message, recipient).
func (d *Driver) RunTick(ctx context.Context, userID string) (*domain.SyncRun, error) {
	start := time.Now().UTC()
	run := &domain.SyncRun{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: start,
	}

	err := d.tick(ctx, userID, run)
	run.Duration = time.Since(start)
	if err != nil {
		run.Error = err.Error()
		// Best effort: the run row is diagnostics, the tick error is the
		// outcome that matters.
		if recErr := d.remote.CompleteTick(ctx, nil, run); recErr != nil {
			d.logger.Warn("failed to record failed run",
				zap.String("user_id", userID),
				zap.Error(recErr))
		}
		return run, err
	}
	return run, nil
}

func (d *Driver) tick(ctx context.Context, userID string, run *domain.SyncRun) error {
	mb, err := d.remote.GetMailbox(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load mailbox: %w", err)
	}
	cursor, err := d.remote.GetSyncCursor(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load sync cursor: %w", err)
	}
	prov, err := d.providerFor(mb)
	if err != nil {
		return fmt.Errorf("failed to build mail provider: %w", err)
	}
	reqs, err := d.remote.OpenRequirements(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load open requirements: %w", err)
	}

	page, err := prov.ListMessages(ctx, provider.ListOptions{
		PageToken:  cursor.PageToken,
		MaxResults: d.pageSize,
	})
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	if len(page.IDs) == 0 {
		// Nothing new; log the run without advancing the cursor.
		return d.remote.CompleteTick(ctx, nil, run)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.fanOut)
	for _, id := range page.IDs {
		id := id
		g.Go(func() error {
			matched, skipped, err := d.processMessage(gctx, prov, id, reqs, mb.Tier)
			if err != nil {
				return err
			}
			mu.Lock()
			if skipped {
				run.Skipped++
			} else {
				run.Processed++
				run.Matched += matched
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	cursor = &domain.SyncCursor{
		UserID:        userID,
		LastMessageID: page.IDs[0],
		PageToken:     page.NextPageToken,
		LastSyncAt:    time.Now().UTC(),
	}
	if err := d.remote.CompleteTick(ctx, cursor, run); err != nil {
		return fmt.Errorf("failed to complete tick: %w", err)
	}

	d.logger.Info("ingestion tick complete",
		zap.String("user_id", userID),
		zap.Int("processed", run.Processed),
		zap.Int("matched", run.Matched),
		zap.Int("skipped", run.Skipped),
		zap.Duration("duration", run.Duration))
	return nil
}

// processMessage fetches, scores, and records one message. It returns the
// number of match records created, or skipped=true when the message was
// already handled in a previous tick.
func (d *Driver) processMessage(ctx context.Context, prov provider.MailProvider, id string, reqs []domain.Requirement, tier domain.ConfidenceTier) (int, bool, error) {
	seen, err := d.remote.MatchRecordExists(ctx, id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to check match record: %w", err)
	}
	if seen {
		return 0, true, nil
	}

	msg, err := prov.GetMessage(ctx, id)
	if err != nil {
		return 0, false, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}

	res := match.Resolve(reqs, *msg, tier)
	if !res.ShouldLink {
		return 0, false, nil
	}

	status := domain.MatchLinked
	if res.NeedsConfirmation {
		status = domain.MatchPendingConfirmation
	}

	created := 0
	for _, rcpt := range msg.To {
		rec := &domain.MatchRecord{
			ID:            uuid.NewString(),
			RequirementID: res.Requirement.ID,
			Recipient:     rcpt.Email,
			Confidence:    res.Score,
			Status:        status,
			MessageID:     msg.ID,
			CreatedAt:     time.Now().UTC(),
		}
		if err := d.remote.CreateMatchRecord(ctx, rec); err != nil {
			return created, false, fmt.Errorf("failed to create match record: %w", err)
		}
		created++
	}
	d.logger.Debug("message matched",
		zap.String("message_id", msg.ID),
		zap.String("requirement_id", res.Requirement.ID),
		zap.Int("confidence", res.Score),
		zap.String("status", string(status)))
	return created, false, nil
}
