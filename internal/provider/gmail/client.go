package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/provider"
)

const userID = "me"

// Provider implements provider.MailProvider for Gmail. It holds a long-lived
// refresh token and maintains a short-lived access token itself, so that a
// 401 can be recovered with exactly one refresh-and-retry per call.
type Provider struct {
	cfg          *oauth2.Config
	refreshToken string
	service      *gmailapi.Service

	// refresh rebuilds the service with fresh credentials. It is a field so
	// the retry contract can be exercised without a live token endpoint.
	refresh func(ctx context.Context) error
}

// New creates a Gmail provider for a mailbox's refresh token.
func New(cfg *oauth2.Config, refreshToken string) *Provider {
	p := &Provider{cfg: cfg, refreshToken: refreshToken}
	p.refresh = p.refreshService
	return p
}

// refreshService exchanges the refresh token for a fresh access token and
// rebuilds the Gmail service around it.
func (p *Provider) refreshService(ctx context.Context) error {
	src := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: p.refreshToken})
	token, err := src.Token()
	if err != nil {
		return fmt.Errorf("%w: token refresh: %v", provider.ErrAuth, err)
	}
	srv, err := gmailapi.NewService(ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(token)))
	if err != nil {
		return fmt.Errorf("failed to create gmail service: %w", err)
	}
	p.service = srv
	return nil
}

// withAuthRetry runs fn, refreshing credentials exactly once on a 401 and
// retrying. A second auth failure is fatal for the current call.
func (p *Provider) withAuthRetry(ctx context.Context, fn func() error) error {
	if p.service == nil {
		if err := p.refresh(ctx); err != nil {
			return err
		}
	}
	err := fn()
	if !isUnauthorized(err) {
		return err
	}
	if err := p.refresh(ctx); err != nil {
		return err
	}
	err = fn()
	if isUnauthorized(err) {
		return fmt.Errorf("%w: still unauthorized after refresh", provider.ErrAuth)
	}
	return err
}

func isUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}

// ListMessages returns one page of message ids matching the options.
func (p *Provider) ListMessages(ctx context.Context, opts provider.ListOptions) (*provider.MessagePage, error) {
	var page provider.MessagePage
	err := p.withAuthRetry(ctx, func() error {
		call := p.service.Users.Messages.List(userID)
		if opts.MaxResults > 0 {
			call = call.MaxResults(int64(opts.MaxResults))
		}
		if opts.PageToken != "" {
			call = call.PageToken(opts.PageToken)
		}
		if opts.Query != "" {
			call = call.Q(opts.Query)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return err
		}
		page.IDs = page.IDs[:0]
		for _, m := range resp.Messages {
			page.IDs = append(page.IDs, m.Id)
		}
		page.NextPageToken = resp.NextPageToken
		return nil
	})
	if err != nil {
		if errors.Is(err, provider.ErrAuth) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to list gmail messages: %w", err)
	}
	return &page, nil
}

// GetMessage fetches and maps a single message by id.
func (p *Provider) GetMessage(ctx context.Context, id string) (*domain.InboundMessage, error) {
	var msg *domain.InboundMessage
	err := p.withAuthRetry(ctx, func() error {
		resp, err := p.service.Users.Messages.Get(userID, id).
			Format("full").Context(ctx).Do()
		if err != nil {
			return err
		}
		msg = mapMessage(resp)
		return nil
	})
	if err != nil {
		if errors.Is(err, provider.ErrAuth) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get gmail message %s: %w", id, err)
	}
	return msg, nil
}

// Compile-time interface compliance check.
var _ provider.MailProvider = (*Provider)(nil)
