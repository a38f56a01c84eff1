package provider

import (
	"context"
	"errors"

	"github.com/hireloop/mailsync/internal/domain"
)

// ErrAuth reports that mailbox credentials are invalid and a single refresh
// attempt did not recover them. The tick fails and the user is asked to
// reconnect the mailbox; no further retry within the tick.
var ErrAuth = errors.New("mailbox authentication failed")

// ListOptions configures a message listing call.
type ListOptions struct {
	PageToken  string
	MaxResults int
	Query      string
}

// MessagePage is one page of message ids from the provider feed.
type MessagePage struct {
	IDs           []string
	NextPageToken string
}

// MailProvider is the read surface of a mail account the ingestion driver
// consumes: list ids, fetch detail. Transport, auth, and rate limiting are
// the implementation's concern.
type MailProvider interface {
	ListMessages(ctx context.Context, opts ListOptions) (*MessagePage, error)
	GetMessage(ctx context.Context, id string) (*domain.InboundMessage, error)
}
