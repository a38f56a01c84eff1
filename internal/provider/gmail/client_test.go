package gmail

import (
	"context"
	"errors"
	"net/http"
	"testing"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	"github.com/hireloop/mailsync/internal/provider"
)

func unauthorized() error {
	return &googleapi.Error{Code: http.StatusUnauthorized, Message: "invalid credentials"}
}

func TestWithAuthRetry(t *testing.T) {
	serverFault := errors.New("backend error")

	tests := []struct {
		name         string
		callErrs     []error // per-attempt results for fn
		refreshErr   error
		wantErr      error
		wantCalls    int
		wantRefresh  int
		wantAuthFail bool
	}{
		{
			name:      "success without refresh",
			callErrs:  []error{nil},
			wantCalls: 1,
		},
		{
			name:        "401 recovered by one refresh",
			callErrs:    []error{unauthorized(), nil},
			wantCalls:   2,
			wantRefresh: 1,
		},
		{
			name:         "second 401 is fatal",
			callErrs:     []error{unauthorized(), unauthorized()},
			wantCalls:    2,
			wantRefresh:  1,
			wantAuthFail: true,
		},
		{
			name:      "non-auth errors pass through without refresh",
			callErrs:  []error{serverFault},
			wantErr:   serverFault,
			wantCalls: 1,
		},
		{
			name:         "refresh failure surfaces",
			callErrs:     []error{unauthorized()},
			refreshErr:   provider.ErrAuth,
			wantCalls:    1,
			wantRefresh:  1,
			wantAuthFail: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(NewOAuthConfig("id", "secret"), "refresh-token")
			// Pre-built service: only the 401 path may refresh.
			p.service = &gmailapi.Service{}

			refreshes := 0
			p.refresh = func(context.Context) error {
				refreshes++
				return tt.refreshErr
			}

			calls := 0
			err := p.withAuthRetry(context.Background(), func() error {
				defer func() { calls++ }()
				return tt.callErrs[calls]
			})

			if tt.wantAuthFail {
				if !errors.Is(err, provider.ErrAuth) {
					t.Fatalf("error = %v, want ErrAuth", err)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if refreshes != tt.wantRefresh {
				t.Errorf("refreshes = %d, want %d", refreshes, tt.wantRefresh)
			}
		})
	}
}

func TestWithAuthRetry_RefreshesLazilyOnFirstUse(t *testing.T) {
	p := New(NewOAuthConfig("id", "secret"), "refresh-token")

	refreshes := 0
	p.refresh = func(context.Context) error {
		refreshes++
		p.service = &gmailapi.Service{}
		return nil
	}

	if err := p.withAuthRetry(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("withAuthRetry() error: %v", err)
	}
	if refreshes != 1 {
		t.Errorf("refreshes = %d, want 1 to build the service", refreshes)
	}
}
