package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/provider/gmail"
	"github.com/hireloop/mailsync/internal/store"
	"github.com/hireloop/mailsync/internal/store/postgres"
)

func newMailboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mailbox",
		Short: "Manage connected mailboxes",
	}
	cmd.AddCommand(newMailboxConnectCmd())
	cmd.AddCommand(newMailboxListCmd())
	return cmd
}

func newMailboxConnectCmd() *cobra.Command {
	var (
		userID    string
		email     string
		tierFlag  string
		frequency time.Duration
	)

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect a Gmail mailbox via OAuth",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tier, err := domain.ParseTier(tierFlag)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			oauthCfg := gmail.NewOAuthConfig(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret)
			token, err := gmail.Authenticate(ctx, oauthCfg)
			if err != nil {
				return fmt.Errorf("gmail authentication failed: %w", err)
			}
			if token.RefreshToken == "" {
				return fmt.Errorf("google did not return a refresh token; revoke mailsync's access and reconnect")
			}

			// Local backup so the daemon on this machine works even if the
			// central record is ever scrubbed of the token.
			if err := store.NewKeyringTokenStore().SaveToken(userID, token); err != nil {
				fmt.Fprintf(os.Stderr, "warning: could not save token to keyring: %v\n", err)
			}

			remote, err := postgres.New(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer remote.Close()

			mb := &domain.Mailbox{
				UserID:       userID,
				Email:        email,
				RefreshToken: token.RefreshToken,
				Tier:         tier,
				Frequency:    frequency,
				CreatedAt:    time.Now().UTC(),
			}
			if err := remote.UpsertMailbox(ctx, mb); err != nil {
				return fmt.Errorf("failed to save mailbox: %w", err)
			}

			fmt.Printf("Mailbox %s connected for %s (tier %s, every %s).\n",
				email, userID, tier, frequency)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID the mailbox belongs to")
	cmd.Flags().StringVar(&email, "email", "", "mailbox email address")
	cmd.Flags().StringVar(&tierFlag, "tier", "medium", "confidence tier (high, medium, low)")
	cmd.Flags().DurationVar(&frequency, "frequency", 5*time.Minute, "sync frequency")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("email")
	return cmd
}

func newMailboxListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connected mailboxes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			remote, err := postgres.New(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer remote.Close()

			freqs, err := remote.Frequencies(ctx)
			if err != nil {
				return fmt.Errorf("failed to list frequencies: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tEMAIL\tTIER\tFREQUENCY\tCONNECTED")
			for _, f := range freqs {
				mbs, err := remote.ListMailboxes(ctx, f)
				if err != nil {
					return fmt.Errorf("failed to list mailboxes: %w", err)
				}
				for _, mb := range mbs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						mb.UserID, mb.Email, mb.Tier, mb.Frequency,
						mb.CreatedAt.Local().Format("2006-01-02"))
				}
			}
			return w.Flush()
		},
	}
}
