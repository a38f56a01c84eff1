package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hireloop/mailsync/internal/ingest"
	"github.com/hireloop/mailsync/internal/store/postgres"
)

func newIngestCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run a single ingestion tick for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger()
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer logger.Sync()

			ctx := cmd.Context()
			remote, err := postgres.New(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer remote.Close()

			driver := ingest.NewDriver(remote, gmailProviderFactory(cfg), logger)
			run, err := driver.RunTick(ctx, userID)
			if err != nil {
				return fmt.Errorf("ingestion tick failed: %w", err)
			}

			fmt.Printf("Processed %d messages (%d matched, %d already seen) in %s\n",
				run.Processed, run.Matched, run.Skipped, run.Duration.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user ID to ingest for")
	cmd.MarkFlagRequired("user")
	return cmd
}
