package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hireloop/mailsync/internal/config"
	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/engine"
	"github.com/hireloop/mailsync/internal/httpapi"
	"github.com/hireloop/mailsync/internal/ingest"
	"github.com/hireloop/mailsync/internal/leader"
	"github.com/hireloop/mailsync/internal/lock"
	"github.com/hireloop/mailsync/internal/provider"
	"github.com/hireloop/mailsync/internal/provider/gmail"
	"github.com/hireloop/mailsync/internal/queue"
	"github.com/hireloop/mailsync/internal/store"
	"github.com/hireloop/mailsync/internal/store/postgres"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the sync daemon",
		Long: "Runs the queue replay engine, the ingestion scheduler, and the status API " +
			"until interrupted. With Redis configured, instances elect a single replay " +
			"leader and race per-bucket ingestion locks; without it, a local lease keeps " +
			"a single machine's processes coordinated.",
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

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			local, err := openLocal()
			if err != nil {
				return err
			}
			defer local.Close()

			remote, err := postgres.New(ctx, cfg.Postgres.DSN)
			if err != nil {
				return err
			}
			defer remote.Close()

			var (
				election interface {
					leader.Election
					Run(context.Context) error
				}
				locker *lock.Locker
			)
			if cfg.Redis.Addr != "" {
				rdb := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
				})
				defer rdb.Close()
				locker = lock.New(rdb)
				election = leader.NewElector(leader.NewRedisBus(rdb), logger)
				logger.Info("coordinating via redis", zap.String("addr", cfg.Redis.Addr))
			} else {
				election = leader.NewLeaseElector(local, logger)
				logger.Info("no redis configured, using local lease election")
			}

			q := queue.New(local, logger)
			notifier := engine.NewNotifier()
			eng := engine.New(q, remote, election, notifier, logger, engine.Options{
				BatchSize:    cfg.Sync.QueueBatch,
				RetryCeiling: cfg.Sync.RetryCeiling,
				Interval:     cfg.EngineInterval(),
			})

			driver := ingest.NewDriver(remote, gmailProviderFactory(cfg), logger)
			scheduler := ingest.NewScheduler(driver, remote, locker, logger)
			api := httpapi.New(cfg.HTTP.Addr, q, remote, election, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return election.Run(gctx) })
			g.Go(func() error { return eng.Run(gctx) })
			g.Go(func() error { return scheduler.Run(gctx) })
			g.Go(func() error { return api.Run(gctx) })

			logger.Info("mailsync daemon started")
			if err := g.Wait(); err != nil && ctx.Err() == nil {
				return err
			}
			logger.Info("mailsync daemon stopped")
			return nil
		},
	}
}

// gmailProviderFactory builds one Gmail provider per mailbox. The refresh
// token normally lives on the mailbox record; for mailboxes connected on
// this machine it can also come from the OS keyring.
func gmailProviderFactory(cfg *config.Config) ingest.ProviderFactory {
	oauthCfg := gmail.NewOAuthConfig(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret)
	tokens := store.NewKeyringTokenStore()
	return func(mb *domain.Mailbox) (provider.MailProvider, error) {
		refreshToken := mb.RefreshToken
		if refreshToken == "" {
			token, err := tokens.LoadToken(mb.UserID)
			if err != nil {
				return nil, fmt.Errorf("mailbox %s has no refresh token: %w", mb.UserID, err)
			}
			refreshToken = token.RefreshToken
		}
		return gmail.New(oauthCfg, refreshToken), nil
	}
}
