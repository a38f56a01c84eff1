package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hireloop/mailsync/internal/domain"
	"github.com/hireloop/mailsync/internal/queue"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the offline mutation queue",
	}
	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueueRetryCmd())
	cmd.AddCommand(newQueuePruneCmd())
	return cmd
}

func openQueue() (*queue.Queue, func(), error) {
	db, err := openLocal()
	if err != nil {
		return nil, nil, err
	}
	return queue.New(db, zap.NewNop()), func() { db.Close() }, nil
}

func newQueueListCmd() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued mutations",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeDB, err := openQueue()
			if err != nil {
				return err
			}
			defer closeDB()

			ctx := cmd.Context()
			items, err := q.List(ctx, domain.QueueStatus(status), limit)
			if err != nil {
				return fmt.Errorf("failed to list queue items: %w", err)
			}
			counts, err := q.Counts(ctx)
			if err != nil {
				return fmt.Errorf("failed to count queue items: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tOP\tENTITY\tSTATUS\tRETRIES\tCREATED\tLAST ERROR")
			for _, it := range items {
				fmt.Fprintf(w, "%s\t%s\t%s/%s\t%s\t%d\t%s\t%s\n",
					it.ID, it.Operation, it.EntityType, it.EntityID,
					it.Status, it.RetryCount,
					it.CreatedAt.Local().Format(time.RFC3339),
					it.LastError)
			}
			w.Flush()

			fmt.Printf("\npending: %d  syncing: %d  synced: %d  failed: %d\n",
				counts[domain.QueuePending], counts[domain.QueueSyncing],
				counts[domain.QueueSynced], counts[domain.QueueFailed])
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, syncing, synced, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum items to show")
	return cmd
}

func newQueueRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <item-id>",
		Short: "Reset a failed item for an immediate retry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeDB, err := openQueue()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := q.Retry(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to retry item: %w", err)
			}
			fmt.Printf("Item %s reset; it will replay on the next pass.\n", args[0])
			return nil
		},
	}
}

func newQueuePruneCmd() *cobra.Command {
	var olderThan time.Duration
	var cap int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old synced items and enforce the storage cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, closeDB, err := openQueue()
			if err != nil {
				return err
			}
			defer closeDB()

			if err := q.Maintain(cmd.Context(), olderThan, cap); err != nil {
				return fmt.Errorf("failed to prune queue: %w", err)
			}
			fmt.Println("Queue pruned.")
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "prune synced items older than this")
	cmd.Flags().IntVar(&cap, "cap", 1000, "maximum stored items")
	return cmd
}
