package cli

import (
	"context"
	"time"

	"github.com/BrennanVollmar/vplm/internal/app"
	"github.com/spf13/cobra"
)

func (r *runner) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push the outbox to the remote, then pull remote rows",
		Long: `Run one sync cycle. Outbox items are pushed oldest first; an item is only
removed after the remote accepted it. Rows that still have local changes
waiting in the outbox are not overwritten by the pull.

Exits non-zero when any item or collection failed; the failed items stay
queued for the next cycle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if !a.Sync.Configured() {
					r.printf("no remote configured\n")
				}
				res, err := a.Sync.Sync(ctx)
				if err != nil {
					return err
				}
				r.printf("pushed %d, pulled %d\n", res.Pushed, res.Pulled)
				for _, msg := range res.FailureMessages() {
					r.printf("failed: %s\n", msg)
				}
				return res.Err()
			})
		},
	}
}

func (r *runner) outboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect changes waiting to be pushed",
	}

	count := &cobra.Command{
		Use:   "count",
		Short: "Print the number of queued changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Store.Repos().Outbox.Count(ctx)
				if err != nil {
					return err
				}
				r.printf("%d\n", n)
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List queued changes, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				items, err := a.Store.Repos().Outbox.List(ctx)
				if err != nil {
					return err
				}
				for _, it := range items {
					r.printf("%d\t%s\t%s\t%s\t%s\n", it.Seq, it.Op, it.Kind, it.EntityID, it.CreatedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}

	cmd.AddCommand(count, list)
	return cmd
}
