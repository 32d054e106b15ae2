package cli

import (
	"context"

	"github.com/BrennanVollmar/vplm/internal/api"
	"github.com/BrennanVollmar/vplm/internal/app"
	"github.com/BrennanVollmar/vplm/internal/services"
	"github.com/BrennanVollmar/vplm/internal/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func (r *runner) serveCmd() *cobra.Command {
	var withWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local control API and background sync",
		Long: `Serve the local HTTP API on --listen and probe the remote every
--online-interval. A sync cycle runs each time the remote comes back.
With --watch the import directory is watched as well.

Stops on SIGINT or SIGTERM; a pending backup is written before exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				a.Online.OnSync(func(res services.SyncResult, err error) {
					if err == nil {
						err = res.Err()
					}
					if err != nil {
						r.logger.Warn(ctx, "background sync incomplete", "pushed", res.Pushed, "pulled", res.Pulled, "error", err)
						return
					}
					r.logger.Info(ctx, "background sync done", "pushed", res.Pushed, "pulled", res.Pulled)
				})

				h := api.NewHandler(a.Sync, a.Store.Repos().Outbox, a.Backups, a.Exchange, r.logger)

				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					return api.Serve(ctx, a.Config.ListenAddr, h.Router(), r.logger)
				})
				g.Go(func() error {
					return a.Online.Run(ctx)
				})
				if withWatch {
					g.Go(func() error {
						return r.newWatcher(a).Run(ctx)
					})
				}
				return g.Wait()
			})
		},
	}
	cmd.Flags().BoolVar(&withWatch, "watch", false, "also import export files dropped into the import directory")
	return cmd
}

func (r *runner) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Import export files dropped into the import directory",
		Long: `Watch --import-dir for *.json export documents. Each file is imported once
it has stopped changing, then moved to imported/ or, when the import is
rejected, to failed/.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return r.newWatcher(a).Run(ctx)
			})
		},
	}
}

func (r *runner) newWatcher(a *app.App) *watch.Watcher {
	return watch.New(a.Config.ImportPath(), 0, func(ctx context.Context, path string) error {
		counts, err := a.Exchange.ImportFile(ctx, path)
		if err != nil {
			return err
		}
		r.logger.Info(ctx, "imported", "file", path, "counts", counts)
		return nil
	}, r.logger)
}
