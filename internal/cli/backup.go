package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/BrennanVollmar/vplm/internal/app"
	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/services"
	"github.com/spf13/cobra"
)

func (r *runner) backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Local snapshots of the whole store",
		Long: `Snapshots are taken automatically a short while after the last change and
kept in a capped history inside the database. These commands manage the
history by hand.`,
	}

	var reason string
	create := &cobra.Command{
		Use:   "create",
		Short: "Take a snapshot now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				entry, err := a.Backups.CreateSnapshot(ctx, reason)
				if err != nil {
					return err
				}
				r.printBackup(entry)
				return nil
			})
		},
	}
	create.Flags().StringVar(&reason, "reason", "manual", "reason stored with the snapshot")

	list := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				for _, e := range a.Backups.History(ctx) {
					r.printBackup(e)
				}
				return nil
			})
		},
	}

	latest := &cobra.Command{
		Use:   "latest",
		Short: "Show the latest snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				e := a.Backups.Latest(ctx)
				if e == nil {
					return fmt.Errorf("no backup: %w", common.ErrNotFound)
				}
				r.printBackup(e)
				return nil
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				a.Backups.Clear(ctx)
				return nil
			})
		},
	}

	var seal bool
	download := &cobra.Command{
		Use:   "download [id]",
		Short: "Write a snapshot to the backup directory (latest when no id)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var pass []byte
			if seal {
				var err error
				if pass, err = r.passphrase(); err != nil {
					return err
				}
			}
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				var e *services.BackupEntry
				if len(args) == 1 {
					e = a.Backups.Get(ctx, args[0])
				} else {
					e = a.Backups.Latest(ctx)
				}
				if e == nil {
					return fmt.Errorf("no backup: %w", common.ErrNotFound)
				}
				var (
					path string
					err  error
				)
				if seal {
					path, err = services.WriteSealedBackupFile(a.Config.BackupPath(), e, pass)
				} else {
					path, err = services.WriteBackupFile(a.Config.BackupPath(), e)
				}
				if err != nil {
					return err
				}
				r.printf("%s\n", path)
				return nil
			})
		},
	}
	download.Flags().BoolVar(&seal, "seal", false, "encrypt the file with a passphrase")

	restore := &cobra.Command{
		Use:   "restore <file>",
		Short: "Merge a downloaded snapshot back into the store",
		Long: `Restore reads a file written by "backup download" and merges its records
into the store, the same way import does. Sealed files ask for the
passphrase.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := services.ReadBackupFile(args[0], r.passphrase)
			if err != nil {
				return err
			}
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				counts, err := a.Exchange.Import(ctx, entry.Data)
				if err != nil {
					return err
				}
				r.printCounts(counts)
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, latest, clearCmd, download, restore)
	return cmd
}

func (r *runner) passphrase() ([]byte, error) {
	p, err := GetSecret(r.in, "Passphrase:", r.out)
	if err != nil {
		return nil, err
	}
	if p == "" {
		return nil, errors.New("empty passphrase")
	}
	return []byte(p), nil
}

func (r *runner) printBackup(e *services.BackupEntry) {
	r.printf("%s\t%s\t%s\n", e.ID, e.CreatedAt.Format(time.RFC3339), e.Reason)
}

func (r *runner) exportCmd() *cobra.Command {
	var (
		media  bool
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every record as one JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				doc, err := a.Exchange.Export(ctx, media)
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					return services.WriteDocument(r.out, doc)
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := services.WriteDocument(f, doc); err != nil {
					_ = f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().BoolVar(&media, "media", true, "inline photo and audio binaries as data URLs")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (stdout when empty)")
	return cmd
}

func (r *runner) importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Merge an export document into the store",
		Long: `Import merges: records are upserted by id and nothing that is missing from
the document is deleted. Outbox items carried by the document are queued
again unless they are already pending.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, func(ctx context.Context, a *app.App) error {
				counts, err := a.Exchange.ImportFile(ctx, args[0])
				if err != nil {
					return err
				}
				r.printCounts(counts)
				return nil
			})
		},
	}
}

func (r *runner) printCounts(counts services.ImportCounts) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		r.printf("%s\t%d\n", k, counts[k])
	}
}
