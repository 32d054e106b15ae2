// Package cli is the vplm command tree. Global flags are the config flags;
// they are registered here so cobra accepts them, while their values are
// read by the config package from the same argument list.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/BrennanVollmar/vplm/internal/app"
	"github.com/BrennanVollmar/vplm/internal/config"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/spf13/cobra"
)

// newApp builds the application for commands that need the local store.
var newApp = app.New

type runner struct {
	args []string
	in   *bufio.Reader
	out  io.Writer

	cfg    *config.Config
	logger logging.Logger
}

// Execute runs the command line args (without the program name).
func Execute(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	cmd := NewRootCommand(args, in, out)
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. args must be the same list the
// command is executed with: config is loaded from it.
func NewRootCommand(args []string, in io.Reader, out io.Writer) *cobra.Command {
	r := &runner{args: args, in: bufio.NewReader(in), out: out}

	root := &cobra.Command{
		Use:   "vplm",
		Short: "Offline-first field data store with background sync",
		Long: `vplm keeps job records in a local SQLite database, queues every change
in an outbox and replicates it to a remote when one is reachable.

Settings come from defaults, then the JSON file given with -c/--config,
then the flags below. Credentials (s3_access_key, s3_secret_key,
access_token, relay_secret) are only read from the JSON file.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: r.loadConfig,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)

	registerConfigFlags(root)

	root.AddCommand(
		r.jobCmd(),
		r.noteCmd(),
		r.photoCmd(),
		r.syncCmd(),
		r.outboxCmd(),
		r.backupCmd(),
		r.exportCmd(),
		r.importCmd(),
		r.serveCmd(),
		r.watchCmd(),
		r.tokenCmd(),
		r.relayCmd(),
	)
	return root
}

func registerConfigFlags(root *cobra.Command) {
	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "JSON config file")
	pf.StringP("data-dir", "d", "", "directory holding the database and backups")
	pf.String("db", "", `database file name (":memory:" for a scratch store)`)
	pf.String("backup-dir", "", "backup download directory")
	pf.String("import-dir", "", "directory watched for export files")
	pf.String("remote", "", "none | memory | grpc | postgres")
	pf.StringP("remote-addr", "a", "", "gRPC remote host:port")
	pf.String("remote-dsn", "", "Postgres DSN")
	pf.String("blob", "", "none | memory | s3 | minio")
	pf.String("s3-endpoint", "", "S3 or MinIO endpoint")
	pf.String("s3-bucket", "", "photo bucket")
	pf.String("s3-region", "", "bucket region")
	pf.String("s3-public-url", "", "base of public photo URLs")
	pf.String("timeout", "", "per-request remote timeout")
	pf.String("page-size", "", "rows pulled per collection")
	pf.StringP("online-interval", "i", "", "online check interval")
	pf.String("backup-delay", "", "backup debounce delay")
	pf.String("backup-cap", "", "backup history size")
	pf.String("listen", "", "local API listen address")
	pf.String("log-level", "", "debug | info | warn | error")
	pf.String("log-file", "", "rotating log file (stderr when empty)")
	pf.String("relay-addr", "", "relay listen address")
	pf.String("relay-backend", "", "memory | postgres")
	pf.String("token-ttl", "", `lifetime of tokens minted by "relay token"`)
}

func (r *runner) loadConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(r.args)
	if err != nil {
		return err
	}
	r.cfg = cfg
	r.logger = logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
	})
	return nil
}

// withApp opens the application, runs fn and closes it again.
func (r *runner) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) (err error) {
	ctx := cmd.Context()
	a, err := newApp(ctx, r.cfg, r.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

func (r *runner) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}
