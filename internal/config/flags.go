package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/BrennanVollmar/vplm/internal/flagx"
)

// FlagNames lists every flag parseFlags understands, without dashes. The
// command tree registers the same names so cobra accepts them too.
var FlagNames = []string{
	"d", "data-dir", "db", "backup-dir", "import-dir",
	"remote", "a", "remote-addr", "remote-dsn",
	"blob", "s3-endpoint", "s3-bucket", "s3-region", "s3-public-url",
	"timeout", "page-size", "i", "online-interval",
	"backup-delay", "backup-cap",
	"listen", "log-level", "log-file",
	"relay-addr", "relay-backend", "token-ttl",
}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-d, --data-dir string        directory holding the database and backups
//	--db string                  database file name (":memory:" for a scratch store)
//	--backup-dir string          backup download directory
//	--import-dir string          directory watched for export files
//	--remote string              none | memory | grpc | postgres
//	-a, --remote-addr string     gRPC remote host:port
//	--remote-dsn string          Postgres DSN
//	--blob string                none | memory | s3 | minio
//	--s3-endpoint string         S3/MinIO endpoint
//	--s3-bucket string           photo bucket
//	--s3-region string           bucket region
//	--s3-public-url string       base of public photo URLs
//	--timeout duration           per-request remote timeout
//	--page-size int              rows pulled per collection
//	-i, --online-interval duration
//	--backup-delay duration      backup debounce delay
//	--backup-cap int             backup history size
//	--listen string              local API listen address
//	--log-level string           debug | info | warn | error
//	--log-file string            rotating log file (stderr when empty)
//	--relay-addr string          relay listen address
//	--relay-backend string       memory | postgres (postgres uses --remote-dsn)
//	--token-ttl duration         lifetime of tokens minted by "relay token"
//
// Args are filtered with flagx.FilterArgs first, so subcommand arguments
// and flags owned by other readers do not interfere.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, flagx.Spellings(FlagNames...))

	fs := flag.NewFlagSet("vplm", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.DBFile, "db", cfg.DBFile, "database file")
	fs.StringVar(&cfg.BackupDir, "backup-dir", cfg.BackupDir, "backup download directory")
	fs.StringVar(&cfg.ImportDir, "import-dir", cfg.ImportDir, "import directory")

	fs.StringVar(&cfg.RemoteKind, "remote", cfg.RemoteKind, "remote kind")
	fs.StringVar(&cfg.RemoteAddr, "a", cfg.RemoteAddr, "remote address")
	fs.StringVar(&cfg.RemoteAddr, "remote-addr", cfg.RemoteAddr, "remote address")
	fs.StringVar(&cfg.RemoteDSN, "remote-dsn", cfg.RemoteDSN, "postgres dsn")

	fs.StringVar(&cfg.BlobKind, "blob", cfg.BlobKind, "blob store kind")
	fs.StringVar(&cfg.S3Endpoint, "s3-endpoint", cfg.S3Endpoint, "s3 endpoint")
	fs.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "s3 bucket")
	fs.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "s3 region")
	fs.StringVar(&cfg.S3PublicURL, "s3-public-url", cfg.S3PublicURL, "public photo url base")

	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "remote request timeout")
	fs.IntVar(&cfg.PullPageSize, "page-size", cfg.PullPageSize, "rows pulled per collection")
	fs.DurationVar(&cfg.OnlineCheckInterval, "i", cfg.OnlineCheckInterval, "online check interval")
	fs.DurationVar(&cfg.OnlineCheckInterval, "online-interval", cfg.OnlineCheckInterval, "online check interval")

	fs.DurationVar(&cfg.BackupDelay, "backup-delay", cfg.BackupDelay, "backup debounce delay")
	fs.IntVar(&cfg.BackupHistoryCap, "backup-cap", cfg.BackupHistoryCap, "backup history size")

	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "local api address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "log file")

	fs.StringVar(&cfg.RelayAddr, "relay-addr", cfg.RelayAddr, "relay listen address")
	fs.StringVar(&cfg.RelayBackend, "relay-backend", cfg.RelayBackend, "relay storage")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "token lifetime")

	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
