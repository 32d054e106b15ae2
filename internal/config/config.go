package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Remote kinds.
const (
	RemoteNone     = "none"
	RemoteMemory   = "memory"
	RemoteGRPC     = "grpc"
	RemotePostgres = "postgres"
)

// Blob store kinds.
const (
	BlobNone   = "none"
	BlobMemory = "memory"
	BlobS3     = "s3"
	BlobMinio  = "minio"
)

// Config holds runtime settings for the vplm CLI and its local API.
//
// Durations are time.Duration values; JSON may spell them as "1500ms" or
// "3s". Paths in DBFile, BackupDir and ImportDir are resolved against
// DataDir when relative (see DBPath and friends).
type Config struct {
	DataDir   string
	DBFile    string
	BackupDir string
	ImportDir string

	RemoteKind  string
	RemoteAddr  string
	RemoteDSN   string
	AccessToken string

	BlobKind      string
	S3Endpoint    string
	S3Bucket      string
	S3Region      string
	S3AccessKey   string
	S3SecretKey   string
	S3PublicURL   string
	S3UseSSL      bool
	UploadTimeout time.Duration

	RequestTimeout      time.Duration
	PullPageSize        int
	OnlineCheckInterval time.Duration

	BackupDelay      time.Duration
	BackupHistoryCap int

	ListenAddr string
	LogLevel   string
	LogFile    string

	RelayAddr    string
	RelayBackend string
	RelaySecret  string
	TokenTTL     time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = ".vplm"
	c.DBFile = "vplm.db"
	c.BackupDir = "backups"
	c.ImportDir = "inbox"

	c.RemoteKind = RemoteNone
	c.RemoteAddr = "127.0.0.1:50051"
	c.BlobKind = BlobNone
	c.S3Region = "us-east-1"
	c.S3Bucket = "job-photos"
	c.S3UseSSL = true
	c.UploadTimeout = 30 * time.Second

	c.RequestTimeout = 12 * time.Second
	c.PullPageSize = 500
	c.OnlineCheckInterval = 3 * time.Second

	c.BackupDelay = 1500 * time.Millisecond
	c.BackupHistoryCap = 10

	c.ListenAddr = "127.0.0.1:8787"
	c.LogLevel = "info"

	c.RelayAddr = ":50051"
	c.RelayBackend = RemoteMemory
	c.TokenTTL = 24 * time.Hour
}

// LoadConfig constructs a Config from os.Args: defaults first, then the JSON
// file named by -c/--config, then command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

// Load is LoadConfig over an explicit argument list.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the rest of the program cannot work with.
func (c *Config) Validate() error {
	var errs []error

	switch c.RemoteKind {
	case RemoteNone, RemoteMemory, RemoteGRPC, RemotePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown remote kind %q", c.RemoteKind))
	}
	if c.RemoteKind == RemotePostgres && c.RemoteDSN == "" {
		errs = append(errs, errors.New("remote kind postgres needs remote_dsn"))
	}

	switch c.BlobKind {
	case BlobNone, BlobMemory, BlobS3, BlobMinio:
	default:
		errs = append(errs, fmt.Errorf("unknown blob kind %q", c.BlobKind))
	}
	if (c.BlobKind == BlobS3 || c.BlobKind == BlobMinio) && c.S3Bucket == "" {
		errs = append(errs, fmt.Errorf("blob kind %s needs s3_bucket", c.BlobKind))
	}
	if c.BlobKind == BlobMinio && c.S3Endpoint == "" {
		errs = append(errs, errors.New("blob kind minio needs s3_endpoint"))
	}

	switch c.RelayBackend {
	case RemoteMemory, RemotePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown relay backend %q", c.RelayBackend))
	}
	if c.RelayBackend == RemotePostgres && c.RemoteDSN == "" {
		errs = append(errs, errors.New("relay backend postgres needs remote_dsn"))
	}

	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.OnlineCheckInterval <= 0 {
		errs = append(errs, errors.New("online check interval must be positive"))
	}
	if c.BackupDelay < 0 {
		errs = append(errs, errors.New("backup delay must not be negative"))
	}
	if c.BackupHistoryCap < 1 {
		errs = append(errs, errors.New("backup history cap must be at least 1"))
	}
	if c.PullPageSize < 1 {
		errs = append(errs, errors.New("pull page size must be at least 1"))
	}

	return errors.Join(errs...)
}

// DBPath is the SQLite file the store opens. ":memory:" passes through.
func (c *Config) DBPath() string {
	if c.DBFile == ":memory:" {
		return c.DBFile
	}
	return c.resolve(c.DBFile)
}

// BackupPath is the directory downloaded backup files are written to.
func (c *Config) BackupPath() string { return c.resolve(c.BackupDir) }

// ImportPath is the directory the watcher imports export files from.
func (c *Config) ImportPath() string { return c.resolve(c.ImportDir) }

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}
