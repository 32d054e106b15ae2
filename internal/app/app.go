// Package app assembles the local store, the configured remote and the
// services on top of them from a *config.Config. Commands build one App per
// process and Close it on the way out.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/BrennanVollmar/vplm/internal/config"
	"github.com/BrennanVollmar/vplm/internal/logging"
	"github.com/BrennanVollmar/vplm/internal/remote"
	"github.com/BrennanVollmar/vplm/internal/remote/grpcremote"
	"github.com/BrennanVollmar/vplm/internal/remote/memremote"
	"github.com/BrennanVollmar/vplm/internal/remote/minioblob"
	"github.com/BrennanVollmar/vplm/internal/remote/pgremote"
	"github.com/BrennanVollmar/vplm/internal/remote/s3blob"
	"github.com/BrennanVollmar/vplm/internal/services"
	"github.com/BrennanVollmar/vplm/internal/store"
)

// tokenSetter is implemented by remotes that authenticate with a bearer
// token.
type tokenSetter interface {
	SetAccessToken(token string)
}

type App struct {
	Config *config.Config
	Logger logging.Logger

	Store  *store.Store
	Remote remote.Client
	Blobs  remote.BlobStore

	Records  *services.Records
	Exchange *services.Exchange
	Backups  *services.BackupService
	Sync     *services.SyncService
	Online   *services.OnlineWatcher
}

// Remote constructors, replaced in tests.
var (
	dialGRPC = func(addr, token string) (remote.Client, error) {
		return grpcremote.New(addr, token)
	}
	openPostgres = func(ctx context.Context, dsn string) (remote.Client, error) {
		return pgremote.Open(ctx, dsn)
	}
)

// New opens the store and wires every service. A remote that cannot be
// reached at startup is logged and replaced by a remote.Reconnecting, the
// app works offline until a probe gets through.
func New(ctx context.Context, cfg *config.Config, l logging.Logger) (*App, error) {
	if l == nil {
		l = logging.Discard()
	}

	st, err := store.Open(ctx, cfg.DBPath(), store.Options{})
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: l, Store: st}

	token, err := a.accessToken(ctx)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a.Remote, err = newRemote(ctx, cfg, token)
	if errors.Is(err, common.ErrUnavailable) {
		l.Warn(ctx, "remote unavailable, working offline", "kind", cfg.RemoteKind, "error", err)
		a.Remote = remote.NewReconnecting(func(ctx context.Context, token string) (remote.Client, error) {
			return newRemote(ctx, cfg, token)
		}, token, err)
		err = nil
	}
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	a.Blobs, err = newBlobs(ctx, cfg, l)
	if err != nil {
		_ = a.closeRemote()
		_ = st.Close()
		return nil, err
	}

	a.Exchange = services.NewExchange(st, l)
	a.Backups = services.NewBackupService(st, a.Exchange, services.BackupConfig{
		Delay:      cfg.BackupDelay,
		HistoryCap: cfg.BackupHistoryCap,
	}, l)
	a.Records = services.NewRecords(st, a.Backups, l)
	a.Sync = services.NewSyncService(st, a.Remote, a.Blobs, services.SyncConfig{
		RequestTimeout: cfg.RequestTimeout,
		PullPageSize:   cfg.PullPageSize,
	}, l)
	a.Online = services.NewOnlineWatcher(a.Sync, cfg.OnlineCheckInterval, l)

	return a, nil
}

// accessToken prefers the configured token over the one saved by SaveToken.
func (a *App) accessToken(ctx context.Context) (string, error) {
	if a.Config.AccessToken != "" {
		return a.Config.AccessToken, nil
	}
	b, err := a.Store.Repos().Metadata.Get(ctx, common.MetaAccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to read access token: %w", err)
	}
	return string(b), nil
}

// SaveToken stores the remote access token and hands it to the live remote.
func (a *App) SaveToken(ctx context.Context, token string) error {
	if err := a.Store.Repos().Metadata.Set(ctx, common.MetaAccessToken, []byte(token)); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	if ts, ok := a.Remote.(tokenSetter); ok {
		ts.SetAccessToken(token)
	}
	return nil
}

func newRemote(ctx context.Context, cfg *config.Config, token string) (remote.Client, error) {
	switch cfg.RemoteKind {
	case config.RemoteNone:
		return nil, nil
	case config.RemoteMemory:
		return memremote.NewClient(), nil
	case config.RemoteGRPC:
		return dialGRPC(cfg.RemoteAddr, token)
	case config.RemotePostgres:
		ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
		defer cancel()
		return openPostgres(ctx, cfg.RemoteDSN)
	}
	return nil, fmt.Errorf("unknown remote kind %q", cfg.RemoteKind)
}

func newBlobs(ctx context.Context, cfg *config.Config, l logging.Logger) (remote.BlobStore, error) {
	switch cfg.BlobKind {
	case config.BlobNone:
		return nil, nil
	case config.BlobMemory:
		return memremote.NewBlobs("mem://" + cfg.S3Bucket), nil
	case config.BlobS3:
		return s3blob.New(ctx, s3blob.Config{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicURL,
		})
	case config.BlobMinio:
		s, err := minioblob.New(minioblob.Config{
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			UseSSL:        cfg.S3UseSSL,
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			PublicBaseURL: cfg.S3PublicURL,
		}, l)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, cfg.UploadTimeout)
		defer cancel()
		if err := s.EnsureBucket(ctx); err != nil {
			l.Warn(ctx, "could not ensure bucket", "bucket", cfg.S3Bucket, "error", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown blob kind %q", cfg.BlobKind)
}

func (a *App) closeRemote() error {
	if a.Remote == nil {
		return nil
	}
	return a.Remote.Close()
}

// Close flushes a pending backup, then releases the remote and the store.
func (a *App) Close() error {
	if a.Backups != nil {
		a.Backups.Flush()
		a.Backups.Stop()
	}
	return errors.Join(a.closeRemote(), a.Store.Close())
}
