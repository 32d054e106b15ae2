// Package store opens the local SQLite database, applies the embedded schema
// migrations and hands out repositories bound to the database or to a
// transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/BrennanVollmar/vplm/internal/dbx"
	"github.com/BrennanVollmar/vplm/internal/filex"
	"github.com/BrennanVollmar/vplm/internal/lock"
	"github.com/BrennanVollmar/vplm/internal/migrations"
	"github.com/pressly/goose/v3"
)

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// RunMigrations applies every pending migration in version order.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	return MigrateTo(ctx, db, migrations.Latest)
}

// MigrateTo applies pending migrations up to and including version.
func MigrateTo(ctx context.Context, db *sql.DB, version int64) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpToContext(ctx, db, ".", version); err != nil {
		return fmt.Errorf("failed to migrate local store: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied schema version.
func SchemaVersion(ctx context.Context, db *sql.DB) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, db)
}

// Options tune Open.
type Options struct {
	// LockWait bounds how long Open waits for another process to release the
	// database. Zero uses lock.DefaultWait.
	LockWait time.Duration
}

// Store owns the database handle and the process lock.
type Store struct {
	db    *sql.DB
	lock  *lock.FileLock
	path  string
	repos *Repos
}

// Open opens (creating if needed) the database at path, locks it for this
// process and migrates it. ":memory:" opens a private in-memory database
// without a lock.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	var fl *lock.FileLock
	if !dbx.IsMemoryDSN(path) {
		if _, err := filex.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, err
		}
		l, err := lock.Acquire(ctx, path, opts.LockWait)
		if err != nil {
			return nil, err
		}
		fl = l
	}

	db, err := dbx.Open(ctx, path)
	if err != nil {
		_ = fl.Release()
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		_ = fl.Release()
		return nil, err
	}

	return &Store{db: db, lock: fl, path: path, repos: NewRepos(db)}, nil
}

// DB exposes the raw handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Path() string {
	return s.path
}

// Repos returns repositories bound to the database outside any transaction.
func (s *Store) Repos() *Repos {
	return s.repos
}

// WithTx runs fn with repositories bound to one transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r *Repos) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewRepos(tx))
	})
}

// SchemaVersion reports the applied schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int64, error) {
	return SchemaVersion(ctx, s.db)
}

// Close closes the database and releases the process lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if lerr := s.lock.Release(); err == nil {
		err = lerr
	}
	return err
}
