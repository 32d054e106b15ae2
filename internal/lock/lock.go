// Package lock guards a local database file against a second writer process.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/BrennanVollmar/vplm/internal/common"
	"github.com/gofrs/flock"
)

// DefaultWait is how long Acquire retries before giving up.
const DefaultWait = 500 * time.Millisecond

const retryDelay = 50 * time.Millisecond

// FileLock is an exclusive advisory lock on <path>.lock.
type FileLock struct {
	fl *flock.Flock
}

// PathFor returns the lock file used for a database file.
func PathFor(dbPath string) string {
	return dbPath + ".lock"
}

// Acquire takes the lock for dbPath, retrying for up to wait. It returns
// common.ErrLocked when another process keeps holding it.
func Acquire(ctx context.Context, dbPath string, wait time.Duration) (*FileLock, error) {
	fl := flock.New(PathFor(dbPath))

	if wait <= 0 {
		wait = DefaultWait
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ok, err := fl.TryLockContext(ctx, retryDelay)
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", fl.Path(), common.ErrLocked)
	}
	return &FileLock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.fl.Path()
}

// Release unlocks. Safe on nil.
func (l *FileLock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
