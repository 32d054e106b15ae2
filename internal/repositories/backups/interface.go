// Package backups stores the capped history of local backup snapshots.
package backups

import (
	"context"
	"time"
)

// Record is one stored snapshot. Data is the encoded snapshot document and
// Checksum its hex SHA-256.
type Record struct {
	ID        string
	CreatedAt time.Time
	Reason    string
	Checksum  string
	Data      []byte
}

type Repository interface {
	Insert(ctx context.Context, rec *Record) error
	// List returns every record, newest first.
	List(ctx context.Context) ([]*Record, error)
	// Get returns nil, nil when id is unknown.
	Get(ctx context.Context, id string) (*Record, error)
	// Trim keeps the newest keep records and returns the ids it evicted.
	Trim(ctx context.Context, keep int) ([]string, error)
	Clear(ctx context.Context) error
}
