// Package remote defines the backend the sync engine replicates to: a
// collection store keyed by record id and an object store for photo
// binaries. Implementations live in the sub-packages.
//
// Implementations map their transport errors onto the sentinels in
// internal/common: ErrUnavailable for network and timeout failures,
// ErrUnauthorized for rejected credentials and ErrAlreadyExists when an
// upload target is already present.
package remote

import (
	"context"
	"encoding/json"
)

// Client is a remote table store. Rows are the JSON form of an entity and
// always carry an "id" field.
type Client interface {
	// Upsert inserts or replaces the row with the same id.
	Upsert(ctx context.Context, collection string, row json.RawMessage) error
	// Delete removes a row. Deleting a missing row is not an error.
	Delete(ctx context.Context, collection, id string) error
	// Fetch returns up to limit rows of a collection.
	Fetch(ctx context.Context, collection string, limit int) ([]json.RawMessage, error)
	Ping(ctx context.Context) error
	Close() error
}

// BlobStore holds photo binaries addressed by a slash separated path.
type BlobStore interface {
	// Upload writes data at path, replacing what is there.
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	// PublicURL is the address a stored object can be fetched from.
	PublicURL(path string) string
}

// RowID extracts the "id" field of a row.
func RowID(row json.RawMessage) (string, error) {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(row, &head); err != nil {
		return "", err
	}
	return head.ID, nil
}
