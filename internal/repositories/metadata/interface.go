// Package metadata stores small pieces of local control data (the latest
// backup pointer, the remote access token, the last sync time) in a
// key/value table.
package metadata

import (
	"context"
)

// Repository is a key/value store over the metadata table.
//
// Get returns (nil, nil) for a missing key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
}
