// Package outbox persists the queue of local mutations waiting to be pushed
// to the remote. Items are read in insertion order and removed only by an
// explicit call after the remote accepted them.
package outbox

import (
	"context"

	"github.com/BrennanVollmar/vplm/internal/models"
)

type Repository interface {
	// Enqueue appends item. Seq is filled in on success.
	Enqueue(ctx context.Context, item *models.OutboxItem) error
	Count(ctx context.Context) (int, error)
	// Pending returns up to limit items in FIFO order without removing them.
	// A limit <= 0 returns every item.
	Pending(ctx context.Context, limit int) ([]*models.OutboxItem, error)
	// Remove deletes one item and reports whether it was present.
	Remove(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*models.OutboxItem, error)
	// Restore inserts items that are not already queued, oldest first, and
	// returns how many were added.
	Restore(ctx context.Context, items []*models.OutboxItem) (int, error)
}
