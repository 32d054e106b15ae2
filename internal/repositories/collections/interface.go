// Package collections implements the document-style tables that hold field
// entities. Every table has the same shape: the entity as JSON plus indexed
// id, parent job id and creation time, and an optional binary payload column
// for entities that carry one.
package collections

import (
	"context"

	"github.com/BrennanVollmar/vplm/internal/models"
)

// Ptr is satisfied by *T when T is an entity type.
type Ptr[T any] interface {
	*T
	models.Entity
}

// Repository describes storage for one entity collection.
type Repository[T any, P Ptr[T]] interface {
	// Put upserts e by id. A nil blob keeps the payload already stored.
	Put(ctx context.Context, e P) error

	// Get returns nil, nil when no record has the id.
	Get(ctx context.Context, id string) (P, error)

	// List returns all records ordered by creation time.
	List(ctx context.Context) ([]P, error)

	// ListByJob returns the records of one job ordered by creation time.
	ListByJob(ctx context.Context, jobID string) ([]P, error)

	// Delete removes one record and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// DeleteByJob removes every record of a job and returns their ids.
	DeleteByJob(ctx context.Context, jobID string) ([]string, error)

	Count(ctx context.Context) (int, error)
}
