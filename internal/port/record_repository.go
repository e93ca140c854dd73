package port

import "context"

// RecordRepository stores one collection of owner-scoped documents.
type RecordRepository[T any] interface {
	Create(ctx context.Context, record T) error

	// Get returns ErrNotFound when no record with id exists
	Get(ctx context.Context, id string) (T, error)

	// Replace overwrites the stored record with the same id
	Replace(ctx context.Context, record T) error

	Delete(ctx context.Context, id string) error

	ListByOwner(ctx context.Context, ownerID string) ([]T, error)
}
