package port

import (
	"context"
	"time"

	"github.com/rl1809/farm-market/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency claims key, returns false if it was already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a claimed key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// SaveSession stores a session until ttl elapses
	SaveSession(ctx context.Context, session domain.Session, ttl time.Duration) error

	// GetSession returns ErrNotFound for unknown or expired sessions
	GetSession(ctx context.Context, id string) (domain.Session, error)

	DeleteSession(ctx context.Context, id string) error
}
