package port

import (
	"context"

	"github.com/rl1809/farm-market/internal/core/domain"
)

// ChangeFeed fans document changes out to live subscribers.
type ChangeFeed interface {
	Publish(ctx context.Context, topic string, change domain.Change) error

	// Subscribe streams changes on topics until ctx is done, then closes the channel
	Subscribe(ctx context.Context, topics ...string) (<-chan domain.Change, error)
}

// EventPublisher forwards committed notifications to downstream consumers.
type EventPublisher interface {
	PublishNotification(ctx context.Context, notification domain.Notification) error
}
