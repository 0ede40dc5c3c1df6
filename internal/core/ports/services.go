package ports

import (
	"context"

	"github.com/samirrijal/huntmap/internal/core/domain"
)

// TokenProvider fetches the map engine access token.
type TokenProvider interface {
	FetchMapAccessToken(ctx context.Context) (string, error)
}

// EventPublisher publishes annotation change events to a message broker.
type EventPublisher interface {
	PublishAnnotationChanged(ctx context.Context, event domain.AnnotationEvent) error
}

// EventSubscriber delivers annotation change events for one team.
// The returned func cancels the subscription.
type EventSubscriber interface {
	SubscribeAnnotationChanges(ctx context.Context, teamID string, handler func(ctx context.Context, event domain.AnnotationEvent)) (func(), error)
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, keys ...string) error
}
