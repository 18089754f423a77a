package port

import (
	"context"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishVersionLifecycle(ctx context.Context, event domain.VersionLifecycleEvent) error
}
