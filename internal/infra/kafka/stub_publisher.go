package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

// PublishVersionLifecycle logs the lifecycle event.
func (p *StubPublisher) PublishVersionLifecycle(_ context.Context, event domain.VersionLifecycleEvent) error {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", event.EventType),
		zap.String("record_id", event.RecordID),
		zap.String("version_id", event.VersionID),
		zap.String("version_number", event.VersionNumber),
		zap.String("actor_id", event.ActorID),
		zap.String("action", string(event.Action)),
		zap.Time("timestamp", at.UTC()),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
