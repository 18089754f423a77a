package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
)

// errPoisonMessage marks messages that can never be applied; they are committed and skipped.
var errPoisonMessage = errors.New("poison message")

// AnalyticsHandler applies one analytics event.
type AnalyticsHandler interface {
	HandleEvent(ctx context.Context, event domain.AnalyticsEvent) error
}

// AnalyticsConsumer folds read-path signals into version analytics.
type AnalyticsConsumer struct {
	handler AnalyticsHandler
	logger  *zap.Logger
}

// NewAnalyticsConsumer constructs a consumer that forwards events to the analytics aggregator.
func NewAnalyticsConsumer(handler AnalyticsHandler, logger *zap.Logger) *AnalyticsConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsConsumer{handler: handler, logger: logger}
}

// HandleMessage decodes a Kafka message prior to processing. Both enveloped and bare events are accepted.
func (c *AnalyticsConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("%w: decode analytics envelope: %v", errPoisonMessage, err)
	}
	body := []byte(envelope.Payload)
	if len(body) == 0 {
		body = msg.Value
	}

	var event domain.AnalyticsEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("%w: decode analytics event: %v", errPoisonMessage, err)
	}

	return c.HandleEvent(ctx, event)
}

// HandleEvent applies the event. Events that fail validation or target missing versions are poison.
func (c *AnalyticsConsumer) HandleEvent(ctx context.Context, event domain.AnalyticsEvent) error {
	if c.handler == nil {
		return nil
	}
	if err := c.handler.HandleEvent(ctx, event); err != nil {
		if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("%w: %v", errPoisonMessage, err)
		}
		return fmt.Errorf("apply analytics event: %w", err)
	}
	return nil
}

// Setup is run at the beginning of a new session, before ConsumeClaim.
func (c *AnalyticsConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is run at the end of a session, once all ConsumeClaim goroutines have exited.
func (c *AnalyticsConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes one partition. A transient failure ends the session so the
// uncommitted message is redelivered after the rebalance.
func (c *AnalyticsConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				if !errors.Is(err, errPoisonMessage) {
					c.logger.Error("analytics event failed",
						zap.String("topic", msg.Topic),
						zap.Int32("partition", msg.Partition),
						zap.Int64("offset", msg.Offset),
						zap.Error(err),
					)
					return err
				}
				c.logger.Warn("skipping analytics event",
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

var _ sarama.ConsumerGroupHandler = (*AnalyticsConsumer)(nil)
