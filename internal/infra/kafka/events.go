package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/infra/config"
)

const (
	schemaVersion = "1.0"

	// LifecycleTopic carries every committed version mutation, keyed by record.
	LifecycleTopic = "version.lifecycle"
	// AnalyticsTopic carries read-path instrumentation signals.
	AnalyticsTopic = "version.analytics"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	RecordID  string           `json:"record_id,omitempty"`
	ActorID   string           `json:"actor_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type lifecyclePayload struct {
	VersionID       string         `json:"version_id"`
	RecordID        string         `json:"record_id"`
	VersionNumber   string         `json:"version_number"`
	PreviousVersion *string        `json:"previous_version,omitempty"`
	Action          string         `json:"action"`
	ActorID         string         `json:"actor_id"`
	ActorRole       string         `json:"actor_role,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	Checksum        string         `json:"checksum,omitempty"`
	OccurredAt      time.Time      `json:"occurred_at"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, topic, key string, envelope eventEnvelope) error {
	if envelope.Timestamp.IsZero() {
		envelope.Timestamp = time.Now().UTC()
	}
	if envelope.EventID == "" {
		envelope.EventID = uuid.NewString()
	}
	envelope.Timestamp = envelope.Timestamp.UTC()
	envelope.Version = schemaVersion

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}
	envelope.Metadata = metadata

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(topic),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(bytes),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(envelope.EventType)},
		},
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishVersionLifecycle publishes a committed version mutation on the lifecycle topic.
func (p *EventPublisher) PublishVersionLifecycle(ctx context.Context, event domain.VersionLifecycleEvent) error {
	payload := lifecyclePayload{
		VersionID:       event.VersionID,
		RecordID:        event.RecordID,
		VersionNumber:   event.VersionNumber,
		PreviousVersion: event.PreviousVersion,
		Action:          string(event.Action),
		ActorID:         event.ActorID,
		ActorRole:       event.ActorRole,
		Reason:          event.Reason,
		Checksum:        event.Checksum,
		OccurredAt:      event.OccurredAt.UTC(),
		Metadata:        event.Metadata,
	}

	return p.publish(ctx, LifecycleTopic, event.RecordID, eventEnvelope{
		EventID:   event.EventID,
		EventType: event.EventType,
		RecordID:  event.RecordID,
		ActorID:   event.ActorID,
		Timestamp: event.OccurredAt,
		Payload:   payload,
	})
}

// PublishAnalyticsEvent emits a read-path signal for the analytics consumer.
func (p *EventPublisher) PublishAnalyticsEvent(ctx context.Context, event domain.AnalyticsEvent) error {
	return p.publish(ctx, AnalyticsTopic, event.VersionID, eventEnvelope{
		EventID:   event.EventID,
		EventType: "version.analytics." + string(event.Kind),
		ActorID:   event.ViewerID,
		Timestamp: event.OccurredAt,
		Payload:   event,
	})
}

var _ port.EventPublisher = (*EventPublisher)(nil)
