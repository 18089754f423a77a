package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()
	asyncProducer := newFakeAsyncProducer()

	producer := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: "catalog"}, zaptest.NewLogger(t))
	t.Cleanup(func() {
		if err := producer.Close(); err != nil {
			t.Errorf("close producer: %v", err)
		}
	})

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "product-versions",
		Env:  "test",
	}, zaptest.NewLogger(t))
	return publisher, asyncProducer
}

func receive(t *testing.T, producer *fakeAsyncProducer) (*sarama.ProducerMessage, map[string]any) {
	t.Helper()
	select {
	case msg := <-producer.input:
		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}
		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		return msg, envelope
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
	return nil, nil
}

func TestPublishVersionLifecycle(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	occurredAt := time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC)
	previous := "ver-1"
	event := domain.VersionLifecycleEvent{
		EventID:         "event-123",
		EventType:       domain.EventVersionPublished,
		VersionID:       "ver-2",
		RecordID:        "product-9",
		VersionNumber:   "1.1.0",
		PreviousVersion: &previous,
		Action:          domain.AuditPublished,
		ActorID:         "user-7",
		ActorRole:       "editor",
		Reason:          "spring catalogue",
		Checksum:        "abc123",
		OccurredAt:      occurredAt,
		Metadata:        map[string]any{"source": "unit-test"},
	}

	if err := publisher.PublishVersionLifecycle(context.Background(), event); err != nil {
		t.Fatalf("PublishVersionLifecycle returned error: %v", err)
	}

	msg, envelope := receive(t, asyncProducer)
	if msg.Topic != "catalog.version.lifecycle" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	key, err := msg.Key.Encode()
	if err != nil || string(key) != event.RecordID {
		t.Fatalf("expected record id key, got %q (%v)", key, err)
	}

	if got := envelope["event_type"]; got != domain.EventVersionPublished {
		t.Fatalf("unexpected event_type: %v", got)
	}
	if got := envelope["event_id"]; got != event.EventID {
		t.Fatalf("unexpected event_id: %v", got)
	}
	if got := envelope["timestamp"]; got != occurredAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp: %v", got)
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	if payload["version_number"] != "1.1.0" || payload["previous_version"] != previous {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if payload["action"] != string(domain.AuditPublished) {
		t.Fatalf("unexpected action: %v", payload["action"])
	}
	if payload["checksum"] != "abc123" {
		t.Fatalf("unexpected checksum: %v", payload["checksum"])
	}

	metadata, ok := envelope["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
	}
	if metadata["service"] != "product-versions" || metadata["environment"] != "test" {
		t.Fatalf("unexpected envelope metadata: %v", metadata)
	}
}

func TestPublishVersionLifecycleAssignsEventID(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	err := publisher.PublishVersionLifecycle(context.Background(), domain.VersionLifecycleEvent{
		EventType: domain.EventVersionCreated,
		VersionID: "ver-1",
		RecordID:  "product-1",
	})
	if err != nil {
		t.Fatalf("PublishVersionLifecycle returned error: %v", err)
	}

	_, envelope := receive(t, asyncProducer)
	if id, _ := envelope["event_id"].(string); id == "" {
		t.Fatal("expected generated event id")
	}
	if _, ok := envelope["timestamp"].(string); !ok {
		t.Fatal("expected timestamp to be filled")
	}
}

func TestPublishHonoursContextCancellation(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)
	asyncProducer.input <- &sarama.ProducerMessage{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishVersionLifecycle(ctx, domain.VersionLifecycleEvent{EventType: domain.EventVersionCreated})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPublishAnalyticsEventRoundTripsThroughConsumer(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	event := domain.AnalyticsEvent{
		EventID:   "evt-1",
		Kind:      domain.AnalyticsRating,
		VersionID: "ver-1",
		Rating:    4,
	}
	if err := publisher.PublishAnalyticsEvent(context.Background(), event); err != nil {
		t.Fatalf("PublishAnalyticsEvent returned error: %v", err)
	}

	msg := <-asyncProducer.input
	if msg.Topic != "catalog.version.analytics" {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	value, err := msg.Value.Encode()
	if err != nil {
		t.Fatalf("Value.Encode returned error: %v", err)
	}

	handler := &stubAnalyticsHandler{}
	consumer := NewAnalyticsConsumer(handler, zaptest.NewLogger(t))
	if err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: value}); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(handler.events) != 1 || handler.events[0].Rating != 4 || handler.events[0].Kind != domain.AnalyticsRating {
		t.Fatalf("unexpected handled events: %+v", handler.events)
	}
}

func TestStubPublisher(t *testing.T) {
	publisher := NewStubPublisher(zaptest.NewLogger(t))
	if err := publisher.PublishVersionLifecycle(context.Background(), domain.VersionLifecycleEvent{EventType: domain.EventVersionDeleted}); err != nil {
		t.Fatalf("stub publisher returned error: %v", err)
	}
}

func TestTopicName(t *testing.T) {
	cases := []struct {
		prefix, event, want string
	}{
		{"", "version.lifecycle", "version.lifecycle"},
		{"catalog", "version.lifecycle", "catalog.version.lifecycle"},
		{"catalog", "catalog.version.lifecycle", "catalog.version.lifecycle"},
	}
	for _, tc := range cases {
		if got := topicName(tc.prefix, tc.event); got != tc.want {
			t.Fatalf("topicName(%q, %q) = %q, want %q", tc.prefix, tc.event, got, tc.want)
		}
	}
}
