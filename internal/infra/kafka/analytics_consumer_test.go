package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
)

type stubAnalyticsHandler struct {
	events []domain.AnalyticsEvent
	err    error
}

func (s *stubAnalyticsHandler) HandleEvent(_ context.Context, event domain.AnalyticsEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

type fakeSession struct {
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }

func (s *fakeSession) MemberID() string { return "member-1" }

func (s *fakeSession) GenerationID() int32 { return 1 }

func (s *fakeSession) MarkOffset(string, int32, int64, string) {}

func (s *fakeSession) Commit() {}

func (s *fakeSession) ResetOffset(string, int32, int64, string) {}

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) Context() context.Context { return s.ctx }

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string                            { return "catalog.version.analytics" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func encodeEvent(t *testing.T, event domain.AnalyticsEvent) []byte {
	t.Helper()
	bytes, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return bytes
}

func TestAnalyticsConsumerHandleMessage(t *testing.T) {
	handler := &stubAnalyticsHandler{}
	consumer := NewAnalyticsConsumer(handler, zaptest.NewLogger(t))

	event := domain.AnalyticsEvent{Kind: domain.AnalyticsView, VersionID: "ver-1", ViewerID: "viewer-1"}
	if err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: encodeEvent(t, event)}); err != nil {
		t.Fatalf("HandleMessage returned error: %v", err)
	}
	if len(handler.events) != 1 || handler.events[0].ViewerID != "viewer-1" {
		t.Fatalf("unexpected handled events: %+v", handler.events)
	}

	if err := consumer.HandleMessage(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil message")
	}
	err := consumer.HandleMessage(context.Background(), &sarama.ConsumerMessage{Value: []byte("{not json")})
	if !errors.Is(err, errPoisonMessage) {
		t.Fatalf("expected poison message error, got %v", err)
	}
}

func TestAnalyticsConsumerClassifiesFailures(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		poison bool
	}{
		{"validation", domain.NewValidationError(domain.ValidationIssue{Field: "rating"}), true},
		{"not found", domain.ErrNotFound, true},
		{"transient", errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			consumer := NewAnalyticsConsumer(&stubAnalyticsHandler{err: tc.err}, zaptest.NewLogger(t))
			err := consumer.HandleEvent(context.Background(), domain.AnalyticsEvent{Kind: domain.AnalyticsView})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, errPoisonMessage); got != tc.poison {
				t.Fatalf("poison = %v, want %v (%v)", got, tc.poison, err)
			}
		})
	}
}

func TestAnalyticsConsumerConsumeClaim(t *testing.T) {
	handler := &stubAnalyticsHandler{}
	consumer := NewAnalyticsConsumer(handler, zaptest.NewLogger(t))

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 3)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 1, Value: encodeEvent(t, domain.AnalyticsEvent{Kind: domain.AnalyticsShare, VersionID: "ver-1"})}
	claim.messages <- &sarama.ConsumerMessage{Offset: 2, Value: []byte("garbage")}
	claim.messages <- &sarama.ConsumerMessage{Offset: 3, Value: encodeEvent(t, domain.AnalyticsEvent{Kind: domain.AnalyticsDownload, VersionID: "ver-1"})}
	close(claim.messages)

	session := &fakeSession{ctx: context.Background()}
	if err := consumer.ConsumeClaim(session, claim); err != nil {
		t.Fatalf("ConsumeClaim returned error: %v", err)
	}
	if len(handler.events) != 2 {
		t.Fatalf("expected 2 applied events, got %d", len(handler.events))
	}
	if len(session.marked) != 3 {
		t.Fatalf("expected every message marked, got %v", session.marked)
	}
}

func TestAnalyticsConsumerStopsOnTransientFailure(t *testing.T) {
	consumer := NewAnalyticsConsumer(&stubAnalyticsHandler{err: errors.New("db down")}, zaptest.NewLogger(t))

	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage, 1)}
	claim.messages <- &sarama.ConsumerMessage{Offset: 7, Value: encodeEvent(t, domain.AnalyticsEvent{Kind: domain.AnalyticsView, VersionID: "ver-1"})}

	session := &fakeSession{ctx: context.Background()}
	if err := consumer.ConsumeClaim(session, claim); err == nil {
		t.Fatal("expected transient failure to end the claim")
	}
	if len(session.marked) != 0 {
		t.Fatalf("failed message must not be marked, got %v", session.marked)
	}
}
