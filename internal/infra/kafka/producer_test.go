package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/infra/config"
)

func TestProducerLogsDeliveryErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	asyncProducer := newFakeAsyncProducer()
	producer := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: "catalog"}, zap.New(core))

	asyncProducer.errors <- &sarama.ProducerError{
		Msg: &sarama.ProducerMessage{Topic: "catalog.version.lifecycle", Partition: 2},
		Err: errors.New("broker unavailable"),
	}

	deadline := time.Now().Add(time.Second)
	for logs.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := producer.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	entries := logs.FilterMessage("Kafka producer error").All()
	if len(entries) != 1 {
		t.Fatalf("expected one logged delivery error, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["topic"]; got != "catalog.version.lifecycle" {
		t.Fatalf("unexpected topic field: %v", got)
	}
}
