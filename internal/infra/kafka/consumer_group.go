package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/infra/config"
)

// ConsumerGroup wraps a Sarama consumer group and keeps it joined until the context ends.
type ConsumerGroup struct {
	group  sarama.ConsumerGroup
	logger *zap.Logger
	cfg    config.KafkaSettings
}

// NewConsumerGroup joins the configured consumer group.
func NewConsumerGroup(cfg config.KafkaSettings, logger *zap.Logger) (*ConsumerGroup, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategySticky()}
	saramaConfig.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	logger.Info("Kafka consumer group initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("group", cfg.ConsumerGroup),
	)

	return &ConsumerGroup{group: group, logger: logger, cfg: cfg}, nil
}

// Run consumes the given topics until ctx is cancelled. Consume returns on every rebalance, so it is looped.
func (g *ConsumerGroup) Run(ctx context.Context, handler sarama.ConsumerGroupHandler, topics ...string) error {
	names := make([]string, 0, len(topics))
	for _, topic := range topics {
		names = append(names, topicName(g.cfg.TopicPrefix, topic))
	}

	go func() {
		for err := range g.group.Errors() {
			g.logger.Warn("Kafka consumer group error", zap.Error(err))
		}
	}()

	for {
		if err := g.group.Consume(ctx, names, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			g.logger.Error("Kafka consume failed", zap.Strings("topics", names), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the group.
func (g *ConsumerGroup) Close() error {
	g.logger.Info("Closing Kafka consumer group")
	if err := g.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	return nil
}
