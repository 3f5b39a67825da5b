package listener

import (
	"context"
	"errors"
	"fmt"
	"marketplace/internal/application/bus"
	"marketplace/internal/application/common"
	"marketplace/pkg/metrics"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// MessageConsumer is the part of the use case layer the listener drives.
type MessageConsumer interface {
	ConsumeMessage(ctx context.Context, data []byte) error
}

type offsetKey struct {
	topic     string
	partition int32
	offset    int64
}

// KafkaBrokerConsumer commits an offset only once every subscriber of the
// message succeeded, the message is poison, or MaxDeliveries ran out.
// A failed message ends the claim so the group session restarts from the
// last committed offset and the message is read again.
type KafkaBrokerConsumer struct {
	usecase       MessageConsumer
	logger        *zap.SugaredLogger
	m             *metrics.Metrics
	maxDeliveries int
	backoff       func(attempts int) time.Duration

	mu         sync.Mutex
	deliveries map[offsetKey]int
}

func NewKafkaBrokerConsumer(usecase MessageConsumer, logger *zap.SugaredLogger, maxDeliveries int, m *metrics.Metrics) *KafkaBrokerConsumer {
	if maxDeliveries < 1 {
		maxDeliveries = 1
	}
	return &KafkaBrokerConsumer{
		logger:        logger,
		usecase:       usecase,
		m:             m,
		maxDeliveries: maxDeliveries,
		backoff:       common.NextBackoffWithJitter,
		deliveries:    make(map[offsetKey]int),
	}
}

func (k *KafkaBrokerConsumer) Setup(session sarama.ConsumerGroupSession) error {
	k.logger.Info("Kafka setup success")
	if k.m != nil {
		k.m.Kafka.ConsumerRebalancesTotal.WithLabelValues("setup").Inc()
	}
	return nil
}

func (k *KafkaBrokerConsumer) Cleanup(session sarama.ConsumerGroupSession) error {
	k.logger.Info("Kafka cleanup success")
	if k.m != nil {
		k.m.Kafka.ConsumerRebalancesTotal.WithLabelValues("cleanup").Inc()
	}
	return nil
}

func (k *KafkaBrokerConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	topic := claim.Topic()

	for msg := range claim.Messages() {
		if k.m != nil {
			k.m.Kafka.ConsumerInFlight.WithLabelValues(topic).Inc()
		}
		start := time.Now()
		k.logger.Debugf("Message topic:%q partition:%d offset:%d key:%s", msg.Topic, msg.Partition, msg.Offset, msg.Key)

		key := offsetKey{topic: msg.Topic, partition: msg.Partition, offset: msg.Offset}
		result, err := k.handle(session.Context(), key, msg.Value)
		if k.m != nil {
			k.m.Kafka.ConsumerMessagesTotal.WithLabelValues(topic, result).Inc()
			k.m.Kafka.ConsumerProcessDuration.WithLabelValues(topic).Observe(time.Since(start).Seconds())
			k.m.Kafka.ConsumerInFlight.WithLabelValues(topic).Dec()
		}

		if err != nil {
			return err
		}
		session.MarkMessage(msg, "")
	}

	return nil
}

// handle reports the outcome label and a non-nil error when the message must be read again.
func (k *KafkaBrokerConsumer) handle(ctx context.Context, key offsetKey, value []byte) (string, error) {
	err := k.usecase.ConsumeMessage(ctx, value)
	switch {
	case err == nil:
		k.forget(key)
		return "ok", nil
	case errors.Is(err, bus.ErrPoisonMessage):
		k.logger.Errorf("skipping poison message %s/%d@%d: %v", key.topic, key.partition, key.offset, err)
		k.forget(key)
		return "poison", nil
	}

	n := k.delivered(key)
	if n >= k.maxDeliveries {
		k.logger.Errorf("giving up on %s/%d@%d after %d deliveries: %v", key.topic, key.partition, key.offset, n, err)
		k.forget(key)
		return "gave_up", nil
	}

	k.logger.Warnf("message %s/%d@%d failed (delivery %d/%d), will be redelivered: %v",
		key.topic, key.partition, key.offset, n, k.maxDeliveries, err)
	_ = common.SleepCtx(ctx, k.backoff(n-1))
	return "retry", fmt.Errorf("redeliver %s/%d@%d: %w", key.topic, key.partition, key.offset, err)
}

func (k *KafkaBrokerConsumer) delivered(key offsetKey) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.deliveries[key]++
	return k.deliveries[key]
}

func (k *KafkaBrokerConsumer) forget(key offsetKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.deliveries, key)
}
