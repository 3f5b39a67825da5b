package bus

import (
	"context"
	"errors"
	"fmt"
	"marketplace/internal/application/events"
	"marketplace/internal/transport/producer"
	"marketplace/pkg/metrics"

	"go.uber.org/zap"
)

// ErrPoisonMessage marks a broker message that can never be decoded.
var ErrPoisonMessage = errors.New("undecodable message")

type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// InProcess dispatches synchronously inside the publishing process.
type InProcess struct {
	dispatcher *Dispatcher
	logger     *zap.SugaredLogger
	m          *metrics.Metrics
	// retryFailed makes Publish report subscriber failures so the relay
	// redelivers; subscribers that already succeeded are skipped by the ledger.
	retryFailed bool
}

type InProcessOption func(*InProcess)

func WithRetryFailed(enabled bool) InProcessOption {
	return func(b *InProcess) { b.retryFailed = enabled }
}

func NewInProcess(dispatcher *Dispatcher, logger *zap.SugaredLogger, m *metrics.Metrics, opts ...InProcessOption) *InProcess {
	b := &InProcess{dispatcher: dispatcher, logger: logger, m: m}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish succeeds even when a subscriber fails, unless WithRetryFailed is set.
// Recovering from a failed step is the subscriber's job, through its own failure event.
func (b *InProcess) Publish(ctx context.Context, env events.Envelope) error {
	if b.m != nil {
		b.m.Bus.PublishedTotal.WithLabelValues("inprocess", string(env.Kind)).Inc()
	}
	err := b.dispatcher.Dispatch(ctx, env)
	if err == nil {
		return nil
	}
	if b.retryFailed {
		return err
	}
	b.logger.Warnf("[event %s] %s delivered with subscriber failures: %v", env.ID, env.Kind, err)
	return nil
}

// Kafka publishes to the shared topic keyed by event kind; Receive runs the
// dispatch path for messages read back by the consumer group.
type Kafka struct {
	producer   producer.Producer
	dispatcher *Dispatcher
	logger     *zap.SugaredLogger
	m          *metrics.Metrics
}

func NewKafka(p producer.Producer, dispatcher *Dispatcher, logger *zap.SugaredLogger, m *metrics.Metrics) *Kafka {
	return &Kafka{producer: p, dispatcher: dispatcher, logger: logger, m: m}
}

func (b *Kafka) Publish(ctx context.Context, env events.Envelope) error {
	data, err := events.Encode(env)
	if err != nil {
		return err
	}
	if err := b.producer.ProduceMessage(ctx, string(env.Kind), data); err != nil {
		return fmt.Errorf("publish %s %s: %w", env.Kind, env.ID, err)
	}
	if b.m != nil {
		b.m.Bus.PublishedTotal.WithLabelValues("kafka", string(env.Kind)).Inc()
	}
	return nil
}

// Receive returns an error when the message should be redelivered.
func (b *Kafka) Receive(ctx context.Context, data []byte) error {
	env, err := events.Decode(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}
	b.logger.Debugf("[event %s] received %s", env.ID, env.Kind)
	return b.dispatcher.Dispatch(ctx, env)
}

func (b *Kafka) HealthCheck(ctx context.Context) error {
	return b.producer.HealthCheck(ctx)
}
