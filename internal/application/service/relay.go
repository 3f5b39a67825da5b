package service

import (
	"context"
	"fmt"
	"marketplace/internal/application/bus"
	"marketplace/internal/application/entity"
	"marketplace/internal/application/repo"
	"marketplace/pkg/config"
	"marketplace/pkg/metrics"
	"os"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// Relay moves outbox rows onto the event bus. Each poll claims a batch under
// a lease, so several relays can share one outbox without double-publishing
// inside the lease window.
type Relay struct {
	repo      repo.OutboxRepo
	publisher bus.Publisher
	cfg       config.RelayConfig
	owner     string
	logger    *zap.SugaredLogger
	m         *metrics.Metrics
}

func NewRelay(r repo.OutboxRepo, publisher bus.Publisher, cfg config.RelayConfig, logger *zap.SugaredLogger, m *metrics.Metrics) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 10
	}
	if cfg.PollPeriod <= 0 {
		cfg.PollPeriod = 2 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	owner := cfg.Instance
	if owner == "" {
		owner = defaultOwner()
	}
	return &Relay{repo: r, publisher: publisher, cfg: cfg, owner: owner, logger: logger, m: m}
}

func defaultOwner() string {
	host, _ := os.Hostname()
	id, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return fmt.Sprintf("%s-%s", host, id.String()[:8])
}

// Run polls until ctx is cancelled. A batch in flight when ctx ends is finished first.
func (r *Relay) Run(ctx context.Context) {
	r.logger.Infow("relay started", "owner", r.owner, "batch", r.cfg.BatchSize,
		"lease", r.cfg.Lease.String(), "poll", r.cfg.PollPeriod.String(), "maxRetries", r.cfg.MaxRetries)
	if r.m != nil {
		r.m.Go.InternalGoroutines.WithLabelValues("relay").Inc()
		defer r.m.Go.InternalGoroutines.WithLabelValues("relay").Dec()
	}

	ticker := time.NewTicker(r.cfg.PollPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Infow("relay stopping", "owner", r.owner)
			return
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil {
				r.logger.Errorw("relay batch failed", "err", err)
			}
		}
	}
}

// ProcessBatch publishes one claimed batch in OccurredOn order and returns how
// many rows were published.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	batch, err := r.repo.ClaimOutboxBatch(ctx, r.owner, r.cfg.Lease, r.cfg.BatchSize, r.cfg.MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("claim outbox batch: %w", err)
	}
	if r.m != nil {
		r.m.Outbox.BatchSize.Observe(float64(len(batch)))
		defer func() { r.m.Outbox.BatchDurationSeconds.Observe(time.Since(start).Seconds()) }()
	}
	if len(batch) == 0 {
		return 0, nil
	}
	r.logger.Debugf("relay %s claimed %d outbox rows", r.owner, len(batch))

	published := 0
	for _, msg := range batch {
		if r.processOne(ctx, msg) {
			published++
		}
	}
	return published, nil
}

func (r *Relay) processOne(ctx context.Context, msg entity.OutboxMessage) bool {
	r.logger.Debugf("[ID %d] relay-process started, type=%s", msg.ID, msg.EventTypeName)

	env, err := Envelope(msg)
	if err != nil {
		r.fail(ctx, msg, "undecodable", fmt.Errorf("decode: %w", err))
		return false
	}

	if err := r.publisher.Publish(ctx, env); err != nil {
		r.fail(ctx, msg, "failed", err)
		return false
	}

	if err := r.repo.MarkOutboxProcessed(ctx, msg.ID); err != nil {
		// already published; the lease expires and the row is published again,
		// which subscribers absorb through the ledger
		r.logger.Errorf("[ID %d] published but not marked processed: %v", msg.ID, err)
		return true
	}
	r.count(msg.EventTypeName, "published")
	r.logger.Infof("[ID %d] %s %s published", msg.ID, env.Kind, env.ID)
	return true
}

func (r *Relay) fail(ctx context.Context, msg entity.OutboxMessage, result string, cause error) {
	count, err := r.repo.MarkOutboxFailed(ctx, msg.ID, cause.Error())
	if err != nil {
		r.logger.Errorf("[ID %d] mark failed: %v (cause: %v)", msg.ID, err, cause)
		return
	}
	r.count(msg.EventTypeName, result)

	if count >= r.cfg.MaxRetries {
		r.count(msg.EventTypeName, "dead_lettered")
		r.logger.Errorf("[ID %d] %s reached %d failed attempts and is dead-lettered: %v", msg.ID, msg.EventTypeName, count, cause)
		return
	}
	r.logger.Warnf("[ID %d] %s failed (attempt %d of %d): %v", msg.ID, msg.EventTypeName, count, r.cfg.MaxRetries, cause)
}

func (r *Relay) count(eventType, result string) {
	if r.m != nil {
		r.m.Outbox.MessagesTotal.WithLabelValues(eventType, result).Inc()
	}
}
