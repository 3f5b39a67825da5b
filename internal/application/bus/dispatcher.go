package bus

import (
	"context"
	"errors"
	"fmt"
	"marketplace/internal/appers"
	"marketplace/internal/application/events"
	"marketplace/internal/application/repo"
	"marketplace/pkg/metrics"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Scope is the unit of work of one handler invocation.
type Scope struct {
	env       events.Envelope
	consumer  string
	tx        repo.TxManager
	ledger    repo.Ledger
	committed bool
}

// Commit records the ledger entry and runs fn in one transaction. It returns
// appers.ErrAlreadyProcessed, and runs nothing, when another delivery of the
// same message already committed for this consumer.
func (s *Scope) Commit(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.committed {
		return fmt.Errorf("%s: scope for %s already committed", s.consumer, s.env.ID)
	}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		inserted, err := s.ledger.MarkProcessed(ctx, s.env.ID, s.consumer)
		if err != nil {
			return err
		}
		if !inserted {
			return appers.ErrAlreadyProcessed
		}
		if fn == nil {
			return nil
		}
		return fn(ctx)
	})
	if err != nil {
		return err
	}
	s.committed = true
	return nil
}

func (s *Scope) Consumer() string { return s.consumer }

type Dispatcher struct {
	routes *Routes
	tx     repo.TxManager
	ledger repo.Ledger
	logger *zap.SugaredLogger
	m      *metrics.Metrics
}

// NewDispatcher logs the routing table once so a missing subscription shows up at startup.
func NewDispatcher(routes *Routes, tx repo.TxManager, ledger repo.Ledger, logger *zap.SugaredLogger, m *metrics.Metrics) *Dispatcher {
	for _, kind := range events.Kinds {
		if names := routes.Consumers(kind); len(names) > 0 {
			logger.Infof("route %s -> %s", kind, strings.Join(names, ", "))
		}
	}
	return &Dispatcher{routes: routes, tx: tx, ledger: ledger, logger: logger, m: m}
}

// Dispatch runs every subscriber of env.Kind in registration order. A failing
// subscriber does not stop the others; all failures are joined into the result.
func (d *Dispatcher) Dispatch(ctx context.Context, env events.Envelope) error {
	subs := d.routes.For(env.Kind)
	if len(subs) == 0 {
		d.logger.Debugf("[event %s] no subscribers for %s", env.ID, env.Kind)
		return nil
	}

	var errs []error
	for _, s := range subs {
		if err := d.invoke(ctx, env, s); err != nil {
			d.logger.Errorf("[event %s] %s handler %s failed: %v", env.ID, env.Kind, s.Consumer, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Consumer, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) invoke(ctx context.Context, env events.Envelope, s Subscription) (err error) {
	start := time.Now()
	result := "ok"
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		if err != nil {
			result = "error"
		}
		if d.m != nil {
			d.m.Bus.DispatchTotal.WithLabelValues(string(env.Kind), s.Consumer, result).Inc()
			d.m.Bus.HandlerDurationSeconds.WithLabelValues(string(env.Kind), s.Consumer).Observe(time.Since(start).Seconds())
		}
	}()

	done, err := d.ledger.IsProcessed(ctx, env.ID, s.Consumer)
	if err != nil {
		return err
	}
	if done {
		result = "skipped"
		d.logger.Infof("[event %s] %s already handled by %s, skipping", env.ID, env.Kind, s.Consumer)
		return nil
	}

	scope := &Scope{env: env, consumer: s.Consumer, tx: d.tx, ledger: d.ledger}
	err = s.Handle(ctx, env, scope)
	if err == nil && !scope.committed {
		err = scope.Commit(ctx, nil)
	}
	if errors.Is(err, appers.ErrAlreadyProcessed) {
		result = "skipped"
		d.logger.Infof("[event %s] %s committed concurrently by %s, skipping", env.ID, env.Kind, s.Consumer)
		return nil
	}
	return err
}
