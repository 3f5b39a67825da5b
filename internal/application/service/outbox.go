package service

import (
	"context"
	"encoding/json"
	"fmt"
	"marketplace/internal/application/entity"
	"marketplace/internal/application/events"
	"marketplace/internal/application/repo"

	"go.uber.org/zap"
)

// Outbox appends integration events to the outbox table. Append must run with
// the ctx of the transaction whose state change the event announces.
type Outbox struct {
	repo   repo.OutboxRepo
	logger *zap.SugaredLogger
}

func NewOutbox(r repo.OutboxRepo, logger *zap.SugaredLogger) *Outbox {
	return &Outbox{repo: r, logger: logger}
}

func (o *Outbox) Append(ctx context.Context, p events.Payload) (events.Envelope, error) {
	env, err := events.New(p)
	if err != nil {
		return env, err
	}
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return env, fmt.Errorf("marshal %s: %w", env.Kind, err)
	}

	msg := entity.OutboxMessage{
		EventID:       env.ID,
		EventTypeName: string(env.Kind),
		Payload:       payload,
		OccurredOn:    env.OccurredOn,
	}
	if err := o.repo.InsertOutbox(ctx, &msg); err != nil {
		return env, err
	}
	o.logger.Debugf("[ID %d] %s %s appended to outbox", msg.ID, env.Kind, env.ID)
	return env, nil
}

// Envelope rebuilds the event stored in an outbox row.
func Envelope(m entity.OutboxMessage) (events.Envelope, error) {
	p, err := events.DecodePayload(events.Kind(m.EventTypeName), m.Payload)
	if err != nil {
		return events.Envelope{}, err
	}
	return events.Envelope{ID: m.EventID, Kind: p.Kind(), OccurredOn: m.OccurredOn, Payload: p}, nil
}
