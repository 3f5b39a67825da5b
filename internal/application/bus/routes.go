// Package bus delivers integration events to their subscribers. Two backends
// share one dispatch path: InProcess calls it directly on Publish, Kafka calls
// it from the consumer-group receive loop.
package bus

import (
	"context"
	"fmt"
	"marketplace/internal/application/events"
)

// Handler runs one saga step. Handlers persist their effects through scope.Commit
// so the ledger row and the state change land in the same transaction.
type Handler func(ctx context.Context, env events.Envelope, scope *Scope) error

type Subscription struct {
	Kind     events.Kind
	Consumer string
	Handle   Handler
}

// On builds a subscription whose handler receives the concrete payload type.
func On[P events.Payload](consumer string, fn func(ctx context.Context, env events.Envelope, p P, scope *Scope) error) Subscription {
	var zero P
	return Subscription{
		Kind:     zero.Kind(),
		Consumer: consumer,
		Handle: func(ctx context.Context, env events.Envelope, scope *Scope) error {
			p, ok := env.Payload.(P)
			if !ok {
				return fmt.Errorf("%s: payload %T is not %T", consumer, env.Payload, zero)
			}
			return fn(ctx, env, p, scope)
		},
	}
}

type routeKey struct {
	kind     events.Kind
	consumer string
}

// RoutesBuilder collects subscriptions during startup.
type RoutesBuilder struct {
	subs []Subscription
	seen map[routeKey]struct{}
}

func NewRoutes() *RoutesBuilder {
	return &RoutesBuilder{seen: make(map[routeKey]struct{})}
}

// Subscribe registers s. A second registration of the same consumer for the same kind is ignored.
func (b *RoutesBuilder) Subscribe(subs ...Subscription) *RoutesBuilder {
	for _, s := range subs {
		k := routeKey{s.Kind, s.Consumer}
		if _, dup := b.seen[k]; dup {
			continue
		}
		b.seen[k] = struct{}{}
		b.subs = append(b.subs, s)
	}
	return b
}

func (b *RoutesBuilder) Build() *Routes {
	r := &Routes{byKind: make(map[events.Kind][]Subscription)}
	for _, s := range b.subs {
		r.byKind[s.Kind] = append(r.byKind[s.Kind], s)
	}
	return r
}

// Routes is the immutable routing table shared by both bus backends.
type Routes struct {
	byKind map[events.Kind][]Subscription
}

// For returns the subscriptions of kind in registration order.
func (r *Routes) For(kind events.Kind) []Subscription {
	subs := r.byKind[kind]
	out := make([]Subscription, len(subs))
	copy(out, subs)
	return out
}

func (r *Routes) Consumers(kind events.Kind) []string {
	subs := r.byKind[kind]
	names := make([]string, len(subs))
	for i, s := range subs {
		names[i] = s.Consumer
	}
	return names
}
