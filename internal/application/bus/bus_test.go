package bus

import (
	"context"
	"errors"
	"marketplace/internal/application/events"
	"marketplace/internal/application/repo/memory"
	"reflect"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func recordingSub(rec *recorder, consumer string) Subscription {
	return On(consumer, func(ctx context.Context, env events.Envelope, p events.OrderConfirmed, scope *Scope) error {
		rec.add(consumer)
		return nil
	})
}

func newEnvelope(t *testing.T, p events.Payload) events.Envelope {
	t.Helper()
	env, err := events.New(p)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func newDispatcher(routes *Routes) (*Dispatcher, *memory.Store) {
	logger := zap.NewNop().Sugar()
	store := memory.NewStore(logger)
	return NewDispatcher(routes, store, store, logger, nil), store
}

func TestRoutes_SubscribeIsIdempotentAndOrdered(t *testing.T) {
	rec := &recorder{}
	routes := NewRoutes().
		Subscribe(recordingSub(rec, "b"), recordingSub(rec, "a")).
		Subscribe(recordingSub(rec, "b"), recordingSub(rec, "c")).
		Build()

	got := routes.Consumers(events.KindOrderConfirmed)
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("consumers = %v, want %v", got, want)
	}
	if n := len(routes.For(events.KindOrderCreated)); n != 0 {
		t.Fatalf("unexpected subscribers for OrderCreated: %d", n)
	}
}

func TestNewDispatcher_LogsRoutingTable(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	rec := &recorder{}
	routes := NewRoutes().Subscribe(recordingSub(rec, "notify"), recordingSub(rec, "audit")).Build()

	NewDispatcher(routes, nil, nil, zap.New(core).Sugar(), nil)

	entries := logs.All()
	if len(entries) != 1 || entries[0].Message != "route OrderConfirmed -> notify, audit" {
		t.Fatalf("logged %v", entries)
	}
}

func TestRoutes_ForReturnsCopy(t *testing.T) {
	rec := &recorder{}
	routes := NewRoutes().Subscribe(recordingSub(rec, "a")).Build()
	subs := routes.For(events.KindOrderConfirmed)
	subs[0].Consumer = "mutated"
	if routes.Consumers(events.KindOrderConfirmed)[0] != "a" {
		t.Fatal("routing table changed through returned slice")
	}
}

func TestDispatch_LedgerBlocksSecondDelivery(t *testing.T) {
	rec := &recorder{}
	d, store := newDispatcher(NewRoutes().Subscribe(recordingSub(rec, "notify")).Build())
	env := newEnvelope(t, events.OrderConfirmed{OrderID: 1})

	for i := 0; i < 3; i++ {
		if err := d.Dispatch(context.Background(), env); err != nil {
			t.Fatal(err)
		}
	}
	if got := rec.list(); len(got) != 1 {
		t.Fatalf("handler ran %d times, want 1", len(got))
	}
	done, err := store.IsProcessed(context.Background(), env.ID, "notify")
	if err != nil || !done {
		t.Fatalf("ledger entry missing: %v %v", done, err)
	}
}

func TestDispatch_FailingSubscriberDoesNotStopOthers(t *testing.T) {
	rec := &recorder{}
	boom := errors.New("boom")
	failing := On("failing", func(ctx context.Context, env events.Envelope, p events.OrderConfirmed, scope *Scope) error {
		return boom
	})
	d, store := newDispatcher(NewRoutes().Subscribe(failing, recordingSub(rec, "ok")).Build())
	env := newEnvelope(t, events.OrderConfirmed{OrderID: 2})

	err := d.Dispatch(context.Background(), env)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if got := rec.list(); !reflect.DeepEqual(got, []string{"ok"}) {
		t.Fatalf("calls = %v", got)
	}
	if done, _ := store.IsProcessed(context.Background(), env.ID, "failing"); done {
		t.Fatal("failed handler must not be recorded")
	}

	// redelivery only retries the failed subscriber
	_ = d.Dispatch(context.Background(), env)
	if got := rec.list(); len(got) != 1 {
		t.Fatalf("successful subscriber ran again: %v", got)
	}
}

func TestDispatch_RecoversPanic(t *testing.T) {
	panicking := On("panicking", func(ctx context.Context, env events.Envelope, p events.OrderConfirmed, scope *Scope) error {
		panic("kaboom")
	})
	d, _ := newDispatcher(NewRoutes().Subscribe(panicking).Build())

	err := d.Dispatch(context.Background(), newEnvelope(t, events.OrderConfirmed{OrderID: 3}))
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestScope_CommitRollsBackWithLedger(t *testing.T) {
	calls := 0
	fail := true
	sub := On("writer", func(ctx context.Context, env events.Envelope, p events.OrderConfirmed, scope *Scope) error {
		calls++
		return scope.Commit(ctx, func(ctx context.Context) error {
			if fail {
				return errors.New("write failed")
			}
			return nil
		})
	})
	d, store := newDispatcher(NewRoutes().Subscribe(sub).Build())
	env := newEnvelope(t, events.OrderConfirmed{OrderID: 4})

	if err := d.Dispatch(context.Background(), env); err == nil {
		t.Fatal("expected error")
	}
	if done, _ := store.IsProcessed(context.Background(), env.ID, "writer"); done {
		t.Fatal("ledger row survived a rolled back commit")
	}

	fail = false
	if err := d.Dispatch(context.Background(), env); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
}

func TestScope_CommitTwiceFails(t *testing.T) {
	var second error
	sub := On("double", func(ctx context.Context, env events.Envelope, p events.OrderConfirmed, scope *Scope) error {
		if err := scope.Commit(ctx, nil); err != nil {
			return err
		}
		second = scope.Commit(ctx, nil)
		return nil
	})
	d, _ := newDispatcher(NewRoutes().Subscribe(sub).Build())
	if err := d.Dispatch(context.Background(), newEnvelope(t, events.OrderConfirmed{OrderID: 5})); err != nil {
		t.Fatal(err)
	}
	if second == nil {
		t.Fatal("second commit on the same scope must fail")
	}
}

func TestInProcess_SwallowsFailuresUnlessRetryEnabled(t *testing.T) {
	failing := On("failing", func(ctx context.Context, env events.Envelope, p events.OrderConfirmed, scope *Scope) error {
		return errors.New("down")
	})
	routes := NewRoutes().Subscribe(failing).Build()

	d, _ := newDispatcher(routes)
	b := NewInProcess(d, zap.NewNop().Sugar(), nil)
	if err := b.Publish(context.Background(), newEnvelope(t, events.OrderConfirmed{OrderID: 6})); err != nil {
		t.Fatalf("default publish reported %v", err)
	}

	d, _ = newDispatcher(routes)
	b = NewInProcess(d, zap.NewNop().Sugar(), nil, WithRetryFailed(true))
	if err := b.Publish(context.Background(), newEnvelope(t, events.OrderConfirmed{OrderID: 6})); err == nil {
		t.Fatal("retrying publish must report subscriber failure")
	}
}

type fakeProducer struct {
	keys     []string
	messages [][]byte
	err      error
}

func (f *fakeProducer) ProduceMessage(ctx context.Context, key string, message []byte) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeProducer) HealthCheck(ctx context.Context) error { return f.err }

func TestKafka_PublishThenReceive(t *testing.T) {
	rec := &recorder{}
	d, _ := newDispatcher(NewRoutes().Subscribe(recordingSub(rec, "notify")).Build())
	p := &fakeProducer{}
	b := NewKafka(p, d, zap.NewNop().Sugar(), nil)

	env := newEnvelope(t, events.OrderConfirmed{OrderID: 7})
	if err := b.Publish(context.Background(), env); err != nil {
		t.Fatal(err)
	}
	if len(p.keys) != 1 || p.keys[0] != string(events.KindOrderConfirmed) {
		t.Fatalf("routing keys = %v", p.keys)
	}

	// the broker may hand the same message over twice
	for i := 0; i < 2; i++ {
		if err := b.Receive(context.Background(), p.messages[0]); err != nil {
			t.Fatal(err)
		}
	}
	if got := rec.list(); len(got) != 1 {
		t.Fatalf("handler ran %d times, want 1", len(got))
	}
}

func TestKafka_ReceivePoison(t *testing.T) {
	d, _ := newDispatcher(NewRoutes().Build())
	b := NewKafka(&fakeProducer{}, d, zap.NewNop().Sugar(), nil)

	err := b.Receive(context.Background(), []byte(`{"kind":"Nope"}`))
	if !errors.Is(err, ErrPoisonMessage) {
		t.Fatalf("err = %v, want ErrPoisonMessage", err)
	}
}

func TestKafka_PublishError(t *testing.T) {
	d, _ := newDispatcher(NewRoutes().Build())
	down := errors.New("broker down")
	b := NewKafka(&fakeProducer{err: down}, d, zap.NewNop().Sugar(), nil)

	if err := b.Publish(context.Background(), newEnvelope(t, events.OrderConfirmed{OrderID: 8})); !errors.Is(err, down) {
		t.Fatalf("err = %v", err)
	}
}
