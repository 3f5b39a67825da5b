package listener

import (
	"context"
	"errors"
	"fmt"
	"marketplace/internal/application/bus"
	"testing"
	"time"

	"go.uber.org/zap"
)

type consumerFunc func(ctx context.Context, data []byte) error

func (f consumerFunc) ConsumeMessage(ctx context.Context, data []byte) error { return f(ctx, data) }

func newTestConsumer(fn consumerFunc, maxDeliveries int) *KafkaBrokerConsumer {
	k := NewKafkaBrokerConsumer(fn, zap.NewNop().Sugar(), maxDeliveries, nil)
	k.backoff = func(int) time.Duration { return 0 }
	return k
}

func TestHandle_OkMarks(t *testing.T) {
	k := newTestConsumer(func(context.Context, []byte) error { return nil }, 3)
	result, err := k.handle(context.Background(), offsetKey{"t", 0, 1}, []byte("{}"))
	if err != nil || result != "ok" {
		t.Fatalf("got %q, %v", result, err)
	}
}

func TestHandle_PoisonIsSkipped(t *testing.T) {
	k := newTestConsumer(func(context.Context, []byte) error {
		return fmt.Errorf("%w: bad json", bus.ErrPoisonMessage)
	}, 3)
	result, err := k.handle(context.Background(), offsetKey{"t", 0, 1}, []byte("nope"))
	if err != nil || result != "poison" {
		t.Fatalf("got %q, %v", result, err)
	}
}

func TestHandle_RedeliversThenGivesUp(t *testing.T) {
	boom := errors.New("handler failed")
	calls := 0
	k := newTestConsumer(func(context.Context, []byte) error {
		calls++
		return boom
	}, 3)
	key := offsetKey{"t", 2, 40}

	for i := 1; i < 3; i++ {
		result, err := k.handle(context.Background(), key, nil)
		if result != "retry" || !errors.Is(err, boom) {
			t.Fatalf("delivery %d: got %q, %v", i, result, err)
		}
	}
	result, err := k.handle(context.Background(), key, nil)
	if result != "gave_up" || err != nil {
		t.Fatalf("last delivery: got %q, %v", result, err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(k.deliveries) != 0 {
		t.Fatalf("delivery counter not cleared: %v", k.deliveries)
	}
}

func TestHandle_SuccessResetsCounter(t *testing.T) {
	fail := true
	k := newTestConsumer(func(context.Context, []byte) error {
		if fail {
			return errors.New("transient")
		}
		return nil
	}, 2)
	key := offsetKey{"t", 0, 7}

	if result, _ := k.handle(context.Background(), key, nil); result != "retry" {
		t.Fatalf("first delivery: %q", result)
	}
	fail = false
	if result, err := k.handle(context.Background(), key, nil); result != "ok" || err != nil {
		t.Fatalf("second delivery: %q, %v", result, err)
	}
	if _, ok := k.deliveries[key]; ok {
		t.Fatal("counter kept after success")
	}
}
