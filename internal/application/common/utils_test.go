package common

import (
	"context"
	"testing"
	"time"
)

func TestNextBackoffWithJitter(t *testing.T) {
	tests := []struct {
		attempts int
		min, max time.Duration
	}{
		{-1, 500 * time.Millisecond, time.Second},
		{0, 500 * time.Millisecond, time.Second},
		{3, 4 * time.Second, 8 * time.Second},
		{40, 15 * time.Minute, 30 * time.Minute},
	}
	for _, tt := range tests {
		for i := 0; i < 20; i++ {
			got := NextBackoffWithJitter(tt.attempts)
			if got < tt.min || got > tt.max {
				t.Fatalf("attempts=%d: backoff %s not in [%s, %s]", tt.attempts, got, tt.min, tt.max)
			}
		}
	}
}

func TestSleepCtxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := SleepCtx(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := SleepCtx(ctx, 0); err != nil {
		t.Fatalf("zero duration should not fail, got %v", err)
	}
}

func TestPgInterval(t *testing.T) {
	if got := PgInterval(90 * time.Second); got != "90 seconds" {
		t.Fatalf("got %q", got)
	}
	if got := PgInterval(10 * time.Millisecond); got != "1 seconds" {
		t.Fatalf("sub-second lease must round up, got %q", got)
	}
}

func TestPaymentKey(t *testing.T) {
	if got := PaymentKey(42); got != "Order-42" {
		t.Fatalf("got %q", got)
	}
}
