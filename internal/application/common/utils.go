package common

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Version is overridden at build time with -ldflags "-X marketplace/internal/application/common.Version=...".
var Version = "0.1.0"

func PgInterval(d time.Duration) string {
	sec := int64(d / time.Second)
	if sec < 1 {
		sec = 1
	}
	return fmt.Sprintf("%d seconds", sec)
}

func NextBackoffWithJitter(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 20 {
		attempts = 20
	}

	base := time.Second << attempts

	limit := 30 * time.Minute
	if base > limit {
		base = limit
	}

	jitter := time.Duration(rand.Int63n(int64(base / 2)))

	return base/2 + jitter
}

func SleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PaymentKey is the idempotency key the saga uses when charging an order.
func PaymentKey(orderID int64) string {
	return fmt.Sprintf("Order-%d", orderID)
}
