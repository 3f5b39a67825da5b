package gateway

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestSimulatedBounds(t *testing.T) {
	ctx := context.Background()
	always := NewSimulated(1, zap.NewNop().Sugar())
	never := NewSimulated(0, zap.NewNop().Sugar())

	for i := 0; i < 50; i++ {
		ok, err := always.Charge(ctx, ChargeRequest{OrderID: 1, Amount: 10})
		if err != nil || !ok.Approved || ok.TransactionID == "" {
			t.Fatalf("rate 1 must approve: %+v %v", ok, err)
		}
		no, err := never.Charge(ctx, ChargeRequest{OrderID: 1, Amount: 10})
		if err != nil || no.Approved || no.Reason == "" {
			t.Fatalf("rate 0 must decline with a reason: %+v %v", no, err)
		}
	}
}

func TestSimulatedHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSimulated(1, zap.NewNop().Sugar()).Charge(ctx, ChargeRequest{}); err == nil {
		t.Fatal("expected context error")
	}
}
