// Package gateway is the payment processor boundary.
package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

type ChargeRequest struct {
	OrderID int64
	Amount  int64
	Method  string
}

type ChargeResult struct {
	Approved      bool
	TransactionID string
	Reason        string // set when declined
}

type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Func adapts a function to Gateway.
type Func func(ctx context.Context, req ChargeRequest) (ChargeResult, error)

func (f Func) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	return f(ctx, req)
}

// Simulated approves a charge with probability successRate.
type Simulated struct {
	successRate float64
	logger      *zap.SugaredLogger

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewSimulated(successRate float64, logger *zap.SugaredLogger) *Simulated {
	if successRate < 0 {
		successRate = 0
	}
	if successRate > 1 {
		successRate = 1
	}
	return &Simulated{
		successRate: successRate,
		logger:      logger,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Simulated) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}

	txID, err := uuid.NewV4()
	if err != nil {
		return ChargeResult{}, fmt.Errorf("generate transaction id: %w", err)
	}

	s.mu.Lock()
	roll := s.rnd.Float64()
	s.mu.Unlock()

	res := ChargeResult{TransactionID: txID.String(), Approved: roll < s.successRate}
	if !res.Approved {
		res.Reason = "Payment declined by processor"
	}
	s.logger.Infof("[order %d] simulated charge amount=%d method=%s approved=%v", req.OrderID, req.Amount, req.Method, res.Approved)
	return res, nil
}
