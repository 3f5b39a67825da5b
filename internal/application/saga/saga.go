// Package saga holds the checkout choreography. Each handler performs one step
// for one event kind and appends the next event to the outbox in the same
// transaction as its state change and its ledger entry.
package saga

import (
	"context"
	"errors"
	"fmt"
	"marketplace/internal/appers"
	"marketplace/internal/application/bus"
	"marketplace/internal/application/common"
	"marketplace/internal/application/entity"
	"marketplace/internal/application/events"
	"marketplace/internal/application/service"
	"marketplace/internal/transport/notifier"

	"go.uber.org/zap"
)

// Consumer names are stored in the idempotency ledger; renaming one makes
// already handled events look new to it.
const (
	ConsumerOrderCreated           = "OrderCreatedHandler"
	ConsumerStockReserved          = "StockReservedHandler"
	ConsumerStockReservationFailed = "StockReservationFailedHandler"
	ConsumerPaymentCompleted       = "PaymentCompletedHandler"
	ConsumerPaymentFailed          = "PaymentFailedHandler"
	ConsumerOrderCancelled         = "OrderCancelledHandler"
	ConsumerUserRegistered         = "UserRegisteredHandler"
)

type Handlers struct {
	svc      service.Service
	outbox   *service.Outbox
	notifier notifier.Notifier
	logger   *zap.SugaredLogger
}

func NewHandlers(svc service.Service, outbox *service.Outbox, n notifier.Notifier, logger *zap.SugaredLogger) *Handlers {
	return &Handlers{svc: svc, outbox: outbox, notifier: n, logger: logger}
}

// Routes builds the routing table of the saga. extra subscriptions are
// registered after the saga's own, in the order given.
func Routes(h *Handlers, extra ...bus.Subscription) *bus.Routes {
	return bus.NewRoutes().
		Subscribe(
			bus.On(ConsumerOrderCreated, h.OrderCreated),
			bus.On(ConsumerStockReserved, h.StockReserved),
			bus.On(ConsumerStockReservationFailed, h.StockReservationFailed),
			bus.On(ConsumerPaymentCompleted, h.PaymentCompleted),
			bus.On(ConsumerPaymentFailed, h.PaymentFailed),
			bus.On(ConsumerOrderCancelled, h.OrderCancelled),
			bus.On(ConsumerUserRegistered, h.UserRegistered),
		).
		Subscribe(extra...).
		Build()
}

// OrderCreated confirms the reservation made at checkout. Stock is deducted
// synchronously there, so an order without deducted stock means the
// reservation was lost and the order has to be cancelled.
func (h *Handlers) OrderCreated(ctx context.Context, env events.Envelope, e events.OrderCreated, scope *bus.Scope) error {
	h.logger.Infof("[ID %d] handling OrderCreated", e.OrderID)

	detail, err := h.svc.GetOrder(ctx, e.OrderID)
	if errors.Is(err, appers.ErrOrderNotFound) {
		h.logger.Errorf("[ID %d] order not found, dropping OrderCreated", e.OrderID)
		return nil
	}
	if err != nil {
		return err
	}

	return scope.Commit(ctx, func(ctx context.Context) error {
		if !detail.Order.StockDeducted && detail.Order.OrderStatus == entity.OrderPending {
			_, err := h.outbox.Append(ctx, events.StockReservationFailed{OrderID: e.OrderID, Reason: "stock was not reserved at checkout"})
			return err
		}
		_, err := h.outbox.Append(ctx, events.StockReserved{OrderID: e.OrderID})
		return err
	})
}

// StockReserved charges the order. The gateway call happens outside any
// transaction; a redelivery reuses the key Order-{id} and gets the recorded
// result back instead of a second charge. A payment error is a failed payment,
// so the order moves on to cancellation instead of waiting.
func (h *Handlers) StockReserved(ctx context.Context, env events.Envelope, e events.StockReserved, scope *bus.Scope) error {
	h.logger.Infof("[ID %d] handling StockReserved", e.OrderID)

	detail, err := h.svc.GetOrder(ctx, e.OrderID)
	if errors.Is(err, appers.ErrOrderNotFound) {
		h.logger.Errorf("[ID %d] order not found, skipping payment", e.OrderID)
		return nil
	}
	if err != nil {
		return err
	}
	if detail.Order.OrderStatus == entity.OrderCancelled {
		h.logger.Warnf("[ID %d] order is cancelled, skipping payment", e.OrderID)
		return nil
	}

	resp, err := h.svc.ProcessPayment(ctx, entity.PaymentRequest{
		OrderID:        e.OrderID,
		Amount:         detail.Order.TotalAmount,
		PaymentMethod:  detail.Order.PaymentMethod,
		IdempotencyKey: common.PaymentKey(e.OrderID),
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		// shutting down: leave the event for redelivery
		return ctxErr
	}

	var next events.Payload
	switch {
	case err != nil:
		h.logger.Errorf("[ID %d] payment error: %v", e.OrderID, err)
		next = events.PaymentFailed{OrderID: e.OrderID, Reason: err.Error()}
	case resp.Success:
		h.logger.Infof("[ID %d] payment successful", e.OrderID)
		next = events.PaymentCompleted{
			OrderID:       e.OrderID,
			PaymentID:     resp.PaymentID,
			TransactionID: resp.TransactionID,
			PaymentDate:   resp.PaymentDate,
		}
	default:
		h.logger.Warnf("[ID %d] payment failed: %s", e.OrderID, resp.Message)
		next = events.PaymentFailed{OrderID: e.OrderID, Reason: resp.Message}
	}

	return scope.Commit(ctx, func(ctx context.Context) error {
		_, err := h.outbox.Append(ctx, next)
		return err
	})
}

func (h *Handlers) PaymentCompleted(ctx context.Context, env events.Envelope, e events.PaymentCompleted, scope *bus.Scope) error {
	h.logger.Infof("[ID %d] handling PaymentCompleted, payment %d", e.OrderID, e.PaymentID)

	return scope.Commit(ctx, func(ctx context.Context) error {
		confirmed, err := h.svc.ConfirmPayment(ctx, e.OrderID)
		if err != nil {
			return err
		}
		if !confirmed {
			h.logger.Errorf("[ID %d] payment %d completed but the order is not pending", e.OrderID, e.PaymentID)
			return nil
		}
		_, err = h.outbox.Append(ctx, events.OrderConfirmed{OrderID: e.OrderID})
		return err
	})
}

func (h *Handlers) PaymentFailed(ctx context.Context, env events.Envelope, e events.PaymentFailed, scope *bus.Scope) error {
	h.logger.Infof("[ID %d] handling PaymentFailed: %s", e.OrderID, e.Reason)

	return scope.Commit(ctx, func(ctx context.Context) error {
		cancelled, err := h.svc.CancelOrder(ctx, e.OrderID, entity.PaymentFailed, "Payment Failed: "+e.Reason)
		if err != nil || !cancelled {
			return err
		}
		_, err = h.outbox.Append(ctx, events.OrderCancelled{OrderID: e.OrderID, Reason: e.Reason})
		return err
	})
}

// StockReservationFailed cancels an order whose stock was never reserved.
func (h *Handlers) StockReservationFailed(ctx context.Context, env events.Envelope, e events.StockReservationFailed, scope *bus.Scope) error {
	h.logger.Infof("[ID %d] handling StockReservationFailed: %s", e.OrderID, e.Reason)

	return scope.Commit(ctx, func(ctx context.Context) error {
		cancelled, err := h.svc.CancelOrder(ctx, e.OrderID, "", "Stock Reservation Failed: "+e.Reason)
		if err != nil || !cancelled {
			return err
		}
		_, err = h.outbox.Append(ctx, events.OrderCancelled{OrderID: e.OrderID, Reason: e.Reason})
		return err
	})
}

// OrderCancelled compensates: deducted stock goes back to inventory and the
// lines go back into the user's cart.
func (h *Handlers) OrderCancelled(ctx context.Context, env events.Envelope, e events.OrderCancelled, scope *bus.Scope) error {
	h.logger.Infof("[ID %d] handling OrderCancelled: %s", e.OrderID, e.Reason)

	err := scope.Commit(ctx, func(ctx context.Context) error {
		return h.svc.ReleaseStock(ctx, e.OrderID)
	})
	if errors.Is(err, appers.ErrOrderNotFound) {
		h.logger.Warnf("[ID %d] order not found, nothing to compensate", e.OrderID)
		return scope.Commit(ctx, nil)
	}
	if err != nil {
		return err
	}

	// best effort: the stock release is already committed
	if err := h.svc.RestoreCart(ctx, e.OrderID); err != nil {
		h.logger.Errorf("[ID %d] cart not restored: %v", e.OrderID, err)
	}
	return nil
}

func (h *Handlers) UserRegistered(ctx context.Context, env events.Envelope, e events.UserRegistered, scope *bus.Scope) error {
	h.logger.Infof("[user %d] handling UserRegistered", e.UserID)

	err := h.notifier.Send(ctx, notifier.Email{
		To:      e.Email,
		Subject: "Welcome to the marketplace",
		Body:    fmt.Sprintf("Welcome %s, thanks for registering!", e.Name),
	})
	if err != nil {
		return fmt.Errorf("welcome email to %s: %w", e.Email, err)
	}
	return nil
}
