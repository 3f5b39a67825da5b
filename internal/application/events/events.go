// Package events defines the closed set of integration events that drive the
// checkout saga and their wire encoding.
package events

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
)

type Kind string

const (
	KindOrderCreated           Kind = "OrderCreated"
	KindStockReserved          Kind = "StockReserved"
	KindStockReservationFailed Kind = "StockReservationFailed"
	KindPaymentCompleted       Kind = "PaymentCompleted"
	KindPaymentFailed          Kind = "PaymentFailed"
	KindOrderConfirmed         Kind = "OrderConfirmed"
	KindOrderCancelled         Kind = "OrderCancelled"
	KindUserRegistered         Kind = "UserRegistered"
)

// Kinds lists every known event kind.
var Kinds = []Kind{
	KindOrderCreated,
	KindStockReserved,
	KindStockReservationFailed,
	KindPaymentCompleted,
	KindPaymentFailed,
	KindOrderConfirmed,
	KindOrderCancelled,
	KindUserRegistered,
}

// Payload is implemented only by the event structs of this package.
type Payload interface {
	Kind() Kind
	sealed()
}

type OrderCreated struct {
	OrderID     int64 `json:"orderId"`
	UserID      int64 `json:"userId"`
	TotalAmount int64 `json:"totalAmount"`
}

type StockReserved struct {
	OrderID int64 `json:"orderId"`
}

type StockReservationFailed struct {
	OrderID int64  `json:"orderId"`
	Reason  string `json:"reason"`
}

type PaymentCompleted struct {
	OrderID       int64     `json:"orderId"`
	PaymentID     int64     `json:"paymentId"`
	TransactionID string    `json:"transactionId"`
	PaymentDate   time.Time `json:"paymentDate"`
}

type PaymentFailed struct {
	OrderID int64  `json:"orderId"`
	Reason  string `json:"reason"`
}

type OrderConfirmed struct {
	OrderID int64 `json:"orderId"`
}

type OrderCancelled struct {
	OrderID int64  `json:"orderId"`
	Reason  string `json:"reason"`
}

type UserRegistered struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

func (OrderCreated) Kind() Kind           { return KindOrderCreated }
func (StockReserved) Kind() Kind          { return KindStockReserved }
func (StockReservationFailed) Kind() Kind { return KindStockReservationFailed }
func (PaymentCompleted) Kind() Kind       { return KindPaymentCompleted }
func (PaymentFailed) Kind() Kind          { return KindPaymentFailed }
func (OrderConfirmed) Kind() Kind         { return KindOrderConfirmed }
func (OrderCancelled) Kind() Kind         { return KindOrderCancelled }
func (UserRegistered) Kind() Kind         { return KindUserRegistered }

func (OrderCreated) sealed()           {}
func (StockReserved) sealed()          {}
func (StockReservationFailed) sealed() {}
func (PaymentCompleted) sealed()       {}
func (PaymentFailed) sealed()          {}
func (OrderConfirmed) sealed()         {}
func (OrderCancelled) sealed()         {}
func (UserRegistered) sealed()         {}

// Envelope carries a payload together with its identity. ID is the
// idempotency key consumers record in the ledger.
type Envelope struct {
	ID         uuid.UUID
	Kind       Kind
	OccurredOn time.Time
	Payload    Payload
}

func New(p Payload) (Envelope, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return Envelope{}, fmt.Errorf("generate event id: %w", err)
	}
	return Envelope{
		ID:         id,
		Kind:       p.Kind(),
		OccurredOn: time.Now().UTC(),
		Payload:    p,
	}, nil
}

// OrderID returns the saga correlation id, or 0 for events outside the checkout saga.
func (e Envelope) OrderID() int64 {
	switch p := e.Payload.(type) {
	case OrderCreated:
		return p.OrderID
	case StockReserved:
		return p.OrderID
	case StockReservationFailed:
		return p.OrderID
	case PaymentCompleted:
		return p.OrderID
	case PaymentFailed:
		return p.OrderID
	case OrderConfirmed:
		return p.OrderID
	case OrderCancelled:
		return p.OrderID
	default:
		return 0
	}
}
