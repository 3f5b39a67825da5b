package entity

import "time"

type PaymentRecordStatus string

const (
	PaymentRecordCompleted PaymentRecordStatus = "Completed"
	PaymentRecordFailed    PaymentRecordStatus = "Failed"
)

type Payment struct {
	ID             int64               `db:"id"`
	OrderID        int64               `db:"order_id"`
	Amount         int64               `db:"amount"`
	Method         string              `db:"method"`
	Status         PaymentRecordStatus `db:"status"`
	TransactionID  string              `db:"transaction_id"`
	IdempotencyKey string              `db:"idempotency_key"` // unique when not empty
	PaymentDate    time.Time           `db:"payment_date"`
}

type PaymentRequest struct {
	OrderID        int64  `json:"orderId" validate:"required,gt=0"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	PaymentMethod  string `json:"paymentMethod" validate:"omitempty,max=50"`
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,idemkey"`
}

type PaymentResponse struct {
	Success       bool      `json:"success"`
	Message       string    `json:"message"`
	TransactionID string    `json:"transactionId"`
	PaymentID     int64     `json:"paymentId"`
	PaymentDate   time.Time `json:"paymentDate"`
}
