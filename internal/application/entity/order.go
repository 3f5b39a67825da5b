package entity

import (
	"fmt"
	"time"
)

type OrderStatus int

const (
	OrderCancelled OrderStatus = -1
	OrderPending   OrderStatus = 0
	OrderConfirmed OrderStatus = 1
)

func (s OrderStatus) String() string {
	switch s {
	case OrderCancelled:
		return "Cancelled"
	case OrderPending:
		return "Pending"
	case OrderConfirmed:
		return "Confirmed"
	default:
		return fmt.Sprintf("OrderStatus(%d)", int(s))
	}
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentFailed  PaymentStatus = "Failed"
)

type Order struct {
	ID              int64         `json:"id" db:"id"`
	UserID          int64         `json:"userId" db:"user_id"`
	OrderDate       time.Time     `json:"orderDate" db:"order_date"`
	TotalAmount     int64         `json:"totalAmount" db:"total_amount"`
	PaymentMethod   string        `json:"paymentMethod" db:"payment_method"`
	PaymentStatus   PaymentStatus `json:"paymentStatus" db:"payment_status"`
	OrderStatus     OrderStatus   `json:"orderStatus" db:"order_status"`
	ShippingAddress string        `json:"shippingAddress" db:"shipping_address"`
	Note            string        `json:"note" db:"note"`
	StockDeducted   bool          `json:"-" db:"stock_deducted"` // set by checkout, cleared by the stock release
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" db:"updated_at"`
}

type OrderItem struct {
	ID        int64 `json:"id" db:"id"`
	OrderID   int64 `json:"orderId" db:"order_id"`
	ProductID int64 `json:"productId" db:"product_id"`
	Quantity  int   `json:"quantity" db:"quantity"`
	UnitPrice int64 `json:"unitPrice" db:"unit_price"`
	Total     int64 `json:"total" db:"total"`
}

type OrderDetail struct {
	Order Order       `json:"order"`
	Items []OrderItem `json:"items"`
}

type Product struct {
	ID              int64  `json:"id" db:"id"`
	Name            string `json:"name" db:"name"`
	RetailPrice     int64  `json:"retailPrice" db:"retail_price"`
	DiscountPercent int    `json:"discountPercent" db:"discount_percent"`
	StockQty        int    `json:"stockQty" db:"stock_qty"`
	SoldQty         int    `json:"soldQty" db:"sold_qty"`
}

// UnitPrice is the retail price after the product discount.
func (p Product) UnitPrice() int64 {
	return DiscountedPrice(p.RetailPrice, p.DiscountPercent)
}

// CartLine is a cart item joined with the product row it points to.
type CartLine struct {
	ProductID       int64 `db:"product_id"`
	Quantity        int   `db:"quantity"`
	RetailPrice     int64 `db:"retail_price"`
	DiscountPercent int   `db:"discount_percent"`
	StockQty        int   `db:"stock_qty"`
}

func DiscountedPrice(retail int64, discountPercent int) int64 {
	if discountPercent <= 0 {
		return retail
	}
	if discountPercent >= 100 {
		return 0
	}
	return retail * int64(100-discountPercent) / 100
}

type CheckoutRequest struct {
	UserID          int64  `json:"userId" validate:"required,gt=0"`
	ShippingAddress string `json:"shippingAddress" validate:"omitempty,max=500"`
	Note            string `json:"note" validate:"omitempty,max=1000"`
	PaymentMethod   string `json:"paymentMethod" validate:"omitempty,max=50"`
}

type CheckoutResponse struct {
	OrderID     int64  `json:"orderId"`
	TotalAmount int64  `json:"totalAmount"`
	Message     string `json:"message"`
}

type UserRegisteredRequest struct {
	UserID int64  `json:"userId" validate:"required,gt=0"`
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name" validate:"required,min=1,max=200"`
}

type AddToCartRequest struct {
	UserID    int64 `json:"userId" validate:"required,gt=0"`
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0,lte=1000"`
}
