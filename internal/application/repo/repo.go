package repo

import (
	"context"
	"errors"
	"fmt"
	"marketplace/internal/appers"
	"marketplace/internal/application/entity"
	"marketplace/pkg/db"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// TxManager runs fn in one database transaction. Every repository call made
// with the ctx passed to fn joins that transaction.
type TxManager interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type CartRepo interface {
	// GetCartLines locks the referenced product rows until the transaction ends.
	GetCartLines(ctx context.Context, userID int64) ([]entity.CartLine, error)
	AddToCart(ctx context.Context, userID, productID int64, qty int) error
	ClearCart(ctx context.Context, userID int64) error
}

type StockRepo interface {
	GetProduct(ctx context.Context, id int64) (entity.Product, error)
	DeductStock(ctx context.Context, productID int64, qty int) error
	// ReleaseStock credits the order's lines back once; false means nothing was deducted.
	ReleaseStock(ctx context.Context, orderID int64) (bool, error)
	IncrementSoldQty(ctx context.Context, orderID int64) error
}

type OrderRepo interface {
	CreateOrder(ctx context.Context, o *entity.Order, items []entity.OrderItem) error
	GetOrder(ctx context.Context, id int64) (entity.Order, error)
	GetOrderItems(ctx context.Context, orderID int64) ([]entity.OrderItem, error)
	// MarkOrderPaid confirms a pending order; false means it was not pending.
	MarkOrderPaid(ctx context.Context, id int64) (bool, error)
	// CancelOrder cancels a pending order; false means it was not pending.
	// PaymentStatus is left unchanged when paymentStatus is empty.
	CancelOrder(ctx context.Context, id int64, paymentStatus entity.PaymentStatus, note string) (bool, error)
}

type PaymentRepo interface {
	GetPaymentByKey(ctx context.Context, key string) (entity.Payment, bool, error)
	// InsertPayment returns false when the idempotency key is already taken.
	InsertPayment(ctx context.Context, p *entity.Payment) (bool, error)
}

type OutboxRepo interface {
	InsertOutbox(ctx context.Context, m *entity.OutboxMessage) error
	ClaimOutboxBatch(ctx context.Context, owner string, lease time.Duration, limit, maxRetries int) ([]entity.OutboxMessage, error)
	MarkOutboxProcessed(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, errText string) (int, error)
	ListDeadLetters(ctx context.Context, maxRetries, limit int) ([]entity.OutboxMessage, error)
	CountDeadLetters(ctx context.Context, maxRetries int) (int, error)
	RequeueOutbox(ctx context.Context, id int64) error
}

// Ledger records which consumer already handled which message.
type Ledger interface {
	IsProcessed(ctx context.Context, messageID uuid.UUID, consumer string) (bool, error)
	// MarkProcessed returns false when the pair was already recorded.
	MarkProcessed(ctx context.Context, messageID uuid.UUID, consumer string) (bool, error)
}

type Repo interface {
	TxManager
	CartRepo
	StockRepo
	OrderRepo
	PaymentRepo
	OutboxRepo
	Ledger

	HealthCheck(ctx context.Context) error
}

type RepoImpl struct {
	db     db.DB
	logger *zap.SugaredLogger
}

func NewRepo(db db.DB, logger *zap.SugaredLogger) *RepoImpl {
	return &RepoImpl{db: db, logger: logger}
}

func (r *RepoImpl) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithinTransaction(ctx, fn)
}

func (r *RepoImpl) HealthCheck(ctx context.Context) error {
	var result int
	err := r.db.QueryRow(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

func (r *RepoImpl) GetCartLines(ctx context.Context, userID int64) ([]entity.CartLine, error) {
	r.logger.Debugf("[user %d] start reading cart", userID)

	rows, err := r.db.Query(ctx, getCartLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("get cart lines: %w", err)
	}
	defer rows.Close()

	var lines []entity.CartLine
	for rows.Next() {
		var l entity.CartLine
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.RetailPrice, &l.DiscountPercent, &l.StockQty); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cart rows err: %w", err)
	}
	return lines, nil
}

func (r *RepoImpl) AddToCart(ctx context.Context, userID, productID int64, qty int) error {
	_, err := r.db.Exec(ctx, addToCartSQL, userID, productID, qty)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: %d", appers.ErrProductNotFound, productID)
		}
		return fmt.Errorf("add to cart: %w", err)
	}
	return nil
}

func (r *RepoImpl) ClearCart(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, clearCartSQL, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *RepoImpl) GetProduct(ctx context.Context, id int64) (entity.Product, error) {
	var p entity.Product
	err := r.db.QueryRow(ctx, getProductSQL, id).
		Scan(&p.ID, &p.Name, &p.RetailPrice, &p.DiscountPercent, &p.StockQty, &p.SoldQty)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, appers.ErrProductNotFound
	}
	if err != nil {
		return p, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (r *RepoImpl) DeductStock(ctx context.Context, productID int64, qty int) error {
	tag, err := r.db.Exec(ctx, deductStockSQL, productID, qty)
	if err != nil {
		return fmt.Errorf("deduct stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %d", appers.ErrInsufficientStock, productID)
	}
	return nil
}

func (r *RepoImpl) ReleaseStock(ctx context.Context, orderID int64) (bool, error) {
	var released bool
	err := r.db.WithinTransaction(ctx, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, clearStockDeductedSQL, orderID)
		if err != nil {
			return fmt.Errorf("clear stock flag: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		if _, err := r.db.Exec(ctx, creditOrderStockSQL, orderID); err != nil {
			return fmt.Errorf("credit stock: %w", err)
		}
		released = true
		return nil
	})
	return released, err
}

func (r *RepoImpl) IncrementSoldQty(ctx context.Context, orderID int64) error {
	if _, err := r.db.Exec(ctx, incrementSoldQtySQL, orderID); err != nil {
		return fmt.Errorf("increment sold qty: %w", err)
	}
	return nil
}

func (r *RepoImpl) CreateOrder(ctx context.Context, o *entity.Order, items []entity.OrderItem) error {
	r.logger.Debugf("[user %d] start inserting order", o.UserID)

	return r.db.WithinTransaction(ctx, func(ctx context.Context) error {
		err := r.db.QueryRow(ctx, insertOrderSQL,
			o.UserID, o.OrderDate, o.TotalAmount, o.PaymentMethod, string(o.PaymentStatus),
			int16(o.OrderStatus), o.ShippingAddress, o.Note, o.StockDeducted,
		).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range items {
			items[i].OrderID = o.ID
			err := r.db.QueryRow(ctx, insertOrderItemSQL,
				o.ID, items[i].ProductID, items[i].Quantity, items[i].UnitPrice, items[i].Total,
			).Scan(&items[i].ID)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		r.logger.Debugf("[ID %d] order inserted with %d items", o.ID, len(items))
		return nil
	})
}

func (r *RepoImpl) GetOrder(ctx context.Context, id int64) (entity.Order, error) {
	var (
		o             entity.Order
		paymentStatus string
		orderStatus   int16
	)
	err := r.db.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.UserID, &o.OrderDate, &o.TotalAmount, &o.PaymentMethod, &paymentStatus,
		&orderStatus, &o.ShippingAddress, &o.Note, &o.StockDeducted, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return o, appers.ErrOrderNotFound
	}
	if err != nil {
		return o, fmt.Errorf("get order: %w", err)
	}
	o.PaymentStatus = entity.PaymentStatus(paymentStatus)
	o.OrderStatus = entity.OrderStatus(orderStatus)
	return o, nil
}

func (r *RepoImpl) GetOrderItems(ctx context.Context, orderID int64) ([]entity.OrderItem, error) {
	rows, err := r.db.Query(ctx, getOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	items := make([]entity.OrderItem, 0)
	for rows.Next() {
		var it entity.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Total); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order item rows err: %w", err)
	}
	return items, nil
}

func (r *RepoImpl) MarkOrderPaid(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, markOrderPaidSQL, id,
		string(entity.PaymentPaid), int16(entity.OrderConfirmed), int16(entity.OrderPending))
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) CancelOrder(ctx context.Context, id int64, paymentStatus entity.PaymentStatus, note string) (bool, error) {
	tag, err := r.db.Exec(ctx, cancelOrderSQL, id, int16(entity.OrderCancelled), string(paymentStatus), note, int16(entity.OrderPending))
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) GetPaymentByKey(ctx context.Context, key string) (entity.Payment, bool, error) {
	var (
		p      entity.Payment
		status string
	)
	err := r.db.QueryRow(ctx, getPaymentByKeySQL, key).Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Method, &status, &p.TransactionID, &p.IdempotencyKey, &p.PaymentDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return p, false, nil
	}
	if err != nil {
		return p, false, fmt.Errorf("get payment by key: %w", err)
	}
	p.Status = entity.PaymentRecordStatus(status)
	return p, true, nil
}

func (r *RepoImpl) InsertPayment(ctx context.Context, p *entity.Payment) (bool, error) {
	err := r.db.QueryRow(ctx, insertPaymentSQL,
		p.OrderID, p.Amount, p.Method, string(p.Status), p.TransactionID, p.IdempotencyKey, p.PaymentDate,
	).Scan(&p.ID)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		// ON CONFLICT DO NOTHING returned nothing: the key is taken
		r.logger.Warnf("[order %d] payment with key %q already exists", p.OrderID, p.IdempotencyKey)
		return false, nil
	case isDuplicateKeyError(err):
		return false, nil
	case isForeignKeyError(err):
		return false, fmt.Errorf("%w: %d", appers.ErrOrderNotFound, p.OrderID)
	default:
		return false, fmt.Errorf("insert payment: %w", err)
	}
}

// isDuplicateKeyError reports SQLSTATE 23505.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
