// Package memory is a single-node implementation of the repository contract.
// A transaction holds the store lock for its whole duration and restores a
// snapshot when it fails.
package memory

import (
	"context"
	"fmt"
	"marketplace/internal/appers"
	"marketplace/internal/application/entity"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

type cartKey struct {
	userID    int64
	productID int64
}

type ledgerKey struct {
	messageID uuid.UUID
	consumer  string
}

type state struct {
	products  map[int64]entity.Product
	cart      map[cartKey]int
	orders    map[int64]entity.Order
	items     map[int64][]entity.OrderItem
	payments  map[int64]entity.Payment
	payKeys   map[string]int64
	outbox    map[int64]entity.OutboxMessage
	processed map[ledgerKey]time.Time

	nextOrderID   int64
	nextItemID    int64
	nextPaymentID int64
	nextOutboxID  int64
}

func newState() state {
	return state{
		products:  map[int64]entity.Product{},
		cart:      map[cartKey]int{},
		orders:    map[int64]entity.Order{},
		items:     map[int64][]entity.OrderItem{},
		payments:  map[int64]entity.Payment{},
		payKeys:   map[string]int64{},
		outbox:    map[int64]entity.OutboxMessage{},
		processed: map[ledgerKey]time.Time{},
	}
}

func (s state) clone() state {
	c := s
	c.products = make(map[int64]entity.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.cart = make(map[cartKey]int, len(s.cart))
	for k, v := range s.cart {
		c.cart[k] = v
	}
	c.orders = make(map[int64]entity.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.items = make(map[int64][]entity.OrderItem, len(s.items))
	for k, v := range s.items {
		c.items[k] = append([]entity.OrderItem(nil), v...)
	}
	c.payments = make(map[int64]entity.Payment, len(s.payments))
	for k, v := range s.payments {
		c.payments[k] = v
	}
	c.payKeys = make(map[string]int64, len(s.payKeys))
	for k, v := range s.payKeys {
		c.payKeys[k] = v
	}
	c.outbox = make(map[int64]entity.OutboxMessage, len(s.outbox))
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	c.processed = make(map[ledgerKey]time.Time, len(s.processed))
	for k, v := range s.processed {
		c.processed[k] = v
	}
	return c
}

type Store struct {
	mu     sync.Mutex
	st     state
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewStore(logger *zap.SugaredLogger) *Store {
	return &Store{st: newState(), logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

type txKey struct{ s *Store }

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{s}).(bool)
	return v
}

// lock acquires the store unless ctx already runs inside one of its transactions.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if r := recover(); r != nil {
			s.st = snapshot
			panic(r)
		}
		if err != nil {
			s.st = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txKey{s}, true))
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// PutProduct inserts or replaces a catalog row. The catalog itself is managed elsewhere.
func (s *Store) PutProduct(p entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

func (s *Store) CartQuantity(userID, productID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.cart[cartKey{userID, productID}]
}

func (s *Store) GetCartLines(ctx context.Context, userID int64) ([]entity.CartLine, error) {
	defer s.lock(ctx)()

	var lines []entity.CartLine
	for k, qty := range s.st.cart {
		if k.userID != userID {
			continue
		}
		p, ok := s.st.products[k.productID]
		if !ok {
			continue
		}
		lines = append(lines, entity.CartLine{
			ProductID:       p.ID,
			Quantity:        qty,
			RetailPrice:     p.RetailPrice,
			DiscountPercent: p.DiscountPercent,
			StockQty:        p.StockQty,
		})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

func (s *Store) AddToCart(ctx context.Context, userID, productID int64, qty int) error {
	defer s.lock(ctx)()

	if _, ok := s.st.products[productID]; !ok {
		return fmt.Errorf("%w: %d", appers.ErrProductNotFound, productID)
	}
	s.st.cart[cartKey{userID, productID}] += qty
	return nil
}

func (s *Store) ClearCart(ctx context.Context, userID int64) error {
	defer s.lock(ctx)()

	for k := range s.st.cart {
		if k.userID == userID {
			delete(s.st.cart, k)
		}
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (entity.Product, error) {
	defer s.lock(ctx)()

	p, ok := s.st.products[id]
	if !ok {
		return p, appers.ErrProductNotFound
	}
	return p, nil
}

func (s *Store) DeductStock(ctx context.Context, productID int64, qty int) error {
	defer s.lock(ctx)()

	p, ok := s.st.products[productID]
	if !ok || p.StockQty < qty {
		return fmt.Errorf("%w: product %d", appers.ErrInsufficientStock, productID)
	}
	p.StockQty -= qty
	s.st.products[productID] = p
	return nil
}

func (s *Store) ReleaseStock(ctx context.Context, orderID int64) (bool, error) {
	defer s.lock(ctx)()

	o, ok := s.st.orders[orderID]
	if !ok || !o.StockDeducted {
		return false, nil
	}
	o.StockDeducted = false
	o.UpdatedAt = s.now()
	s.st.orders[orderID] = o

	for _, it := range s.st.items[orderID] {
		if p, ok := s.st.products[it.ProductID]; ok {
			p.StockQty += it.Quantity
			s.st.products[it.ProductID] = p
		}
	}
	return true, nil
}

func (s *Store) IncrementSoldQty(ctx context.Context, orderID int64) error {
	defer s.lock(ctx)()

	for _, it := range s.st.items[orderID] {
		if p, ok := s.st.products[it.ProductID]; ok {
			p.SoldQty += it.Quantity
			s.st.products[it.ProductID] = p
		}
	}
	return nil
}

func (s *Store) CreateOrder(ctx context.Context, o *entity.Order, items []entity.OrderItem) error {
	defer s.lock(ctx)()

	s.st.nextOrderID++
	o.ID = s.st.nextOrderID
	o.CreatedAt = s.now()
	o.UpdatedAt = o.CreatedAt

	stored := make([]entity.OrderItem, len(items))
	for i := range items {
		s.st.nextItemID++
		items[i].ID = s.st.nextItemID
		items[i].OrderID = o.ID
		stored[i] = items[i]
	}
	s.st.orders[o.ID] = *o
	s.st.items[o.ID] = stored
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id int64) (entity.Order, error) {
	defer s.lock(ctx)()

	o, ok := s.st.orders[id]
	if !ok {
		return o, appers.ErrOrderNotFound
	}
	return o, nil
}

func (s *Store) GetOrderItems(ctx context.Context, orderID int64) ([]entity.OrderItem, error) {
	defer s.lock(ctx)()

	return append([]entity.OrderItem{}, s.st.items[orderID]...), nil
}

func (s *Store) MarkOrderPaid(ctx context.Context, id int64) (bool, error) {
	defer s.lock(ctx)()

	o, ok := s.st.orders[id]
	if !ok || o.OrderStatus != entity.OrderPending {
		return false, nil
	}
	o.PaymentStatus = entity.PaymentPaid
	o.OrderStatus = entity.OrderConfirmed
	o.UpdatedAt = s.now()
	s.st.orders[id] = o
	return true, nil
}

func (s *Store) CancelOrder(ctx context.Context, id int64, paymentStatus entity.PaymentStatus, note string) (bool, error) {
	defer s.lock(ctx)()

	o, ok := s.st.orders[id]
	if !ok || o.OrderStatus != entity.OrderPending {
		return false, nil
	}
	o.OrderStatus = entity.OrderCancelled
	if paymentStatus != "" {
		o.PaymentStatus = paymentStatus
	}
	if o.Note == "" {
		o.Note = note
	} else {
		o.Note += "\n" + note
	}
	o.UpdatedAt = s.now()
	s.st.orders[id] = o
	return true, nil
}

func (s *Store) GetPaymentByKey(ctx context.Context, key string) (entity.Payment, bool, error) {
	defer s.lock(ctx)()

	id, ok := s.st.payKeys[key]
	if !ok {
		return entity.Payment{}, false, nil
	}
	return s.st.payments[id], true, nil
}

func (s *Store) InsertPayment(ctx context.Context, p *entity.Payment) (bool, error) {
	defer s.lock(ctx)()

	if _, ok := s.st.orders[p.OrderID]; !ok {
		return false, fmt.Errorf("%w: %d", appers.ErrOrderNotFound, p.OrderID)
	}
	if p.IdempotencyKey != "" {
		if _, taken := s.st.payKeys[p.IdempotencyKey]; taken {
			return false, nil
		}
	}
	s.st.nextPaymentID++
	p.ID = s.st.nextPaymentID
	s.st.payments[p.ID] = *p
	if p.IdempotencyKey != "" {
		s.st.payKeys[p.IdempotencyKey] = p.ID
	}
	return true, nil
}
