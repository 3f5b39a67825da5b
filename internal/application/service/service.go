package service

import (
	"context"
	"errors"
	"fmt"
	"marketplace/internal/appers"
	"marketplace/internal/application/entity"
	"marketplace/internal/application/events"
	"marketplace/internal/application/repo"
	"marketplace/internal/transport/gateway"
	"marketplace/pkg/config"
	"time"

	"go.uber.org/zap"
)

const (
	checkoutMessage         = "Order created successfully. Please proceed to payment."
	paymentSuccessMessage   = "Payment successful"
	paymentFailedMessage    = "Payment failed"
	paymentDuplicateMessage = "Payment already processed"
)

type Service interface {
	Checkout(ctx context.Context, req entity.CheckoutRequest) (*entity.CheckoutResponse, error)
	ProcessPayment(ctx context.Context, req entity.PaymentRequest) (*entity.PaymentResponse, error)
	GetOrder(ctx context.Context, id int64) (*entity.OrderDetail, error)
	AddToCart(ctx context.Context, userID, productID int64, qty int) error

	// saga steps; each runs inside the caller's transaction when ctx carries one
	ConfirmPayment(ctx context.Context, orderID int64) (bool, error)
	CancelOrder(ctx context.Context, orderID int64, paymentStatus entity.PaymentStatus, note string) (bool, error)
	ReleaseStock(ctx context.Context, orderID int64) error
	RestoreCart(ctx context.Context, orderID int64) error

	ListDeadLetters(ctx context.Context, limit int) ([]entity.OutboxMessage, error)
	CountDeadLetters(ctx context.Context) (int, error)
	RequeueOutbox(ctx context.Context, id int64) error
	AnnounceUserRegistered(ctx context.Context, req entity.UserRegisteredRequest) error

	HealthCheck(ctx context.Context) (storageHealthy bool, busHealthy bool, err error)
}

// HealthChecker is satisfied by the broker-backed bus.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type ServiceImpl struct {
	repo    repo.Repo
	outbox  *Outbox
	gateway gateway.Gateway
	broker  HealthChecker
	logger  *zap.SugaredLogger
	payment config.Payment
	relay   config.RelayConfig
}

func NewService(r repo.Repo, outbox *Outbox, gw gateway.Gateway, broker HealthChecker, logger *zap.SugaredLogger, conf *config.Config) *ServiceImpl {
	return &ServiceImpl{
		repo:    r,
		outbox:  outbox,
		gateway: gw,
		broker:  broker,
		logger:  logger,
		payment: conf.Payment,
		relay:   conf.Relay,
	}
}

// HealthCheck returns an error when storage is down. Without a broker
// (in-process bus) the bus is reported healthy.
func (s *ServiceImpl) HealthCheck(ctx context.Context) (storageHealthy bool, busHealthy bool, err error) {
	dbErr := s.repo.HealthCheck(ctx)
	storageHealthy = dbErr == nil

	var brokerErr error
	if s.broker != nil {
		brokerErr = s.broker.HealthCheck(ctx)
	}
	busHealthy = brokerErr == nil

	if !storageHealthy && !busHealthy {
		return storageHealthy, busHealthy, fmt.Errorf("storage: %v, broker: %v", dbErr, brokerErr)
	}
	if !storageHealthy {
		return storageHealthy, busHealthy, dbErr
	}
	return storageHealthy, busHealthy, nil
}

// Checkout turns the user's cart into a pending order. Order, stock deduction,
// cart clearing and the OrderCreated outbox row commit together or not at all.
func (s *ServiceImpl) Checkout(ctx context.Context, req entity.CheckoutRequest) (*entity.CheckoutResponse, error) {
	s.logger.Debugf("[user %d] Checkout started", req.UserID)

	method := req.PaymentMethod
	if method == "" {
		method = s.payment.DefaultMethod
	}

	var resp *entity.CheckoutResponse
	err := s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		lines, err := s.repo.GetCartLines(ctx, req.UserID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return appers.ErrCartEmpty
		}

		var total int64
		items := make([]entity.OrderItem, 0, len(lines))
		for _, l := range lines {
			if l.StockQty < l.Quantity {
				return fmt.Errorf("%w: product %d has %d, requested %d", appers.ErrInsufficientStock, l.ProductID, l.StockQty, l.Quantity)
			}
			unit := entity.DiscountedPrice(l.RetailPrice, l.DiscountPercent)
			lineTotal := unit * int64(l.Quantity)
			total += lineTotal
			items = append(items, entity.OrderItem{
				ProductID: l.ProductID,
				Quantity:  l.Quantity,
				UnitPrice: unit,
				Total:     lineTotal,
			})
		}

		now := time.Now().UTC()
		order := entity.Order{
			UserID:          req.UserID,
			OrderDate:       now,
			TotalAmount:     total,
			PaymentMethod:   method,
			PaymentStatus:   entity.PaymentPending,
			OrderStatus:     entity.OrderPending,
			ShippingAddress: req.ShippingAddress,
			Note:            req.Note,
			StockDeducted:   true,
		}
		if err := s.repo.CreateOrder(ctx, &order, items); err != nil {
			return err
		}

		for _, it := range items {
			if err := s.repo.DeductStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		if err := s.repo.ClearCart(ctx, req.UserID); err != nil {
			return err
		}

		if _, err := s.outbox.Append(ctx, events.OrderCreated{
			OrderID:     order.ID,
			UserID:      order.UserID,
			TotalAmount: order.TotalAmount,
		}); err != nil {
			return err
		}

		resp = &entity.CheckoutResponse{OrderID: order.ID, TotalAmount: total, Message: checkoutMessage}
		return nil
	})
	if err != nil {
		s.logger.Warnf("[user %d] checkout rejected: %v", req.UserID, err)
		return nil, err
	}

	s.logger.Infof("[ID %d] order created for user %d, total %d", resp.OrderID, req.UserID, resp.TotalAmount)
	return resp, nil
}

// ProcessPayment charges an order at most once per idempotency key. A repeated
// key returns the recorded outcome without calling the gateway.
func (s *ServiceImpl) ProcessPayment(ctx context.Context, req entity.PaymentRequest) (*entity.PaymentResponse, error) {
	s.logger.Debugf("[ID %d] ProcessPayment started, key=%q", req.OrderID, req.IdempotencyKey)

	if req.IdempotencyKey != "" {
		existing, found, err := s.repo.GetPaymentByKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if found {
			s.logger.Infof("[ID %d] idempotent hit for key %q", req.OrderID, req.IdempotencyKey)
			return replayed(existing), nil
		}
	}

	if req.Amount <= 0 {
		return nil, appers.ErrInvalidAmount
	}
	o, err := s.repo.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.OrderStatus == entity.OrderCancelled {
		return nil, appers.ErrOrderCancelled
	}

	method := req.PaymentMethod
	if method == "" {
		method = s.payment.DefaultMethod
	}

	// no transaction is held across the gateway call
	res, err := s.gateway.Charge(ctx, gateway.ChargeRequest{OrderID: req.OrderID, Amount: req.Amount, Method: method})
	if err != nil {
		return nil, fmt.Errorf("charge order %d: %w", req.OrderID, err)
	}

	p := entity.Payment{
		OrderID:        req.OrderID,
		Amount:         req.Amount,
		Method:         method,
		Status:         entity.PaymentRecordFailed,
		TransactionID:  res.TransactionID,
		IdempotencyKey: req.IdempotencyKey,
		PaymentDate:    time.Now().UTC(),
	}
	if res.Approved {
		p.Status = entity.PaymentRecordCompleted
	}

	inserted, err := s.repo.InsertPayment(ctx, &p)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// a concurrent call with the same key won the insert
		existing, found, err := s.repo.GetPaymentByKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("payment with key %q vanished", req.IdempotencyKey)
		}
		return replayed(existing), nil
	}

	resp := &entity.PaymentResponse{
		Success:       res.Approved,
		Message:       paymentSuccessMessage,
		TransactionID: p.TransactionID,
		PaymentID:     p.ID,
		PaymentDate:   p.PaymentDate,
	}
	if !res.Approved {
		resp.Message = paymentFailedMessage
		if res.Reason != "" {
			resp.Message = res.Reason
		}
	}
	s.logger.Infof("[ID %d] payment %d recorded, success=%v", req.OrderID, p.ID, resp.Success)
	return resp, nil
}

func replayed(p entity.Payment) *entity.PaymentResponse {
	return &entity.PaymentResponse{
		Success:       p.Status == entity.PaymentRecordCompleted,
		Message:       paymentDuplicateMessage,
		TransactionID: p.TransactionID,
		PaymentID:     p.ID,
		PaymentDate:   p.PaymentDate,
	}
}

func (s *ServiceImpl) GetOrder(ctx context.Context, id int64) (*entity.OrderDetail, error) {
	o, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.GetOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return &entity.OrderDetail{Order: o, Items: items}, nil
}

func (s *ServiceImpl) AddToCart(ctx context.Context, userID, productID int64, qty int) error {
	return s.repo.AddToCart(ctx, userID, productID, qty)
}

// ConfirmPayment marks a pending order paid and confirmed and counts its lines
// as sold. It returns false, changing nothing, for an order that is not pending.
func (s *ServiceImpl) ConfirmPayment(ctx context.Context, orderID int64) (bool, error) {
	var confirmed bool
	err := s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		updated, err := s.repo.MarkOrderPaid(ctx, orderID)
		if err != nil || !updated {
			return err
		}
		confirmed = true
		return s.repo.IncrementSoldQty(ctx, orderID)
	})
	if err != nil {
		return false, err
	}
	return confirmed, nil
}

func (s *ServiceImpl) CancelOrder(ctx context.Context, orderID int64, paymentStatus entity.PaymentStatus, note string) (bool, error) {
	cancelled, err := s.repo.CancelOrder(ctx, orderID, paymentStatus, note)
	if err != nil {
		return false, err
	}
	if cancelled {
		s.logger.Infof("[ID %d] order cancelled: %s", orderID, note)
	}
	return cancelled, nil
}

func (s *ServiceImpl) ReleaseStock(ctx context.Context, orderID int64) error {
	released, err := s.repo.ReleaseStock(ctx, orderID)
	if err != nil {
		return err
	}
	if released {
		s.logger.Infof("[ID %d] stock released", orderID)
	} else {
		s.logger.Infof("[ID %d] no deducted stock to release", orderID)
	}
	return nil
}

// RestoreCart puts the order lines back into the owner's cart. A line that
// cannot be restored is logged and skipped; only a failed order lookup is returned.
func (s *ServiceImpl) RestoreCart(ctx context.Context, orderID int64) error {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	items, err := s.repo.GetOrderItems(ctx, orderID)
	if err != nil {
		return err
	}

	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		if _, err := s.repo.GetProduct(ctx, it.ProductID); err != nil {
			if errors.Is(err, appers.ErrProductNotFound) {
				s.logger.Warnf("[ID %d] product %d is gone, not re-adding to cart", orderID, it.ProductID)
			} else {
				s.logger.Errorf("[ID %d] product %d lookup failed, not re-adding to cart: %v", orderID, it.ProductID, err)
			}
			continue
		}
		if err := s.repo.AddToCart(ctx, o.UserID, it.ProductID, it.Quantity); err != nil {
			s.logger.Errorf("[ID %d] re-adding product %d to cart of user %d failed: %v", orderID, it.ProductID, o.UserID, err)
			continue
		}
		s.logger.Infof("[ID %d] re-added product %d (qty %d) to cart of user %d", orderID, it.ProductID, it.Quantity, o.UserID)
	}
	return nil
}

func (s *ServiceImpl) ListDeadLetters(ctx context.Context, limit int) ([]entity.OutboxMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListDeadLetters(ctx, s.relay.MaxRetries, limit)
}

func (s *ServiceImpl) CountDeadLetters(ctx context.Context) (int, error) {
	return s.repo.CountDeadLetters(ctx, s.relay.MaxRetries)
}

func (s *ServiceImpl) RequeueOutbox(ctx context.Context, id int64) error {
	return s.repo.RequeueOutbox(ctx, id)
}

func (s *ServiceImpl) AnnounceUserRegistered(ctx context.Context, req entity.UserRegisteredRequest) error {
	return s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		_, err := s.outbox.Append(ctx, events.UserRegistered{UserID: req.UserID, Email: req.Email, Name: req.Name})
		return err
	})
}
