package use_cases

import (
	"context"
	"errors"
	"marketplace/internal/application/entity"
	"marketplace/internal/application/service"
	"marketplace/pkg/config"
	"marketplace/pkg/metrics"

	"go.uber.org/zap"
)

var ErrNoReceiver = errors.New("no broker receiver configured")

type UseCaser interface {
	Checkout(ctx context.Context, req entity.CheckoutRequest) (*entity.CheckoutResponse, error)
	ProcessPayment(ctx context.Context, req entity.PaymentRequest) (*entity.PaymentResponse, error)
	GetOrder(ctx context.Context, id int64) (*entity.OrderDetail, error)
	AddToCart(ctx context.Context, userID, productID int64, qty int) error
	AnnounceUserRegistered(ctx context.Context, req entity.UserRegisteredRequest) error

	ListDeadLetters(ctx context.Context, limit int) ([]entity.OutboxMessage, error)
	RequeueOutbox(ctx context.Context, id int64) error
	ReportDeadLetters(ctx context.Context)

	RunRelay(ctx context.Context)
	ConsumeMessage(ctx context.Context, data []byte) error

	HealthCheck(ctx context.Context) (storageHealthy bool, busHealthy bool, err error)
}

// Receiver hands a raw broker message to the event dispatcher.
type Receiver interface {
	Receive(ctx context.Context, data []byte) error
}

type UseCase struct {
	service  service.Service
	relay    *service.Relay
	receiver Receiver
	logger   *zap.SugaredLogger
	conf     *config.Config
	m        *metrics.Metrics
}

// NewUseCase accepts a nil receiver when the bus runs in process.
func NewUseCase(
	svc service.Service,
	relay *service.Relay,
	receiver Receiver,
	logger *zap.SugaredLogger,
	conf *config.Config,
	m *metrics.Metrics) *UseCase {
	return &UseCase{
		service:  svc,
		relay:    relay,
		receiver: receiver,
		logger:   logger,
		conf:     conf,
		m:        m,
	}
}

func (u *UseCase) HealthCheck(ctx context.Context) (storageHealthy bool, busHealthy bool, err error) {
	return u.service.HealthCheck(ctx)
}

func (u *UseCase) Checkout(ctx context.Context, req entity.CheckoutRequest) (*entity.CheckoutResponse, error) {
	u.logger.Debugf("[user %d] Checkout started", req.UserID)
	return u.service.Checkout(ctx, req)
}

func (u *UseCase) ProcessPayment(ctx context.Context, req entity.PaymentRequest) (*entity.PaymentResponse, error) {
	u.logger.Debugf("[ID %d] ProcessPayment started, key %q", req.OrderID, req.IdempotencyKey)
	return u.service.ProcessPayment(ctx, req)
}

func (u *UseCase) GetOrder(ctx context.Context, id int64) (*entity.OrderDetail, error) {
	return u.service.GetOrder(ctx, id)
}

func (u *UseCase) AddToCart(ctx context.Context, userID, productID int64, qty int) error {
	u.logger.Debugf("[user %d] AddToCart product %d qty %d", userID, productID, qty)
	return u.service.AddToCart(ctx, userID, productID, qty)
}

func (u *UseCase) AnnounceUserRegistered(ctx context.Context, req entity.UserRegisteredRequest) error {
	u.logger.Debugf("[user %d] AnnounceUserRegistered started", req.UserID)
	return u.service.AnnounceUserRegistered(ctx, req)
}

func (u *UseCase) ListDeadLetters(ctx context.Context, limit int) ([]entity.OutboxMessage, error) {
	return u.service.ListDeadLetters(ctx, limit)
}

func (u *UseCase) RequeueOutbox(ctx context.Context, id int64) error {
	u.logger.Infof("[outbox %d] requeue requested", id)
	return u.service.RequeueOutbox(ctx, id)
}

// ReportDeadLetters refreshes the dead letter gauge and names the stuck rows in the log.
func (u *UseCase) ReportDeadLetters(ctx context.Context) {
	n, err := u.service.CountDeadLetters(ctx)
	if err != nil {
		u.logger.Errorf("count dead letters: %v", err)
		return
	}
	if u.m != nil {
		u.m.Outbox.DeadLetters.Set(float64(n))
	}
	if n == 0 {
		u.logger.Debug("no dead letters")
		return
	}

	msgs, err := u.service.ListDeadLetters(ctx, 20)
	if err != nil {
		u.logger.Errorf("list dead letters: %v", err)
		return
	}
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	u.logger.Warnf("%d outbox messages exhausted their retries, first ids: %v", n, ids)
}

func (u *UseCase) RunRelay(ctx context.Context) {
	u.logger.Debug("relay started")
	u.relay.Run(ctx)
}

func (u *UseCase) ConsumeMessage(ctx context.Context, data []byte) error {
	if u.receiver == nil {
		return ErrNoReceiver
	}
	return u.receiver.Receive(ctx, data)
}
