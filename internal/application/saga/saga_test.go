package saga

import (
	"context"
	"errors"
	"marketplace/internal/application/bus"
	"marketplace/internal/application/entity"
	"marketplace/internal/application/events"
	"marketplace/internal/application/repo/memory"
	"marketplace/internal/application/service"
	"marketplace/internal/transport/gateway"
	"marketplace/internal/transport/notifier"
	"marketplace/pkg/config"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

const (
	buyer      = int64(42)
	product    = int64(7)
	maxRetries = 5
)

type mailbox struct {
	mu    sync.Mutex
	sent  []notifier.Email
	fails int
}

func (m *mailbox) Send(ctx context.Context, e notifier.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fails > 0 {
		m.fails--
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, e)
	return nil
}

// flakyCart fails cart writes while down is set.
type flakyCart struct {
	*memory.Store
	down *atomic.Bool
}

func (f flakyCart) AddToCart(ctx context.Context, userID, productID int64, qty int) error {
	if f.down.Load() {
		return errors.New("cart_items is locked")
	}
	return f.Store.AddToCart(ctx, userID, productID, qty)
}

type harness struct {
	store      *memory.Store
	svc        *service.ServiceImpl
	outbox     *service.Outbox
	dispatcher *bus.Dispatcher
	relay      *service.Relay
	mail       *mailbox
	charges    atomic.Int32
	confirmed  atomic.Int32
	cartDown   atomic.Bool
}

type harnessOpt struct {
	outcome     func(req gateway.ChargeRequest) (gateway.ChargeResult, error)
	retryFailed bool
}

func newHarness(t *testing.T, opt harnessOpt) *harness {
	t.Helper()
	logger := zap.NewNop().Sugar()
	conf := &config.Config{
		Payment: config.Payment{DefaultMethod: "CreditCard"},
		Relay:   config.RelayConfig{BatchSize: 10, MaxRetries: maxRetries},
	}

	h := &harness{store: memory.NewStore(logger), mail: &mailbox{}}
	h.store.PutProduct(entity.Product{ID: product, Name: "lamp", RetailPrice: 100, StockQty: 5})

	gw := gateway.Func(func(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeResult, error) {
		h.charges.Add(1)
		return opt.outcome(req)
	})
	h.outbox = service.NewOutbox(h.store, logger)
	h.svc = service.NewService(flakyCart{Store: h.store, down: &h.cartDown}, h.outbox, gw, nil, logger, conf)

	watcher := bus.On("ConfirmationWatcher", func(ctx context.Context, env events.Envelope, e events.OrderConfirmed, scope *bus.Scope) error {
		h.confirmed.Add(1)
		return nil
	})
	routes := Routes(NewHandlers(h.svc, h.outbox, h.mail, logger), watcher)
	h.dispatcher = bus.NewDispatcher(routes, h.store, h.store, logger, nil)
	publisher := bus.NewInProcess(h.dispatcher, logger, nil, bus.WithRetryFailed(opt.retryFailed))
	h.relay = service.NewRelay(h.store, publisher, conf.Relay, logger, nil)
	return h
}

func approve(gateway.ChargeRequest) (gateway.ChargeResult, error) {
	return gateway.ChargeResult{Approved: true, TransactionID: "tx-ok"}, nil
}

func decline(gateway.ChargeRequest) (gateway.ChargeResult, error) {
	return gateway.ChargeResult{Approved: false, TransactionID: "tx-no", Reason: "Payment declined by processor"}, nil
}

// drain runs the relay until no row is left to publish or retry.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 50; i++ {
		if _, err := h.relay.ProcessBatch(context.Background()); err != nil {
			t.Fatal(err)
		}
		if !h.pending() {
			return
		}
	}
	t.Fatal("relay did not settle")
}

func (h *harness) pending() bool {
	for _, m := range h.store.Outbox() {
		if m.ProcessedOn == nil && !m.DeadLettered(maxRetries) {
			return true
		}
	}
	return false
}

func (h *harness) checkout(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()
	if err := h.svc.AddToCart(ctx, buyer, product, 2); err != nil {
		t.Fatal(err)
	}
	resp, err := h.svc.Checkout(ctx, entity.CheckoutRequest{UserID: buyer})
	if err != nil {
		t.Fatal(err)
	}
	if resp.TotalAmount != 200 {
		t.Fatalf("total = %d, want 200", resp.TotalAmount)
	}
	if got := h.stock(t); got != 3 {
		t.Fatalf("stock after checkout = %d, want 3", got)
	}
	return resp.OrderID
}

func (h *harness) stock(t *testing.T) int {
	t.Helper()
	p, err := h.store.GetProduct(context.Background(), product)
	if err != nil {
		t.Fatal(err)
	}
	return p.StockQty
}

func (h *harness) order(t *testing.T, id int64) entity.Order {
	t.Helper()
	detail, err := h.svc.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return detail.Order
}

func (h *harness) kinds() []string {
	var out []string
	for _, m := range h.store.Outbox() {
		out = append(out, m.EventTypeName)
	}
	return out
}

func TestSaga_PaymentSucceeds(t *testing.T) {
	h := newHarness(t, harnessOpt{outcome: approve})
	id := h.checkout(t)
	h.drain(t)

	o := h.order(t, id)
	if o.OrderStatus != entity.OrderConfirmed || o.PaymentStatus != entity.PaymentPaid {
		t.Fatalf("order = %v/%v", o.OrderStatus, o.PaymentStatus)
	}
	p, _ := h.store.GetProduct(context.Background(), product)
	if p.StockQty != 3 || p.SoldQty != 2 {
		t.Fatalf("product = %+v", p)
	}
	if h.confirmed.Load() != 1 {
		t.Fatalf("OrderConfirmed seen %d times", h.confirmed.Load())
	}
	want := "OrderCreated,StockReserved,PaymentCompleted,OrderConfirmed"
	if got := strings.Join(h.kinds(), ","); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
}

func TestSaga_PaymentFailsCompensates(t *testing.T) {
	h := newHarness(t, harnessOpt{outcome: decline})
	id := h.checkout(t)
	h.drain(t)

	o := h.order(t, id)
	if o.OrderStatus != entity.OrderCancelled || o.PaymentStatus != entity.PaymentFailed {
		t.Fatalf("order = %v/%v", o.OrderStatus, o.PaymentStatus)
	}
	if !strings.HasPrefix(o.Note, "Payment Failed: ") {
		t.Fatalf("note = %q", o.Note)
	}
	if got := h.stock(t); got != 5 {
		t.Fatalf("stock = %d, want 5", got)
	}
	if q := h.store.CartQuantity(buyer, product); q != 2 {
		t.Fatalf("cart qty = %d, want 2", q)
	}
	if h.confirmed.Load() != 0 {
		t.Fatal("cancelled order was confirmed")
	}
	want := "OrderCreated,StockReserved,PaymentFailed,OrderCancelled"
	if got := strings.Join(h.kinds(), ","); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
}

func TestSaga_GatewayErrorCancels(t *testing.T) {
	h := newHarness(t, harnessOpt{outcome: func(gateway.ChargeRequest) (gateway.ChargeResult, error) {
		return gateway.ChargeResult{}, errors.New("processor timeout")
	}})
	id := h.checkout(t)
	h.drain(t)

	if o := h.order(t, id); o.OrderStatus != entity.OrderCancelled {
		t.Fatalf("order status = %v", o.OrderStatus)
	}
	if got := h.stock(t); got != 5 {
		t.Fatalf("stock = %d, want 5", got)
	}
}

func TestSaga_DuplicateDeliveryHasNoEffect(t *testing.T) {
	h := newHarness(t, harnessOpt{outcome: approve})
	id := h.checkout(t)
	h.drain(t)

	// replay every event as an at-least-once broker would
	for _, m := range h.store.Outbox() {
		env, err := service.Envelope(m)
		if err != nil {
			t.Fatal(err)
		}
		if err := h.dispatcher.Dispatch(context.Background(), env); err != nil {
			t.Fatal(err)
		}
	}

	p, _ := h.store.GetProduct(context.Background(), product)
	if p.StockQty != 3 || p.SoldQty != 2 {
		t.Fatalf("product = %+v", p)
	}
	if h.charges.Load() != 1 {
		t.Fatalf("gateway charged %d times", h.charges.Load())
	}
	if h.confirmed.Load() != 1 {
		t.Fatalf("OrderConfirmed seen %d times", h.confirmed.Load())
	}
	if n := len(h.store.Outbox()); n != 4 {
		t.Fatalf("outbox rows = %d, want 4", n)
	}
	if o := h.order(t, id); o.OrderStatus != entity.OrderConfirmed {
		t.Fatalf("order status = %v", o.OrderStatus)
	}
}

func TestSaga_DuplicateCancellationCompensatesOnce(t *testing.T) {
	h := newHarness(t, harnessOpt{outcome: decline})
	h.checkout(t)
	h.drain(t)

	for _, m := range h.store.Outbox() {
		if m.EventTypeName != string(events.KindOrderCancelled) {
			continue
		}
		env, err := service.Envelope(m)
		if err != nil {
			t.Fatal(err)
		}
		_ = h.dispatcher.Dispatch(context.Background(), env)
	}
	if got := h.stock(t); got != 5 {
		t.Fatalf("stock = %d, want 5", got)
	}
	if q := h.store.CartQuantity(buyer, product); q != 2 {
		t.Fatalf("cart qty = %d, want 2", q)
	}
}

func TestSaga_LostReservationCancels(t *testing.T) {
	h := newHarness(t, harnessOpt{outcome: approve})
	ctx := context.Background()

	o := entity.Order{UserID: buyer, TotalAmount: 100, OrderStatus: entity.OrderPending, PaymentStatus: entity.PaymentPending}
	err := h.store.WithinTransaction(ctx, func(ctx context.Context) error {
		items := []entity.OrderItem{{ProductID: product, Quantity: 1, UnitPrice: 100, Total: 100}}
		if err := h.store.CreateOrder(ctx, &o, items); err != nil {
			return err
		}
		_, err := h.outbox.Append(ctx, events.OrderCreated{OrderID: o.ID, UserID: buyer, TotalAmount: 100})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	h.drain(t)

	got := h.order(t, o.ID)
	if got.OrderStatus != entity.OrderCancelled || !strings.HasPrefix(got.Note, "Stock Reservation Failed: ") {
		t.Fatalf("order = %+v", got)
	}
	if s := h.stock(t); s != 5 {
		t.Fatalf("stock = %d, want 5 (nothing was deducted)", s)
	}
	if h.charges.Load() != 0 {
		t.Fatal("order without stock was charged")
	}
}

func TestSaga_LateFailureLeavesConfirmedOrder(t *testing.T) {
	h := newHarness(t, harnessOpt{outcome: approve})
	id := h.checkout(t)
	h.drain(t)

	for _, p := range []events.Payload{
		events.PaymentFailed{OrderID: id, Reason: "late decline"},
		events.StockReservationFailed{OrderID: id, Reason: "late shortage"},
	} {
		env, err := events.New(p)
		if err != nil {
			t.Fatal(err)
		}
		if err := h.dispatcher.Dispatch(context.Background(), env); err != nil {
			t.Fatal(err)
		}
	}
	h.drain(t)

	o := h.order(t, id)
	if o.OrderStatus != entity.OrderConfirmed || o.PaymentStatus != entity.PaymentPaid {
		t.Fatalf("order = %v/%v", o.OrderStatus, o.PaymentStatus)
	}
	p, _ := h.store.GetProduct(context.Background(), product)
	if p.StockQty != 3 || p.SoldQty != 2 {
		t.Fatalf("product = %+v", p)
	}
	if q := h.store.CartQuantity(buyer, product); q != 0 {
		t.Fatalf("cart qty = %d, want 0", q)
	}
	if n := len(h.store.Outbox()); n != 4 {
		t.Fatalf("outbox rows = %d, want 4", n)
	}
}

func TestSaga_StockReleasedWhenCartRestoreFails(t *testing.T) {
	h := newHarness(t, harnessOpt{outcome: decline})
	id := h.checkout(t)
	h.cartDown.Store(true)
	h.drain(t)

	if o := h.order(t, id); o.OrderStatus != entity.OrderCancelled {
		t.Fatalf("order status = %v", o.OrderStatus)
	}
	if got := h.stock(t); got != 5 {
		t.Fatalf("stock = %d, want 5", got)
	}
	if q := h.store.CartQuantity(buyer, product); q != 0 {
		t.Fatalf("cart qty = %d, want 0", q)
	}
	for _, m := range h.store.Outbox() {
		if m.ProcessedOn == nil {
			t.Fatalf("row %s left unprocessed", m.EventTypeName)
		}
	}
}

func TestSaga_WelcomeEmailRetriedUntilSent(t *testing.T) {
	h := newHarness(t, harnessOpt{outcome: approve, retryFailed: true})
	h.mail.fails = 1

	req := entity.UserRegisteredRequest{UserID: 3, Email: "ann@example.com", Name: "Ann"}
	if err := h.svc.AnnounceUserRegistered(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	h.drain(t)

	if len(h.mail.sent) != 1 {
		t.Fatalf("emails sent = %d, want 1", len(h.mail.sent))
	}
	e := h.mail.sent[0]
	if e.To != "ann@example.com" || e.Subject != "Welcome to the marketplace" || !strings.Contains(e.Body, "Ann") {
		t.Fatalf("email = %+v", e)
	}
	rows := h.store.Outbox()
	if rows[0].ErrorCount != 1 || rows[0].ProcessedOn == nil {
		t.Fatalf("row = %+v", rows[0])
	}
}
