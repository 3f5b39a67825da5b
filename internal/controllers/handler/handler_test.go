package handler

import (
	"context"
	"encoding/json"
	"io"
	"marketplace/internal/application/entity"
	"marketplace/internal/application/repo/memory"
	"marketplace/internal/application/service"
	use_cases "marketplace/internal/application/use-cases"
	"marketplace/internal/transport/gateway"
	"marketplace/pkg/config"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T) (*fiber.App, *memory.Store) {
	t.Helper()
	logger := zap.NewNop().Sugar()
	conf := &config.Config{
		Payment: config.Payment{DefaultMethod: "CreditCard"},
		Relay:   config.RelayConfig{MaxRetries: 3},
	}
	store := memory.NewStore(logger)
	store.PutProduct(entity.Product{ID: 7, Name: "lamp", RetailPrice: 100, StockQty: 5})

	gw := gateway.Func(func(ctx context.Context, req gateway.ChargeRequest) (gateway.ChargeResult, error) {
		return gateway.ChargeResult{Approved: true, TransactionID: "tx"}, nil
	})
	svc := service.NewService(store, service.NewOutbox(store, logger), gw, nil, logger, conf)
	uc := use_cases.NewUseCase(svc, nil, nil, logger, conf, nil)

	app := fiber.New()
	NewRouter(NewHandler(uc, logger, config.StorageMemory, config.BusInProcess), app, conf, logger).RegisterRouter()
	return app, store
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)
	status, body := do(t, app, http.MethodGet, "/health", "")
	if status != http.StatusOK || body["status"] != true {
		t.Fatalf("status %d, body %v", status, body)
	}
}

func TestCheckoutFlow(t *testing.T) {
	app, store := newTestApp(t)

	status, _ := do(t, app, http.MethodPost, "/api/v1/cart/items", `{"userId":1,"productId":7,"quantity":2}`)
	if status != http.StatusOK {
		t.Fatalf("add to cart: %d", status)
	}

	status, body := do(t, app, http.MethodPost, "/api/v1/checkout", `{"userId":1}`)
	if status != http.StatusCreated {
		t.Fatalf("checkout: %d %v", status, body)
	}
	if body["totalAmount"] != float64(200) {
		t.Fatalf("total = %v", body["totalAmount"])
	}
	orderID := int64(body["orderId"].(float64))

	status, body = do(t, app, http.MethodGet, "/api/v1/orders/1", "")
	if status != http.StatusOK {
		t.Fatalf("get order: %d", status)
	}
	order := body["order"].(map[string]any)
	if int64(order["id"].(float64)) != orderID {
		t.Fatalf("order = %v", order)
	}

	status, body = do(t, app, http.MethodPost, "/api/v1/payments", `{"orderId":1,"amount":200,"idempotencyKey":"abc"}`)
	if status != http.StatusOK || body["success"] != true {
		t.Fatalf("payment: %d %v", status, body)
	}
	status, body = do(t, app, http.MethodPost, "/api/v1/payments", `{"orderId":1,"amount":200,"idempotencyKey":"abc"}`)
	if status != http.StatusOK || body["message"] != "Payment already processed" {
		t.Fatalf("replay: %d %v", status, body)
	}

	if n := len(store.Outbox()); n != 1 {
		t.Fatalf("outbox rows = %d, want 1", n)
	}
}

func TestCheckoutErrors(t *testing.T) {
	app, _ := newTestApp(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"malformed body", http.MethodPost, "/api/v1/checkout", `{`, http.StatusBadRequest},
		{"missing user", http.MethodPost, "/api/v1/checkout", `{}`, http.StatusBadRequest},
		{"empty cart", http.MethodPost, "/api/v1/checkout", `{"userId":9}`, http.StatusBadRequest},
		{"unknown product", http.MethodPost, "/api/v1/cart/items", `{"userId":1,"productId":99,"quantity":1}`, http.StatusNotFound},
		{"bad idempotency key", http.MethodPost, "/api/v1/payments", `{"orderId":1,"amount":5,"idempotencyKey":"has space"}`, http.StatusBadRequest},
		{"unknown order", http.MethodGet, "/api/v1/orders/404", "", http.StatusNotFound},
		{"bad order id", http.MethodGet, "/api/v1/orders/abc", "", http.StatusBadRequest},
		{"unknown outbox row", http.MethodPost, "/api/v1/outbox/5/requeue", "", http.StatusNotFound},
		{"bad email", http.MethodPost, "/api/v1/users/registered", `{"userId":1,"email":"nope","name":"A"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := do(t, app, tc.method, tc.path, tc.body)
			if status != tc.want {
				t.Fatalf("status = %d, want %d (%v)", status, tc.want, body)
			}
		})
	}
}

func TestInsufficientStockIsConflict(t *testing.T) {
	app, _ := newTestApp(t)
	do(t, app, http.MethodPost, "/api/v1/cart/items", `{"userId":1,"productId":7,"quantity":6}`)

	status, _ := do(t, app, http.MethodPost, "/api/v1/checkout", `{"userId":1}`)
	if status != http.StatusConflict {
		t.Fatalf("status = %d, want 409", status)
	}
}

func TestDeadLettersAndUserRegistered(t *testing.T) {
	app, store := newTestApp(t)

	status, _ := do(t, app, http.MethodPost, "/api/v1/users/registered", `{"userId":1,"email":"ann@example.com","name":"Ann"}`)
	if status != http.StatusAccepted {
		t.Fatalf("users/registered: %d", status)
	}
	if n := len(store.Outbox()); n != 1 {
		t.Fatalf("outbox rows = %d", n)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/outbox/dead-letters", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var rows []entity.OutboxMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || len(rows) != 0 {
		t.Fatalf("dead letters: %d %v", resp.StatusCode, rows)
	}
}
