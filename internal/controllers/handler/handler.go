package handler

import (
	"context"
	"errors"
	"fmt"
	"marketplace/internal/appers"
	"marketplace/internal/application/common"
	"marketplace/internal/application/entity"
	use_cases "marketplace/internal/application/use-cases"
	"marketplace/pkg/validator"
	"strconv"
	"time"

	playgroundvalidator "github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handler interface {
	HealthCheck(c *fiber.Ctx) error
	Checkout(c *fiber.Ctx) error
	ProcessPayment(c *fiber.Ctx) error
	GetOrder(c *fiber.Ctx) error
	AddToCart(c *fiber.Ctx) error
	ListDeadLetters(c *fiber.Ctx) error
	RequeueOutbox(c *fiber.Ctx) error
	UserRegistered(c *fiber.Ctx) error
}

type HandlerImpl struct {
	usecase use_cases.UseCaser
	logger  *zap.SugaredLogger
	storage string
	bus     string
}

// NewHandler takes the storage and bus driver names reported by the health check.
func NewHandler(usecase use_cases.UseCaser, logger *zap.SugaredLogger, storage, bus string) *HandlerImpl {
	return &HandlerImpl{
		usecase: usecase,
		logger:  logger,
		storage: storage,
		bus:     bus,
	}
}

func formatValidationErrors(err error) fiber.Map {
	var details []string
	var validationErrors playgroundvalidator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			field := e.Field()
			var message string
			switch e.Tag() {
			case "required":
				message = fmt.Sprintf("field '%s' is required", field)
			case "gt", "gte":
				message = fmt.Sprintf("field '%s' must be greater than %s", field, e.Param())
			case "lte":
				message = fmt.Sprintf("field '%s' must be at most %s", field, e.Param())
			case "min":
				message = fmt.Sprintf("field '%s' must be at least %s characters", field, e.Param())
			case "max":
				message = fmt.Sprintf("field '%s' must be at most %s characters", field, e.Param())
			case "email":
				message = fmt.Sprintf("field '%s' must be a valid email address", field)
			case "idemkey":
				message = fmt.Sprintf("field '%s' must be up to 100 printable characters without spaces", field)
			default:
				message = fmt.Sprintf("field '%s' failed validation: %s", field, e.Tag())
			}
			details = append(details, message)
		}
	} else {
		details = append(details, err.Error())
	}
	return fiber.Map{
		"error":   "validation failed",
		"details": details,
	}
}

// parseBody decodes and validates the request body, writing the 400 itself.
func (h *HandlerImpl) parseBody(c *fiber.Ctx, out any) (bool, error) {
	if err := c.BodyParser(out); err != nil {
		h.logger.Errorf("error parsing body: %v", err)
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}
	if err := validator.Validate.Struct(out); err != nil {
		h.logger.Warnf("validation error: %v", err)
		return false, c.Status(fiber.StatusBadRequest).JSON(formatValidationErrors(err))
	}
	return true, nil
}

func paramID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, appers.ErrInvalidID
	}
	return id, nil
}

// HealthCheck godoc
// @Summary     Service health
// @Description Checks the storage backend and, with the Kafka bus, the broker.
// @Produce     json
// @Success     200   {object} entity.HealthCheckResponse "All dependencies are available"
// @Failure     503   {object} entity.HealthCheckResponse "A dependency is unavailable"
// @tags        Health
// @Router      /health [get]
func (h *HandlerImpl) HealthCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	storageHealthy, busHealthy, _ := h.usecase.HealthCheck(ctx)

	health := entity.HealthCheckResponse{
		Status:  storageHealthy && busHealthy,
		Message: "success",
		Version: common.Version,
		Checks: entity.HealthChecks{
			Storage: entity.HealthCheckItem{Status: storageHealthy, Driver: h.storage},
			Bus:     entity.HealthCheckItem{Status: busHealthy, Driver: h.bus},
		},
	}
	if !storageHealthy {
		health.Checks.Storage.Error = "storage unreachable"
		health.Message = "Some services are unavailable"
	}
	if !busHealthy {
		health.Checks.Bus.Error = "broker unreachable"
		health.Message = "Some services are unavailable"
	}

	if !health.Status {
		return c.Status(fiber.StatusServiceUnavailable).JSON(health)
	}
	return c.Status(fiber.StatusOK).JSON(health)
}

// Checkout godoc
// @Summary     Checkout
// @Description Turns the user's cart into a pending order, deducts stock and starts the order saga.
// @Accept      json
// @Produce     json
// @Param       body  body     entity.CheckoutRequest  true  "Checkout request"
// @Success     201   {object} entity.CheckoutResponse
// @Failure     400
// @Failure     409
// @Failure     500
// @tags        Order
// @Router      /v1/checkout [post]
func (h *HandlerImpl) Checkout(c *fiber.Ctx) error {
	var req entity.CheckoutRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	resp, err := h.usecase.Checkout(c.UserContext(), req)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// ProcessPayment godoc
// @Summary     Pay for an order
// @Description Charges the order through the payment gateway. A repeated idempotency key returns the recorded outcome.
// @Accept      json
// @Produce     json
// @Param       body  body     entity.PaymentRequest  true  "Payment request"
// @Success     200   {object} entity.PaymentResponse "Payment processed, see success"
// @Failure     400
// @Failure     404
// @Failure     500
// @tags        Payment
// @Router      /v1/payments [post]
func (h *HandlerImpl) ProcessPayment(c *fiber.Ctx) error {
	var req entity.PaymentRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	resp, err := h.usecase.ProcessPayment(c.UserContext(), req)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// GetOrder godoc
// @Summary     Order status
// @Description Returns the order with its lines.
// @Produce     json
// @Param       id   path     int  true  "Order ID"
// @Success     200  {object} entity.OrderDetail
// @Failure     400
// @Failure     404
// @Failure     500
// @tags        Order
// @Router      /v1/orders/{id} [get]
func (h *HandlerImpl) GetOrder(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	order, err := h.usecase.GetOrder(c.UserContext(), id)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(order)
}

// AddToCart godoc
// @Summary     Add to cart
// @Description Adds a quantity of a product to the user's cart.
// @Accept      json
// @Produce     json
// @Param       body  body     entity.AddToCartRequest  true  "Cart item"
// @Success     200
// @Failure     400
// @Failure     404
// @Failure     500
// @tags        Cart
// @Router      /v1/cart/items [post]
func (h *HandlerImpl) AddToCart(c *fiber.Ctx) error {
	var req entity.AddToCartRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	if err := h.usecase.AddToCart(c.UserContext(), req.UserID, req.ProductID, req.Quantity); err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"description": "ok"})
}

// ListDeadLetters godoc
// @Summary     Dead-lettered outbox messages
// @Description Lists unprocessed outbox messages that exhausted their retries.
// @Produce     json
// @Param       limit  query    int  false  "Maximum rows (default 100, max 500)"
// @Success     200    {array}  entity.OutboxMessage
// @Failure     400
// @Failure     500
// @tags        Outbox
// @Router      /v1/outbox/dead-letters [get]
func (h *HandlerImpl) ListDeadLetters(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	if limit <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be positive",
		})
	}

	msgs, err := h.usecase.ListDeadLetters(c.UserContext(), limit)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	if msgs == nil {
		msgs = []entity.OutboxMessage{}
	}
	return c.Status(fiber.StatusOK).JSON(msgs)
}

// RequeueOutbox godoc
// @Summary     Requeue an outbox message
// @Description Resets the error count of an unprocessed message so the relay picks it up again.
// @Produce     json
// @Param       id   path     int  true  "Outbox message ID"
// @Success     200
// @Failure     400
// @Failure     404
// @Failure     500
// @tags        Outbox
// @Router      /v1/outbox/{id}/requeue [post]
func (h *HandlerImpl) RequeueOutbox(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return appers.SanitizeError(c, err)
	}
	if err := h.usecase.RequeueOutbox(c.UserContext(), id); err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"description": "ok"})
}

// UserRegistered godoc
// @Summary     Announce a registered user
// @Description Records a UserRegistered event; subscribers send the welcome email.
// @Accept      json
// @Produce     json
// @Param       body  body     entity.UserRegisteredRequest  true  "Registered user"
// @Success     202
// @Failure     400
// @Failure     500
// @tags        User
// @Router      /v1/users/registered [post]
func (h *HandlerImpl) UserRegistered(c *fiber.Ctx) error {
	var req entity.UserRegisteredRequest
	if ok, err := h.parseBody(c, &req); !ok {
		return err
	}

	if err := h.usecase.AnnounceUserRegistered(c.UserContext(), req); err != nil {
		return appers.SanitizeError(c, err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"description": "accepted"})
}
