package appers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

type ErrorResp struct {
	StatusCode int    `json:"statusCode,omitempty"`
	StatusDesc string `json:"statusDesc,omitempty"`
}

func (e ErrorResp) Error() string {
	return e.StatusDesc
}

// Business validation errors. They are returned to the caller synchronously and never emit events.
var (
	ErrCartEmpty = ErrorResp{
		http.StatusBadRequest,
		"cart is empty",
	}
	ErrInsufficientStock = ErrorResp{
		http.StatusConflict,
		"insufficient stock",
	}
	ErrInvalidAmount = ErrorResp{
		http.StatusBadRequest,
		"payment amount must be positive",
	}
	ErrOrderNotFound = ErrorResp{
		http.StatusNotFound,
		"order not found",
	}
	ErrOrderCancelled = ErrorResp{
		http.StatusConflict,
		"order is cancelled",
	}
	ErrProductNotFound = ErrorResp{
		http.StatusNotFound,
		"product not found",
	}
	ErrOutboxNotFound = ErrorResp{
		http.StatusNotFound,
		"outbox message not found",
	}
	ErrInvalidID = ErrorResp{
		http.StatusBadRequest,
		"id must be a positive integer",
	}
)

// ErrAlreadyProcessed reports that the ledger already holds the (message, consumer) pair.
var ErrAlreadyProcessed = errors.New("message already processed by consumer")

// SanitizeError maps known errors to their status code; anything else is a 500.
func SanitizeError(c *fiber.Ctx, err error) error {
	var errResp ErrorResp

	if ok := errors.As(err, &errResp); ok {
		return c.Status(errResp.StatusCode).JSON(fiber.Map{
			"message": err.Error(),
		})
	}
	return NewErr(c, http.StatusInternalServerError, err)
}

func NewErr(ctx *fiber.Ctx, status int, err error) error {
	return ctx.Status(status).JSON(fiber.Map{
		"message": err.Error(),
	})
}
