package httpserver

import (
	"errors"
	"marketplace/pkg/config"
	"marketplace/pkg/metrics"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func NewFiber(conf config.Config, m *metrics.Metrics) *fiber.App {
	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 1024 * 100,
			BodyLimit:      conf.Server.BodyLimit,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				code := fiber.StatusInternalServerError
				var fe *fiber.Error
				if errors.As(err, &fe) {
					code = fe.Code
				}
				return c.Status(code).JSON(fiber.Map{
					"status":  false,
					"message": err.Error(),
				})
			},
		},
	)

	app.Use(
		cors.New(cors.Config{
			AllowOrigins:  "*",
			ExposeHeaders: "Authorization",
		}),
		recover.New(recover.Config{
			EnableStackTrace: true,
		}),
		logger.New(),
	)

	if m != nil {
		app.Use(requestMetrics(m))
	}

	return app
}

// requestMetrics labels by route pattern, not raw path, to keep cardinality bounded.
func requestMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Path()
		method := c.Method()
		if r := c.Route(); r != nil {
			if r.Path != "" {
				path = r.Path
			}
			if r.Method != "" {
				method = r.Method
			}
		}
		method = strings.ToUpper(strings.TrimSpace(method))

		status := strconv.Itoa(c.Response().StatusCode())
		m.API.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.API.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		return err
	}
}
