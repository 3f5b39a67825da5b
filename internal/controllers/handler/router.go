package handler

import (
	"marketplace/pkg/config"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Router struct {
	handler Handler
	app     *fiber.App
	conf    *config.Config
	logger  *zap.SugaredLogger
}

func NewRouter(handler Handler, app *fiber.App, conf *config.Config, logger *zap.SugaredLogger) *Router {
	return &Router{
		logger:  logger,
		app:     app,
		conf:    conf,
		handler: handler,
	}
}

func (r *Router) RegisterRouter() {
	r.app.Get("/health", r.handler.HealthCheck)
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	swaggerURL := r.conf.Server.SwaggerUrl
	if swaggerURL == "" {
		swaggerURL = "/swagger/doc.json"
	}
	r.app.Get("/swagger/*", swagger.New(swagger.Config{
		DeepLinking: false,
		URL:         swaggerURL,
	}))

	r.app.Route("/api", func(router fiber.Router) {
		v1 := router.Group("/v1")

		v1.Post("/checkout", r.handler.Checkout)
		v1.Post("/payments", r.handler.ProcessPayment)
		v1.Get("/orders/:id", r.handler.GetOrder)
		v1.Post("/cart/items", r.handler.AddToCart)
		v1.Post("/users/registered", r.handler.UserRegistered)

		v1.Get("/outbox/dead-letters", r.handler.ListDeadLetters)
		v1.Post("/outbox/:id/requeue", r.handler.RequeueOutbox)
	})
}
