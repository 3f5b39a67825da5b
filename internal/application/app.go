package application

import (
	"context"
	"fmt"
	"marketplace/internal/application/bus"
	"marketplace/internal/application/common"
	"marketplace/internal/application/entity"
	"marketplace/internal/application/repo"
	"marketplace/internal/application/repo/memory"
	"marketplace/internal/application/saga"
	"marketplace/internal/application/service"
	use_cases "marketplace/internal/application/use-cases"
	"marketplace/internal/controllers/cron"
	"marketplace/internal/controllers/handler"
	"marketplace/internal/controllers/listener"
	"marketplace/internal/transport/gateway"
	"marketplace/internal/transport/notifier"
	"marketplace/internal/transport/producer"
	"marketplace/pkg/broker"
	"marketplace/pkg/config"
	"marketplace/pkg/db"
	"marketplace/pkg/httpclient"
	"marketplace/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type App struct {
	ctx            context.Context
	conf           *config.Config
	logger         *zap.SugaredLogger
	httpServer     *fiber.App
	kafka          *broker.KafkaBroker
	cronController *cron.Controller
	mailClient     *httpclient.Client
}

// NewApp wires the service. postgres is nil with memory storage, kafkaBroker
// is nil with the in-process bus.
func NewApp(
	ctx context.Context,
	conf *config.Config,
	logger *zap.SugaredLogger,
	postgres *db.Postgres,
	httpServer *fiber.App,
	kafkaBroker *broker.KafkaBroker,
	m *metrics.Metrics) (*App, error) {
	logger.Infof("starting Marketplace Service version %s (storage %s, bus %s)",
		common.Version, conf.Storage.Driver, conf.Bus.Driver)

	store, err := newStore(conf, postgres, logger)
	if err != nil {
		return nil, err
	}

	var kafkaProducer *producer.KafkaProducer
	var brokerHealth service.HealthChecker
	if kafkaBroker != nil {
		kafkaProducer = producer.NewProducer(kafkaBroker, logger, conf.Broker.Kafka.MaxAttempts, m)
		brokerHealth = kafkaProducer
	}

	outbox := service.NewOutbox(store, logger)
	gw := gateway.NewSimulated(conf.Payment.SuccessRate, logger)
	srv := service.NewService(store, outbox, gw, brokerHealth, logger, conf)

	mailer, mailClient := newNotifier(conf, logger)
	sagaHandlers := saga.NewHandlers(srv, outbox, mailer, logger)
	dispatcher := bus.NewDispatcher(saga.Routes(sagaHandlers), store, store, logger, m)

	var publisher bus.Publisher
	var receiver use_cases.Receiver
	switch conf.Bus.Driver {
	case config.BusKafka:
		if kafkaBroker == nil {
			return nil, fmt.Errorf("bus driver %q needs a kafka broker", conf.Bus.Driver)
		}
		kafkaBus := bus.NewKafka(kafkaProducer, dispatcher, logger, m)
		publisher, receiver = kafkaBus, kafkaBus
	case config.BusInProcess, "":
		publisher = bus.NewInProcess(dispatcher, logger, m, bus.WithRetryFailed(conf.Bus.RetryFailedHandlers))
	default:
		return nil, fmt.Errorf("unknown bus driver %q", conf.Bus.Driver)
	}

	relay := service.NewRelay(store, publisher, conf.Relay, logger, m)
	uc := use_cases.NewUseCase(srv, relay, receiver, logger, conf, m)

	h := handler.NewHandler(uc, logger, conf.Storage.Driver, conf.Bus.Driver)
	handler.NewRouter(h, httpServer, conf, logger).RegisterRouter()

	cronController := cron.NewController(ctx, logger)
	if err := cronController.RegisterDeadLetterMonitorJob(uc, conf.Cron); err != nil {
		return nil, err
	}
	cronController.Start()

	go uc.RunRelay(ctx)

	app := &App{
		ctx:            ctx,
		conf:           conf,
		logger:         logger,
		httpServer:     httpServer,
		kafka:          kafkaBroker,
		cronController: cronController,
		mailClient:     mailClient,
	}

	if receiver != nil {
		consumer := listener.NewKafkaBrokerConsumer(uc, logger, conf.Broker.Kafka.MaxDeliveries, m)
		go app.runConsumer(ctx, consumer)
	}

	return app, nil
}

func newStore(conf *config.Config, postgres *db.Postgres, logger *zap.SugaredLogger) (repo.Repo, error) {
	switch conf.Storage.Driver {
	case config.StoragePostgres, "":
		if postgres == nil {
			return nil, fmt.Errorf("storage driver %q needs a postgres connection", conf.Storage.Driver)
		}
		return repo.NewRepo(postgres, logger), nil
	case config.StorageMemory:
		logger.Warn("memory storage: data is lost on restart, a demo catalog is loaded")
		store := memory.NewStore(logger)
		for _, p := range demoCatalog {
			store.PutProduct(p)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", conf.Storage.Driver)
	}
}

var demoCatalog = []entity.Product{
	{ID: 1, Name: "Mechanical keyboard", RetailPrice: 12000, DiscountPercent: 10, StockQty: 25},
	{ID: 2, Name: "USB-C cable", RetailPrice: 900, StockQty: 200},
	{ID: 3, Name: "27\" monitor", RetailPrice: 34900, DiscountPercent: 5, StockQty: 8},
}

// newNotifier posts to the mail gateway when one is configured, otherwise it only logs.
func newNotifier(conf *config.Config, logger *zap.SugaredLogger) (notifier.Notifier, *httpclient.Client) {
	if conf.Notifier.URL == "" {
		return notifier.NewLogNotifier(logger), nil
	}
	client := httpclient.NewClient(conf.HTTPClient)
	retrying := httpclient.NewRetryClient(client, conf.HTTPClient.MaxRetries, logger)
	return notifier.NewHTTPNotifier(retrying, conf.Notifier.URL, conf.Notifier.From, logger), client
}

func (a *App) Run() error {
	return a.httpServer.Listen(fmt.Sprintf(":%s", a.conf.Server.Port))
}

func (a *App) Shutdown() error {
	if a.cronController != nil {
		a.cronController.Stop()
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			a.logger.Errorf("closing kafka clients: %v", err)
		}
	}
	if a.mailClient != nil {
		a.mailClient.CloseIdle()
	}
	return a.httpServer.Shutdown()
}

func (a *App) runConsumer(ctx context.Context, consumer *listener.KafkaBrokerConsumer) {
	a.logger.Infof("starting consumer group %s on topic %s", a.kafka.Group, a.kafka.Topic)

	for {
		err := a.kafka.ConsumerGroup.Consume(ctx, []string{a.kafka.Topic}, consumer)
		if err != nil {
			a.logger.Errorf("consumer session ended: %v", err)
		}
		if ctx.Err() != nil {
			a.logger.Info("consumer stopped")
			return
		}
	}
}
