package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"marketplace/docs"
	"marketplace/internal/application"
	"marketplace/pkg/broker"
	"marketplace/pkg/config"
	"marketplace/pkg/db"
	"marketplace/pkg/httpserver"
	"marketplace/pkg/metrics"
	"marketplace/pkg/observability"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
)

// @title           Marketplace Service API
// @version         1.0
// @description     Checkout and order saga over a transactional outbox

// @BasePath /api

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := observability.InitLogger(conf.LoggingLevel, conf.LogFormat)

	logger.Infof("LOGGING_LEVEL = %s", conf.LoggingLevel)
	if strings.ToLower(conf.LoggingLevel) == "debug" {
		broker.EnableSaramaZapLogs(logger)
	}

	docs.SwaggerInfo.Host = conf.Server.SwaggerHost
	docs.SwaggerInfo.Schemes = []string{conf.Server.SwaggerSchema}

	m := metrics.New(prometheus.DefaultRegisterer)

	fiberServer := httpserver.NewFiber(conf, m)
	if fiberServer == nil {
		logger.Fatal(errors.New("fiber server is nil"))
	}

	var store *db.Postgres
	if conf.Storage.Driver != config.StorageMemory {
		store, err = db.NewPostgres(ctx, conf.Postgres)
		if err != nil {
			logger.Fatal(err)
		}
	}

	var kafka *broker.KafkaBroker
	if conf.Bus.Driver == config.BusKafka {
		kafka, err = broker.NewKafkaBroker(conf.Broker.Kafka, logger)
		if err != nil {
			logger.Fatal(err)
		}
	}

	server, err := application.NewApp(ctx, &conf, logger, store, fiberServer, kafka, m)
	if err != nil {
		logger.Fatal(err)
	}

	logger.Info("Marketplace service started successfully")
	logger.Info(fmt.Sprintf("Server config: %+v", conf.Server))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logger.Fatalf("error listening for server: %v", err)
				return
			}

			logger.Infof("server %v closed", conf.Server.Port)
		}
	}()

	// graceful shutdown
	osSignal := <-interrupt
	switch osSignal {
	case os.Interrupt:
		logger.Infof("%v Got SIGINT...", conf.Server.Port)
	case syscall.SIGTERM:
		logger.Infof("%v Got SIGTERM...", conf.Server.Port)
	}

	cancel()

	if err := server.Shutdown(); err != nil {
		logger.Fatalf("server %v forced to shutdown: %v", conf.Server.Port, err)
		return
	}

	if store != nil {
		store.Close()
		logger.Infof("postgres db connection closed")
	}

	logger.Infof("server shutdown %v done", conf.Server.Port)
}
