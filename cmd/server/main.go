package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dispatch/internal/app"
	"dispatch/internal/config"
	"dispatch/internal/event"
	"dispatch/internal/handler"
	"dispatch/internal/jobs"
	internalRedis "dispatch/internal/redis"
	"dispatch/internal/relay"
	"dispatch/internal/repository/postgres"
	"dispatch/internal/service"
)

func main() {
	// Load .env in development; real environments set variables directly.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic first so database and redis get instrumented.
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize new relic", zap.Error(err))
		} else {
			logger.Info("new relic enabled", zap.String("app", cfg.NewRelic.AppName))
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to postgres")

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("connected to redis")

	runCtx, stop := context.WithCancel(context.Background())
	defer stop()

	server, cleanup := wire(runCtx, db, redisClient, nrApp, cfg, logger)
	defer cleanup()

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

// wire builds the full dependency graph, starts the background loops,
// and returns the HTTP server plus a cleanup for the broker handles.
func wire(ctx context.Context, db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config, logger *zap.Logger) (*http.Server, func()) {
	// Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	offerStore := internalRedis.NewOfferStore(redisClient)
	deliveryStore := internalRedis.NewDeliveryStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Repositories.
	earningRepo := postgres.NewEarningRepository(db)
	outboxRepo := postgres.NewOutboxRepository(db)

	// Broker side: direct producer for telemetry, outbox for the rest.
	producer := event.NewKafkaProducer(cfg.Kafka.Brokers)
	emitter := event.NewEmitter(outboxRepo)
	publisher := event.NewPublisher(outboxRepo, producer, event.PublisherConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, logger)
	go publisher.Run(ctx)

	// Services.
	courierService := service.NewCourierService(locationStore, earningRepo, producer, logger)
	deliveryService := service.NewDeliveryService(deliveryStore, earningRepo, cacheStore, emitter, logger)
	offerService := service.NewOfferService(offerStore, deliveryStore, deliveryService, logger)
	dispatchService := service.NewDispatchService(locationStore, offerStore, emitter, logger)

	// Inbound consumer.
	consumer := event.NewConsumer(event.ConsumerConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
	}, dispatchService, logger)
	go consumer.Run(ctx)

	// Relay.
	authenticator := relay.NewAuthenticator(cfg.Auth.JWTSecret)
	hub := relay.NewHub(logger)
	bridge := relay.NewBridge(relay.BridgeConfig{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.BridgeGroupID,
	}, hub, logger)
	go bridge.Run(ctx)

	// Background jobs.
	sweepJob := jobs.NewOfferSweepJob(offerStore, logger)
	if err := sweepJob.Start(); err != nil {
		logger.Fatal("failed to start offer sweep job", zap.Error(err))
	}

	// Handlers.
	courierHandler := handler.NewCourierHandler(courierService, offerService, deliveryService)
	orderHandler := handler.NewOrderHandler(cacheStore)

	router := app.NewRouter(app.RouterDeps{
		CourierHandler: courierHandler,
		OrderHandler:   orderHandler,
		Hub:            hub,
		Authenticator:  authenticator,
		Actions:        app.NewRelayActions(courierService, offerService, deliveryService),
		RedisClient:    redisClient,
		NewRelicApp:    nrApp,
		Logger:         logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	cleanup := func() {
		sweepJob.Stop()
		publisher.Shutdown()
		consumer.Close()
		bridge.Close()
		producer.Close()
	}
	return server, cleanup
}
