package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wms-platform/services/invoice-service/internal/api/handlers"
	"github.com/wms-platform/services/invoice-service/internal/application"
	"github.com/wms-platform/services/invoice-service/internal/config"
	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/internal/infrastructure/idgen"
	"github.com/wms-platform/services/invoice-service/internal/infrastructure/messaging"
	mongoRepo "github.com/wms-platform/services/invoice-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
	"github.com/wms-platform/services/invoice-service/pkg/idempotency"
	"github.com/wms-platform/services/invoice-service/pkg/kafka"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/metrics"
	"github.com/wms-platform/services/invoice-service/pkg/middleware"
	"github.com/wms-platform/services/invoice-service/pkg/mongodb"
	"github.com/wms-platform/services/invoice-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/services/invoice-service/pkg/outbox/mongodb"
	"github.com/wms-platform/services/invoice-service/pkg/tracing"
)

const serviceName = config.ServiceName

type mongoClient interface {
	Database() *mongo.Database
	Close(context.Context) error
	HealthCheck(context.Context) error
}

type kafkaProducer interface {
	kafka.EventPublisher
	Close() error
}

type kafkaConsumer interface {
	messaging.Subscriber
	Start(context.Context) error
	Close() error
}

type outboxPublisher interface {
	Start(context.Context) error
	Stop() error
}

type invoiceRepository interface {
	domain.InvoiceRepository
	EnsureIndexes(context.Context) error
}

type outboxRepository interface {
	outbox.Repository
	EnsureIndexes(context.Context) error
}

var loadConfig = config.Load

var newMongoClient = func(ctx context.Context, cfg *mongodb.Config, m *metrics.Metrics) (mongoClient, error) {
	client, err := mongodb.NewClient(ctx, cfg, m)
	if err != nil {
		return nil, err
	}
	return client, nil
}

var newKafkaProducer = func(cfg *kafka.Config, m *metrics.Metrics, logger *logging.Logger) kafkaProducer {
	return kafka.NewProductionProducer(cfg, m, logger)
}

var newKafkaConsumer = func(cfg *kafka.Config, m *metrics.Metrics, logger *logging.Logger) kafkaConsumer {
	return kafka.NewProductionConsumer(cfg, m, logger)
}

var newOutboxPublisher = func(repo outbox.Repository, producer kafka.EventPublisher, logger *logging.Logger, m *metrics.Metrics, cfg *outbox.PublisherConfig) outboxPublisher {
	return outbox.NewPublisher(repo, producer, logger, m, cfg)
}

var newInvoiceRepository = func(db *mongo.Database) invoiceRepository {
	return mongoRepo.NewInvoiceRepository(db)
}

var newOutboxRepository = func(db *mongo.Database) outboxRepository {
	return outboxMongo.NewOutboxRepository(db)
}

// newDedupRepository returns the processed-message store and a function releasing it
var newDedupRepository = func(ctx context.Context, cfg *config.Config, db *mongo.Database) (idempotency.MessageRepository, func() error, error) {
	if cfg.DedupStore != config.DedupStoreRedis {
		return idempotency.NewMongoMessageRepository(db), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return idempotency.NewRedisMessageRepository(client, serviceName+":processed:"), client.Close, nil
}

var newMetrics = metrics.New

var initTracing = tracing.Initialize

var startHTTPServer = func(srv *http.Server) error {
	return srv.ListenAndServe()
}

func main() {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	if err := run(context.Background(), signalCh); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, signalCh <-chan os.Signal) error {
	cfg, err := loadConfig()
	if err != nil {
		logging.New(logging.DefaultConfig(serviceName)).WithError(err).Error("Failed to load configuration")
		return err
	}

	// Setup logger
	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = cfg.LogLevel
	logConfig.Environment = cfg.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting invoice-service API", "eventBus", cfg.EventBus, "idStrategy", cfg.IDStrategy)

	// Initialize OpenTelemetry tracing
	tracerProvider, err := initTracing(ctx, cfg.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", cfg.Tracing.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	m := newMetrics(metrics.DefaultConfig(serviceName))

	// Initialize MongoDB
	mongoDB, err := newMongoClient(ctx, cfg.MongoDB, m)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		return err
	}
	defer mongoDB.Close(context.Background())
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	invoiceRepo := newInvoiceRepository(mongoDB.Database())
	outboxRepo := newOutboxRepository(mongoDB.Database())
	for name, ensure := range map[string]func(context.Context) error{
		"invoices": invoiceRepo.EnsureIndexes,
		"outbox":   outboxRepo.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			logger.WithError(err).Error("Failed to create indexes", "collection", name)
			return err
		}
	}

	// Initialize Kafka producer
	producer := newKafkaProducer(cfg.Kafka, m, logger)
	defer producer.Close()
	logger.Info("Kafka producer initialized", "brokers", cfg.Kafka.Brokers)

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceInvoiceService)

	var bus application.EventBus
	switch cfg.EventBus {
	case config.EventBusKafka:
		bus = messaging.NewKafkaEventBus(producer, eventFactory, cfg.Topics.Invoices, logger)
	default:
		bus = messaging.NewOutboxEventBus(outboxRepo, eventFactory, cfg.Topics.Invoices, logger)

		publisher := newOutboxPublisher(outboxRepo, producer, logger, m, cfg.Outbox)
		if err := publisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			return err
		}
		defer func() {
			if err := publisher.Stop(); err != nil {
				logger.WithError(err).Warn("Failed to stop outbox publisher")
			}
		}()
		logger.Info("Outbox publisher started", "pollInterval", cfg.Outbox.PollInterval)
	}

	ids, err := idgen.New(cfg.IDStrategy)
	if err != nil {
		logger.WithError(err).Error("Failed to create id generator")
		return err
	}

	fees, err := domain.NewFeeCalculator(domain.DefaultLateFeeSchedule())
	if err != nil {
		return err
	}

	invoiceService := application.NewInvoiceService(invoiceRepo, bus, ids, fees, logger, m)

	// Payment event consumer with deduplication
	dedupRepo, closeDedup, err := newDedupRepository(ctx, cfg, mongoDB.Database())
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dedup store", "store", cfg.DedupStore)
		return err
	}
	defer closeDedup()
	if err := dedupRepo.EnsureIndexes(ctx); err != nil {
		logger.WithError(err).Error("Failed to prepare dedup store", "store", cfg.DedupStore)
		return err
	}

	dedupConfig := idempotency.DefaultConsumerConfig(serviceName, cfg.Topics.Payments, cfg.Kafka.ConsumerGroup, dedupRepo, logger)
	dedupConfig.Metrics = m

	consumer := newKafkaConsumer(cfg.Kafka, m, logger)
	messaging.NewPaymentConsumer(invoiceService, logger, m).Register(consumer, cfg.Topics.Payments, dedupConfig)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Payment consumer stopped")
		}
	}()
	logger.Info("Payment consumer started", "topic", cfg.Topics.Payments, "group", cfg.Kafka.ConsumerGroup)

	// Setup Gin router with middleware
	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(serviceName)))

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, mongoDB.HealthCheck))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	handlers.NewInvoiceHandler(invoiceService, logger).RegisterRoutes(router.Group("/api/v1"))

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := startHTTPServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", cfg.ServerAddr)

	<-signalCh
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	stopConsumer()
	<-consumerDone
	if err := consumer.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close payment consumer")
	}

	logger.Info("Server stopped")
	return nil
}
