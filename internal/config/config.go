package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wms-platform/services/invoice-service/internal/infrastructure/idgen"
	"github.com/wms-platform/services/invoice-service/pkg/kafka"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/mongodb"
	"github.com/wms-platform/services/invoice-service/pkg/outbox"
	"github.com/wms-platform/services/invoice-service/pkg/tracing"
)

// ServiceName identifies the service in logs, metrics, traces and consumer groups
const ServiceName = "invoice-service"

// Event bus implementations
const (
	EventBusOutbox = "outbox"
	EventBusKafka  = "kafka"
)

// Dedup stores for the payment consumer
const (
	DedupStoreMongo = "mongo"
	DedupStoreRedis = "redis"
)

// ErrInvalidConfig is returned when a setting has an unsupported value
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	ServerAddr  string
	Environment string
	LogLevel    logging.LogLevel

	MongoDB *mongodb.Config
	Kafka   *kafka.Config
	Topics  TopicConfig

	EventBus   string
	IDStrategy string
	DedupStore string
	Redis      RedisConfig

	Tracing *tracing.Config
	Outbox  *outbox.PublisherConfig
}

// TopicConfig names the topics the service writes to and reads from
type TopicConfig struct {
	Invoices string
	Payments string
}

// RedisConfig holds Redis connection settings for the dedup store
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_addr", ":8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", string(logging.LevelInfo))

	v.SetDefault("mongodb_uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb_database", "invoices")

	v.SetDefault("kafka_brokers", "localhost:9092")
	v.SetDefault("kafka_invoice_topic", kafka.Topics.InvoiceEvents)
	v.SetDefault("kafka_payment_topic", kafka.Topics.PaymentEvents)
	v.SetDefault("kafka_consumer_group", ServiceName)

	v.SetDefault("event_bus", EventBusOutbox)
	v.SetDefault("id_strategy", idgen.StrategyUUID)
	v.SetDefault("dedup_store", DedupStoreMongo)

	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("tracing_enabled", true)
	v.SetDefault("otel_exporter_otlp_endpoint", "localhost:4317")

	v.SetDefault("outbox_poll_interval", time.Second)
	v.SetDefault("outbox_batch_size", 100)
}

// Load reads configuration from defaults, the optional file named by CONFIG_FILE and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	mongoCfg := mongodb.DefaultConfig()
	mongoCfg.URI = v.GetString("mongodb_uri")
	mongoCfg.Database = v.GetString("mongodb_database")

	kafkaCfg := kafka.DefaultConfig()
	kafkaCfg.Brokers = splitList(v.GetString("kafka_brokers"))
	kafkaCfg.ConsumerGroup = v.GetString("kafka_consumer_group")
	kafkaCfg.ClientID = ServiceName

	tracingCfg := tracing.DefaultConfig(ServiceName)
	tracingCfg.Enabled = v.GetBool("tracing_enabled")
	tracingCfg.OTLPEndpoint = v.GetString("otel_exporter_otlp_endpoint")
	tracingCfg.Environment = v.GetString("environment")

	cfg := &Config{
		ServerAddr:  v.GetString("server_addr"),
		Environment: v.GetString("environment"),
		LogLevel:    logging.LogLevel(strings.ToLower(v.GetString("log_level"))),
		MongoDB:     mongoCfg,
		Kafka:       kafkaCfg,
		Topics: TopicConfig{
			Invoices: v.GetString("kafka_invoice_topic"),
			Payments: v.GetString("kafka_payment_topic"),
		},
		EventBus:   strings.ToLower(v.GetString("event_bus")),
		IDStrategy: strings.ToLower(v.GetString("id_strategy")),
		DedupStore: strings.ToLower(v.GetString("dedup_store")),
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		Tracing: tracingCfg,
		Outbox: &outbox.PublisherConfig{
			PollInterval: v.GetDuration("outbox_poll_interval"),
			BatchSize:    v.GetInt("outbox_batch_size"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings and required values
func (c *Config) Validate() error {
	switch c.EventBus {
	case EventBusOutbox, EventBusKafka:
	default:
		return fmt.Errorf("%w: EVENT_BUS %q, want %s or %s", ErrInvalidConfig, c.EventBus, EventBusOutbox, EventBusKafka)
	}

	switch c.IDStrategy {
	case idgen.StrategyUUID, idgen.StrategyULID:
	default:
		return fmt.Errorf("%w: ID_STRATEGY %q", ErrInvalidConfig, c.IDStrategy)
	}

	switch c.DedupStore {
	case DedupStoreMongo, DedupStoreRedis:
	default:
		return fmt.Errorf("%w: DEDUP_STORE %q", ErrInvalidConfig, c.DedupStore)
	}

	switch c.LogLevel {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("%w: LOG_LEVEL %q", ErrInvalidConfig, c.LogLevel)
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("%w: KAFKA_BROKERS is empty", ErrInvalidConfig)
	}
	if c.Topics.Invoices == "" || c.Topics.Payments == "" {
		return fmt.Errorf("%w: topic names are required", ErrInvalidConfig)
	}
	if c.Outbox.PollInterval <= 0 || c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("%w: outbox poll interval and batch size must be positive", ErrInvalidConfig)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
