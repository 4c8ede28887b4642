package idempotency

import (
	"time"

	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/metrics"
)

// DefaultRetentionPeriod is how long processed message ids are remembered
const DefaultRetentionPeriod = 7 * 24 * time.Hour

// ConsumerConfig holds configuration for Kafka consumer message deduplication
type ConsumerConfig struct {
	// ServiceName is the name of the service consuming messages
	ServiceName string

	// Topic is the Kafka topic being consumed
	Topic string

	// ConsumerGroup is the Kafka consumer group
	ConsumerGroup string

	// Repository is the storage backend for processed messages
	Repository MessageRepository

	// RetentionPeriod is how long processed message IDs are retained
	RetentionPeriod time.Duration

	Logger  *logging.Logger
	Metrics *metrics.Metrics
}

// DefaultConsumerConfig returns a default consumer configuration
func DefaultConsumerConfig(serviceName, topic, consumerGroup string, repository MessageRepository, logger *logging.Logger) *ConsumerConfig {
	return &ConsumerConfig{
		ServiceName:     serviceName,
		Topic:           topic,
		ConsumerGroup:   consumerGroup,
		Repository:      repository,
		RetentionPeriod: DefaultRetentionPeriod,
		Logger:          logger,
	}
}
