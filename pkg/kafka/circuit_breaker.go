package kafka

import (
	"context"

	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/metrics"
	"github.com/wms-platform/services/invoice-service/pkg/resilience"
)

// CircuitBreakerProducer guards an EventPublisher with a circuit breaker
type CircuitBreakerProducer struct {
	producer       EventPublisher
	circuitBreaker *resilience.CircuitBreaker
}

// NewCircuitBreakerProducer creates a new circuit breaker protected Kafka producer
func NewCircuitBreakerProducer(producer EventPublisher, m *metrics.Metrics, logger *logging.Logger) *CircuitBreakerProducer {
	config := resilience.DefaultCircuitBreakerConfig("kafka-producer")

	var cb *resilience.CircuitBreaker
	if logger != nil {
		cb = resilience.NewCircuitBreaker(config, logger.Logger, m)
	} else {
		cb = resilience.NewCircuitBreaker(config, nil, m)
	}

	return &CircuitBreakerProducer{
		producer:       producer,
		circuitBreaker: cb,
	}
}

// PublishEvent publishes a CloudEvent with circuit breaker protection
func (p *CircuitBreakerProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	return p.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		return p.producer.PublishEvent(ctx, topic, event)
	})
}

// Close closes the underlying producer when it supports closing
func (p *CircuitBreakerProducer) Close() error {
	if closer, ok := p.producer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// NewProductionProducer builds a producer wrapped in instrumentation and a circuit breaker
func NewProductionProducer(config *Config, m *metrics.Metrics, logger *logging.Logger) *CircuitBreakerProducer {
	return NewCircuitBreakerProducer(NewInstrumentedProducer(NewProducer(config), m, logger), m, logger)
}

// NewProductionConsumer builds an instrumented consumer
func NewProductionConsumer(config *Config, m *metrics.Metrics, logger *logging.Logger) *InstrumentedConsumer {
	return NewInstrumentedConsumer(NewConsumer(config, logger.Logger), m, logger)
}
