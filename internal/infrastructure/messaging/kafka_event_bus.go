package messaging

import (
	"context"
	"fmt"

	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
	"github.com/wms-platform/services/invoice-service/pkg/kafka"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
)

// KafkaEventBus publishes invoice events straight to Kafka.
// Publishing stops at the first failure; earlier events stay published.
type KafkaEventBus struct {
	producer kafka.EventPublisher
	factory  *cloudevents.EventFactory
	topic    string
	logger   *logging.Logger
}

// NewKafkaEventBus creates a new KafkaEventBus
func NewKafkaEventBus(producer kafka.EventPublisher, factory *cloudevents.EventFactory, topic string, logger *logging.Logger) *KafkaEventBus {
	return &KafkaEventBus{
		producer: producer,
		factory:  factory,
		topic:    topic,
		logger:   logger.WithComponent("kafka-event-bus"),
	}
}

// Publish sends events in order
func (b *KafkaEventBus) Publish(ctx context.Context, events []domain.DomainEvent) error {
	envelopes, err := toCloudEvents(ctx, b.factory, events)
	if err != nil {
		return err
	}

	for i, ce := range envelopes {
		if err := b.producer.PublishEvent(ctx, b.topic, ce); err != nil {
			return fmt.Errorf("failed to publish %s (%d of %d): %w", ce.Type, i+1, len(envelopes), err)
		}
		b.logger.WithContext(ctx).Debug("Published invoice event",
			"eventType", ce.Type,
			"eventId", ce.ID,
			"subject", ce.Subject,
		)
	}
	return nil
}
