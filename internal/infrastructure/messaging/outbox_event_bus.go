package messaging

import (
	"context"
	"fmt"

	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/outbox"
)

// OutboxEventBus stores invoice events in the outbox; the outbox publisher relays them
// to Kafka. All events of one call are written in a single ordered insert.
type OutboxEventBus struct {
	repo    outbox.Repository
	factory *cloudevents.EventFactory
	topic   string
	logger  *logging.Logger
}

// NewOutboxEventBus creates a new OutboxEventBus
func NewOutboxEventBus(repo outbox.Repository, factory *cloudevents.EventFactory, topic string, logger *logging.Logger) *OutboxEventBus {
	return &OutboxEventBus{
		repo:    repo,
		factory: factory,
		topic:   topic,
		logger:  logger.WithComponent("outbox-event-bus"),
	}
}

// Publish writes events to the outbox in order
func (b *OutboxEventBus) Publish(ctx context.Context, events []domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	envelopes, err := toCloudEvents(ctx, b.factory, events)
	if err != nil {
		return err
	}

	rows := make([]*outbox.OutboxEvent, len(envelopes))
	for i, ce := range envelopes {
		row, err := outbox.NewOutboxEvent(events[i].AggregateID(), aggregateType, b.topic, ce)
		if err != nil {
			return err
		}
		rows[i] = row
	}

	if err := b.repo.SaveAll(ctx, rows); err != nil {
		return fmt.Errorf("failed to store %d events in outbox: %w", len(rows), err)
	}

	b.logger.WithContext(ctx).Debug("Stored invoice events in outbox",
		"invoiceId", events[0].AggregateID(),
		"eventCount", len(rows),
	)
	return nil
}
