package messaging

import (
	"context"
	"fmt"

	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
)

// aggregateType labels outbox rows written for invoices
const aggregateType = "Invoice"

// toCloudEvents wraps each event, in order, in an envelope typed by its EventType
func toCloudEvents(ctx context.Context, factory *cloudevents.EventFactory, events []domain.DomainEvent) ([]*cloudevents.CloudEvent, error) {
	envelopes := make([]*cloudevents.CloudEvent, 0, len(events))
	for _, event := range events {
		ce, err := factory.CreateEvent(ctx, event.EventType(), cloudevents.InvoiceSubject(event.AggregateID()), event)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s envelope: %w", event.EventType(), err)
		}
		envelopes = append(envelopes, ce)
	}
	return envelopes, nil
}
