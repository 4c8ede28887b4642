package cloudevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/services/invoice-service/pkg/logging"
)

// EventFactory creates CloudEvents stamped with a fixed source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{
		source: source,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateEvent wraps data in a new envelope. The correlation id is taken from ctx when present.
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data any) (*CloudEvent, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return &CloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.NewString(),
		Time:            f.now(),
		DataContentType: "application/json",
		Data:            payload,
		CorrelationID:   logging.CorrelationIDFromContext(ctx),
	}, nil
}

// InvoiceSubject returns the subject used for events about one invoice
func InvoiceSubject(invoiceID string) string {
	return "invoice/" + invoiceID
}
