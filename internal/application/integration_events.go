package application

import "github.com/wms-platform/services/invoice-service/internal/domain"

// InvoiceCreatedIntegrationEvent enriches the domain event with the payment method the
// caller intends to use. It keeps the domain event's type name.
type InvoiceCreatedIntegrationEvent struct {
	*domain.InvoiceCreatedEvent
	PaymentMethodID string `json:"paymentMethodId"`
}

// InvoiceRetriedIntegrationEvent enriches a retry with the payment method to charge
type InvoiceRetriedIntegrationEvent struct {
	*domain.InvoiceRetriedEvent
	PaymentMethodID string `json:"paymentMethodId"`
}

// toIntegrationEvents maps Created and Retried events; all others pass through unchanged
func toIntegrationEvents(events []domain.DomainEvent, paymentMethodID string) []domain.DomainEvent {
	mapped := make([]domain.DomainEvent, len(events))
	for i, event := range events {
		switch e := event.(type) {
		case *domain.InvoiceCreatedEvent:
			mapped[i] = &InvoiceCreatedIntegrationEvent{InvoiceCreatedEvent: e, PaymentMethodID: paymentMethodID}
		case *domain.InvoiceRetriedEvent:
			mapped[i] = &InvoiceRetriedIntegrationEvent{InvoiceRetriedEvent: e, PaymentMethodID: paymentMethodID}
		default:
			mapped[i] = event
		}
	}
	return mapped
}
