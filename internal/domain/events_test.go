package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceEventTypes(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		event    DomainEvent
		expected string
	}{
		{&InvoiceCreatedEvent{InvoiceID: "inv-1", OccurredOn: at}, "invoice.created"},
		{&InvoiceItemAddedEvent{InvoiceID: "inv-1", OccurredOn: at}, "invoice.item_added"},
		{&InvoiceItemRemovedEvent{InvoiceID: "inv-1", OccurredOn: at}, "invoice.item_removed"},
		{&InvoicePaidEvent{InvoiceID: "inv-1", OccurredOn: at}, "invoice.paid"},
		{&InvoiceFailedEvent{InvoiceID: "inv-1", OccurredOn: at}, "invoice.failed"},
		{&InvoiceCanceledEvent{InvoiceID: "inv-1", OccurredOn: at}, "invoice.canceled"},
		{&InvoiceRetriedEvent{InvoiceID: "inv-1", OccurredOn: at}, "invoice.retried"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.event.EventType())
			assert.Equal(t, "inv-1", tt.event.AggregateID())
			assert.Equal(t, at, tt.event.OccurredAt())
		})
	}
}

func TestInvoiceCreatedEventPayload(t *testing.T) {
	event := &InvoiceCreatedEvent{
		InvoiceID: "inv-1",
		ClientID:  "client-1",
		Amount:    decimal.RequireFromString("100.50"),
		Currency:  "USD",
		ItemCount: 2,
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "inv-1", payload["invoiceId"])
	assert.Equal(t, "100.5", payload["amount"])
	assert.Equal(t, float64(2), payload["itemCount"])
}
