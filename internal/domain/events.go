package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
)

// DomainEvent is the base interface for all invoice domain events.
// The set of implementations is closed; see the types below.
type DomainEvent interface {
	EventType() string
	AggregateID() string
	OccurredAt() time.Time
}

// InvoiceCreatedEvent is emitted when a new invoice is created
type InvoiceCreatedEvent struct {
	InvoiceID  string          `json:"invoiceId"`
	ClientID   string          `json:"clientId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	DueDate    time.Time       `json:"dueDate"`
	ItemCount  int             `json:"itemCount"`
	OccurredOn time.Time       `json:"occurredOn"`
}

func (e *InvoiceCreatedEvent) EventType() string     { return cloudevents.InvoiceCreated }
func (e *InvoiceCreatedEvent) AggregateID() string   { return e.InvoiceID }
func (e *InvoiceCreatedEvent) OccurredAt() time.Time { return e.OccurredOn }

// InvoiceItemAddedEvent is emitted when a line is appended to a pending invoice
type InvoiceItemAddedEvent struct {
	InvoiceID   string          `json:"invoiceId"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
	NewTotal    decimal.Decimal `json:"newTotal"`
	Currency    string          `json:"currency"`
	OccurredOn  time.Time       `json:"occurredOn"`
}

func (e *InvoiceItemAddedEvent) EventType() string     { return cloudevents.InvoiceItemAdded }
func (e *InvoiceItemAddedEvent) AggregateID() string   { return e.InvoiceID }
func (e *InvoiceItemAddedEvent) OccurredAt() time.Time { return e.OccurredOn }

// InvoiceItemRemovedEvent is emitted when a line is removed from a pending invoice
type InvoiceItemRemovedEvent struct {
	InvoiceID   string          `json:"invoiceId"`
	Index       int             `json:"index"`
	Description string          `json:"description"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
	NewTotal    decimal.Decimal `json:"newTotal"`
	Currency    string          `json:"currency"`
	OccurredOn  time.Time       `json:"occurredOn"`
}

func (e *InvoiceItemRemovedEvent) EventType() string     { return cloudevents.InvoiceItemRemoved }
func (e *InvoiceItemRemovedEvent) AggregateID() string   { return e.InvoiceID }
func (e *InvoiceItemRemovedEvent) OccurredAt() time.Time { return e.OccurredOn }

// InvoicePaidEvent is emitted when an authorized invoice is captured
type InvoicePaidEvent struct {
	InvoiceID  string          `json:"invoiceId"`
	ClientID   string          `json:"clientId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	PaidAt     time.Time       `json:"paidAt"`
	OccurredOn time.Time       `json:"occurredOn"`
}

func (e *InvoicePaidEvent) EventType() string     { return cloudevents.InvoicePaid }
func (e *InvoicePaidEvent) AggregateID() string   { return e.InvoiceID }
func (e *InvoicePaidEvent) OccurredAt() time.Time { return e.OccurredOn }

// InvoiceFailedEvent is emitted when payment for an invoice fails
type InvoiceFailedEvent struct {
	InvoiceID  string    `json:"invoiceId"`
	ClientID   string    `json:"clientId"`
	Reason     string    `json:"reason"`
	FailedAt   time.Time `json:"failedAt"`
	OccurredOn time.Time `json:"occurredOn"`
}

func (e *InvoiceFailedEvent) EventType() string     { return cloudevents.InvoiceFailed }
func (e *InvoiceFailedEvent) AggregateID() string   { return e.InvoiceID }
func (e *InvoiceFailedEvent) OccurredAt() time.Time { return e.OccurredOn }

// InvoiceCanceledEvent is emitted when an invoice is canceled
type InvoiceCanceledEvent struct {
	InvoiceID  string    `json:"invoiceId"`
	ClientID   string    `json:"clientId"`
	Reason     string    `json:"reason,omitempty"`
	CanceledAt time.Time `json:"canceledAt"`
	OccurredOn time.Time `json:"occurredOn"`
}

func (e *InvoiceCanceledEvent) EventType() string     { return cloudevents.InvoiceCanceled }
func (e *InvoiceCanceledEvent) AggregateID() string   { return e.InvoiceID }
func (e *InvoiceCanceledEvent) OccurredAt() time.Time { return e.OccurredOn }

// InvoiceRetriedEvent is emitted when a failed invoice goes back to pending
type InvoiceRetriedEvent struct {
	InvoiceID  string          `json:"invoiceId"`
	ClientID   string          `json:"clientId"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	OccurredOn time.Time       `json:"occurredOn"`
}

func (e *InvoiceRetriedEvent) EventType() string     { return cloudevents.InvoiceRetried }
func (e *InvoiceRetriedEvent) AggregateID() string   { return e.InvoiceID }
func (e *InvoiceRetriedEvent) OccurredAt() time.Time { return e.OccurredOn }
