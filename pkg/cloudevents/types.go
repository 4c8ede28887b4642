package cloudevents

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SpecVersion is the CloudEvents version emitted and accepted by this service
const SpecVersion = "1.0"

// Outbound invoice event types
const (
	InvoiceCreated     = "invoice.created"
	InvoiceItemAdded   = "invoice.item_added"
	InvoiceItemRemoved = "invoice.item_removed"
	InvoicePaid        = "invoice.paid"
	InvoiceFailed      = "invoice.failed"
	InvoiceCanceled    = "invoice.canceled"
	InvoiceRetried     = "invoice.retried"
)

// Inbound payment event types
const (
	PaymentAuthorized = "payment.authorized"
	PaymentFailed     = "payment.failed"
	PaymentCaptured   = "payment.captured"
	PaymentVoided     = "payment.voided"
)

// Source constants for event sources
const (
	SourceInvoiceService = "/invoicing/invoice-service"
	SourcePaymentService = "/payments/payment-service"
)

// ErrInvalidEvent is returned when an inbound envelope lacks required attributes
var ErrInvalidEvent = errors.New("invalid cloud event")

// CloudEvent is a CloudEvents v1.0 structured-mode envelope
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	Subject         string          `json:"subject,omitempty"`
	ID              string          `json:"id"`
	Time            time.Time       `json:"time"`
	DataContentType string          `json:"datacontenttype"`
	Data            json.RawMessage `json:"data,omitempty"`

	CorrelationID string `json:"correlationid,omitempty"`
	TraceParent   string `json:"traceparent,omitempty"`
	TraceState    string `json:"tracestate,omitempty"`
}

// Validate checks the attributes every consumer relies on
func (e *CloudEvent) Validate() error {
	switch {
	case e.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	case e.Type == "":
		return fmt.Errorf("%w: missing type", ErrInvalidEvent)
	case e.Source == "":
		return fmt.Errorf("%w: missing source", ErrInvalidEvent)
	case e.SpecVersion != SpecVersion:
		return fmt.Errorf("%w: unsupported specversion %q", ErrInvalidEvent, e.SpecVersion)
	}
	return nil
}

// DecodeData unmarshals the event payload into v
func (e *CloudEvent) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: empty data", ErrInvalidEvent)
	}
	return json.Unmarshal(e.Data, v)
}
