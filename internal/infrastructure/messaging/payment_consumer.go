package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wms-platform/services/invoice-service/internal/application"
	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
	sharedErrors "github.com/wms-platform/services/invoice-service/pkg/errors"
	"github.com/wms-platform/services/invoice-service/pkg/idempotency"
	"github.com/wms-platform/services/invoice-service/pkg/kafka"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/metrics"
)

// ErrPoisonMessage marks a payment event whose payload cannot be interpreted
var ErrPoisonMessage = errors.New("malformed payment event")

// PaymentUseCases is the subset of the invoice service driven by payment events
type PaymentUseCases interface {
	MarkAsAuthorized(ctx context.Context, invoiceID string, at time.Time) (*application.InvoiceDTO, error)
	MarkAsFailed(ctx context.Context, invoiceID, reason string) (*application.InvoiceDTO, error)
	Capture(ctx context.Context, invoiceID string, at time.Time) (*application.InvoiceDTO, error)
	Cancel(ctx context.Context, invoiceID string, at time.Time, reason string) (*application.InvoiceDTO, error)
}

// Subscriber registers a handler for every event type on a topic
type Subscriber interface {
	SubscribeAll(topic string, handler kafka.EventHandler)
}

// PaymentEventPayload is the data of an inbound payment CloudEvent
type PaymentEventPayload struct {
	InvoiceID  string  `json:"invoiceId"`
	Reason     string  `json:"reason,omitempty"`
	OccurredOn []int64 `json:"occurredOn,omitempty"`
}

// Payment event outcomes recorded in metrics
const (
	outcomeHandled  = "handled"
	outcomeUnknown  = "unknown"
	outcomePoison   = "poison"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

// PaymentConsumer maps payment routing keys onto invoice use cases.
// Unknown keys, malformed payloads and events the invoice rules reject are logged and
// acknowledged. Other use-case errors are returned so the message is retried.
type PaymentConsumer struct {
	invoices PaymentUseCases
	logger   *logging.Logger
	metrics  *metrics.Metrics
}

// NewPaymentConsumer creates a new PaymentConsumer. m may be nil.
func NewPaymentConsumer(invoices PaymentUseCases, logger *logging.Logger, m *metrics.Metrics) *PaymentConsumer {
	return &PaymentConsumer{
		invoices: invoices,
		logger:   logger.WithComponent("payment-consumer"),
		metrics:  m,
	}
}

// Register subscribes the consumer to topic. When dedup is non-nil, events already
// processed by the consumer group are acknowledged without running a use case.
func (c *PaymentConsumer) Register(sub Subscriber, topic string, dedup *idempotency.ConsumerConfig) {
	handler := kafka.EventHandler(c.Handle)
	if dedup != nil {
		handler = idempotency.DeduplicatingHandler(dedup, handler)
	}
	sub.SubscribeAll(topic, handler)
}

// Handle dispatches one payment event
func (c *PaymentConsumer) Handle(ctx context.Context, event *cloudevents.CloudEvent) error {
	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"routingKey": event.Type,
		"eventId":    event.ID,
	})

	switch event.Type {
	case cloudevents.PaymentAuthorized, cloudevents.PaymentFailed, cloudevents.PaymentCaptured, cloudevents.PaymentVoided:
	default:
		log.Warn("Dropping payment event with unknown routing key")
		c.record(event.Type, outcomeUnknown)
		return nil
	}

	payload, at, err := decodePayment(event)
	if err != nil {
		log.WithError(err).Warn("Dropping malformed payment event")
		c.record(event.Type, outcomePoison)
		return nil
	}
	log = log.WithInvoice(payload.InvoiceID)

	switch event.Type {
	case cloudevents.PaymentAuthorized:
		_, err = c.invoices.MarkAsAuthorized(ctx, payload.InvoiceID, at)
	case cloudevents.PaymentFailed:
		_, err = c.invoices.MarkAsFailed(ctx, payload.InvoiceID, payload.Reason)
	case cloudevents.PaymentCaptured:
		_, err = c.invoices.Capture(ctx, payload.InvoiceID, at)
	case cloudevents.PaymentVoided:
		_, err = c.invoices.Cancel(ctx, payload.InvoiceID, at, payload.Reason)
	}

	if err != nil {
		if isRejection(err) {
			log.WithError(err).Warn("Payment event rejected by invoice rules")
			c.record(event.Type, outcomeRejected)
			return nil
		}
		log.WithError(err).Error("Payment event handling failed")
		c.record(event.Type, outcomeFailed)
		return err
	}

	log.Info("Payment event applied")
	c.record(event.Type, outcomeHandled)
	return nil
}

// isRejection reports use-case errors that redelivery cannot change
func isRejection(err error) bool {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrIndexOutOfRange):
		return true
	}
	if appErr, ok := sharedErrors.AsAppError(err); ok {
		return appErr.Code == sharedErrors.CodeNotFound
	}
	return false
}

func (c *PaymentConsumer) record(routingKey, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordPaymentEvent(routingKey, outcome)
	}
}

// decodePayment reads the payload; the timestamp is required for every key but payment.failed
func decodePayment(event *cloudevents.CloudEvent) (PaymentEventPayload, time.Time, error) {
	var payload PaymentEventPayload
	if err := event.DecodeData(&payload); err != nil {
		return payload, time.Time{}, fmt.Errorf("%w: %w", ErrPoisonMessage, err)
	}
	if payload.InvoiceID == "" {
		return payload, time.Time{}, fmt.Errorf("%w: missing invoiceId", ErrPoisonMessage)
	}
	if event.Type == cloudevents.PaymentFailed {
		return payload, time.Time{}, nil
	}

	at, err := DecodeOccurredOn(payload.OccurredOn)
	if err != nil {
		return payload, time.Time{}, err
	}
	return payload, at, nil
}

// DecodeOccurredOn converts [year, month, day, hour, minute, second, nanosecond] into a
// UTC instant truncated to milliseconds. Month is 1-based.
func DecodeOccurredOn(parts []int64) (time.Time, error) {
	if len(parts) != 7 {
		return time.Time{}, fmt.Errorf("%w: occurredOn has %d fields, want 7", ErrPoisonMessage, len(parts))
	}

	year, month, day := parts[0], parts[1], parts[2]
	hour, minute, second, nanos := parts[3], parts[4], parts[5], parts[6]
	switch {
	case month < 1 || month > 12:
		return time.Time{}, fmt.Errorf("%w: occurredOn month %d", ErrPoisonMessage, month)
	case day < 1 || day > 31:
		return time.Time{}, fmt.Errorf("%w: occurredOn day %d", ErrPoisonMessage, day)
	case hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59:
		return time.Time{}, fmt.Errorf("%w: occurredOn time %02d:%02d:%02d", ErrPoisonMessage, hour, minute, second)
	case nanos < 0 || nanos >= int64(time.Second):
		return time.Time{}, fmt.Errorf("%w: occurredOn nanosecond %d", ErrPoisonMessage, nanos)
	}

	t := time.Date(int(year), time.Month(month), int(day), int(hour), int(minute), int(second), int(nanos), time.UTC)
	if int64(t.Year()) != year || int64(t.Month()) != month || int64(t.Day()) != day {
		return time.Time{}, fmt.Errorf("%w: occurredOn date %04d-%02d-%02d does not exist", ErrPoisonMessage, year, month, day)
	}
	return t.Truncate(time.Millisecond), nil
}
