package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/services/invoice-service/internal/application"
	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
	sharedErrors "github.com/wms-platform/services/invoice-service/pkg/errors"
	"github.com/wms-platform/services/invoice-service/pkg/idempotency"
	"github.com/wms-platform/services/invoice-service/pkg/kafka"
	"github.com/wms-platform/services/invoice-service/pkg/metrics"
)

type call struct {
	op        string
	invoiceID string
	at        time.Time
	reason    string
}

type fakeUseCases struct {
	err   error
	calls []call
}

func (f *fakeUseCases) record(c call) (*application.InvoiceDTO, error) {
	f.calls = append(f.calls, c)
	if f.err != nil {
		return nil, f.err
	}
	return &application.InvoiceDTO{InvoiceID: c.invoiceID}, nil
}

func (f *fakeUseCases) MarkAsAuthorized(_ context.Context, id string, at time.Time) (*application.InvoiceDTO, error) {
	return f.record(call{op: "authorize", invoiceID: id, at: at})
}

func (f *fakeUseCases) MarkAsFailed(_ context.Context, id, reason string) (*application.InvoiceDTO, error) {
	return f.record(call{op: "fail", invoiceID: id, reason: reason})
}

func (f *fakeUseCases) Capture(_ context.Context, id string, at time.Time) (*application.InvoiceDTO, error) {
	return f.record(call{op: "capture", invoiceID: id, at: at})
}

func (f *fakeUseCases) Cancel(_ context.Context, id string, at time.Time, reason string) (*application.InvoiceDTO, error) {
	return f.record(call{op: "cancel", invoiceID: id, at: at, reason: reason})
}

func paymentEvent(t *testing.T, routingKey string, data any) *cloudevents.CloudEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return &cloudevents.CloudEvent{
		SpecVersion:     cloudevents.SpecVersion,
		Type:            routingKey,
		Source:          cloudevents.SourcePaymentService,
		ID:              "evt-" + routingKey,
		Time:            time.Now().UTC(),
		DataContentType: "application/json",
		Data:            raw,
	}
}

var sampleOccurredOn = []int64{2024, 1, 15, 10, 30, 0, 500000000}

func TestPaymentAuthorizedDecodesTimestamp(t *testing.T) {
	uc := &fakeUseCases{}
	consumer := NewPaymentConsumer(uc, testLogger(), nil)

	err := consumer.Handle(context.Background(), paymentEvent(t, cloudevents.PaymentAuthorized, map[string]any{
		"invoiceId":  "X",
		"occurredOn": sampleOccurredOn,
	}))
	require.NoError(t, err)

	require.Len(t, uc.calls, 1)
	assert.Equal(t, "authorize", uc.calls[0].op)
	assert.Equal(t, "X", uc.calls[0].invoiceID)
	assert.Equal(t, time.Date(2024, 1, 15, 10, 30, 0, 500000000, time.UTC), uc.calls[0].at)
	assert.Equal(t, "2024-01-15T10:30:00.5Z", uc.calls[0].at.Format(time.RFC3339Nano))
}

func TestPaymentDispatchTable(t *testing.T) {
	tests := []struct {
		routingKey string
		data       map[string]any
		want       call
	}{
		{
			cloudevents.PaymentFailed,
			map[string]any{"invoiceId": "inv-1", "reason": "card declined"},
			call{op: "fail", invoiceID: "inv-1", reason: "card declined"},
		},
		{
			cloudevents.PaymentCaptured,
			map[string]any{"invoiceId": "inv-1", "occurredOn": sampleOccurredOn},
			call{op: "capture", invoiceID: "inv-1", at: time.Date(2024, 1, 15, 10, 30, 0, 500000000, time.UTC)},
		},
		{
			cloudevents.PaymentVoided,
			map[string]any{"invoiceId": "inv-1", "occurredOn": sampleOccurredOn, "reason": "customer request"},
			call{op: "cancel", invoiceID: "inv-1", at: time.Date(2024, 1, 15, 10, 30, 0, 500000000, time.UTC), reason: "customer request"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.routingKey, func(t *testing.T) {
			uc := &fakeUseCases{}
			consumer := NewPaymentConsumer(uc, testLogger(), nil)

			require.NoError(t, consumer.Handle(context.Background(), paymentEvent(t, tt.routingKey, tt.data)))
			require.Len(t, uc.calls, 1)
			assert.Equal(t, tt.want, uc.calls[0])
		})
	}
}

func TestPaymentConsumerDropsUnknownAndPoison(t *testing.T) {
	tests := []struct {
		name  string
		event func(t *testing.T) *cloudevents.CloudEvent
	}{
		{"unknown routing key", func(t *testing.T) *cloudevents.CloudEvent {
			return paymentEvent(t, "payment.refunded", map[string]any{"invoiceId": "inv-1"})
		}},
		{"missing invoice id", func(t *testing.T) *cloudevents.CloudEvent {
			return paymentEvent(t, cloudevents.PaymentFailed, map[string]any{"reason": "x"})
		}},
		{"short tuple", func(t *testing.T) *cloudevents.CloudEvent {
			return paymentEvent(t, cloudevents.PaymentAuthorized, map[string]any{"invoiceId": "inv-1", "occurredOn": []int{2024, 1, 15}})
		}},
		{"missing tuple", func(t *testing.T) *cloudevents.CloudEvent {
			return paymentEvent(t, cloudevents.PaymentCaptured, map[string]any{"invoiceId": "inv-1"})
		}},
		{"bad json", func(t *testing.T) *cloudevents.CloudEvent {
			ce := paymentEvent(t, cloudevents.PaymentAuthorized, nil)
			ce.Data = json.RawMessage(`{"invoiceId":`)
			return ce
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &fakeUseCases{}
			consumer := NewPaymentConsumer(uc, testLogger(), nil)

			assert.NoError(t, consumer.Handle(context.Background(), tt.event(t)))
			assert.Empty(t, uc.calls)
		})
	}
}

func TestPaymentConsumerErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		routingKey  string
		err         error
		wantErr     bool
		wantOutcome string
	}{
		{
			name:        "void on paid invoice",
			routingKey:  cloudevents.PaymentVoided,
			err:         sharedErrors.ErrInvalidTransition("invalid invoice state transition").Wrap(fmt.Errorf("%w: cannot cancel invoice in status PAID", domain.ErrInvalidTransition)),
			wantOutcome: outcomeRejected,
		},
		{
			name:        "authorization redelivered",
			routingKey:  cloudevents.PaymentAuthorized,
			err:         fmt.Errorf("%w: cannot authorize invoice in status AUTHORIZED", domain.ErrInvalidTransition),
			wantOutcome: outcomeRejected,
		},
		{
			name:        "validation",
			routingKey:  cloudevents.PaymentFailed,
			err:         sharedErrors.ErrValidation("validation failed").Wrap(domain.ErrLastItem),
			wantOutcome: outcomeRejected,
		},
		{
			name:        "index out of range",
			routingKey:  cloudevents.PaymentFailed,
			err:         domain.ErrIndexOutOfRange,
			wantOutcome: outcomeRejected,
		},
		{
			name:        "unknown invoice",
			routingKey:  cloudevents.PaymentCaptured,
			err:         sharedErrors.ErrNotFoundWithID("invoice", "inv-1"),
			wantOutcome: outcomeRejected,
		},
		{
			name:        "concurrent modification",
			routingKey:  cloudevents.PaymentCaptured,
			err:         sharedErrors.ErrConcurrentModification("invoice").Wrap(domain.ErrConcurrentModification),
			wantErr:     true,
			wantOutcome: outcomeFailed,
		},
		{
			name:        "transport",
			routingKey:  cloudevents.PaymentAuthorized,
			err:         sharedErrors.ErrServiceUnavailable("event bus").Wrap(application.ErrTransport),
			wantErr:     true,
			wantOutcome: outcomeFailed,
		},
		{
			name:        "infrastructure",
			routingKey:  cloudevents.PaymentFailed,
			err:         errors.New("mongo down"),
			wantErr:     true,
			wantOutcome: outcomeFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New(metrics.DefaultConfig("invoice-service"))
			uc := &fakeUseCases{err: tt.err}
			consumer := NewPaymentConsumer(uc, testLogger(), m)

			err := consumer.Handle(context.Background(), paymentEvent(t, tt.routingKey, map[string]any{
				"invoiceId":  "inv-1",
				"reason":     "declined",
				"occurredOn": sampleOccurredOn,
			}))

			if tt.wantErr {
				assert.ErrorIs(t, err, tt.err)
			} else {
				assert.NoError(t, err)
			}
			assert.Len(t, uc.calls, 1)
			assert.Equal(t, 1.0, testutil.ToFloat64(
				m.PaymentEventsRouted.WithLabelValues("invoice-service", tt.routingKey, tt.wantOutcome)))
		})
	}
}

func TestDecodeOccurredOn(t *testing.T) {
	got, err := DecodeOccurredOn([]int64{2024, 2, 29, 23, 59, 59, 999999999})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 59, 999000000, time.UTC), got)

	for _, parts := range [][]int64{
		{2024, 0, 1, 0, 0, 0, 0},
		{2024, 13, 1, 0, 0, 0, 0},
		{2024, 1, 1, 24, 0, 0, 0},
		{2024, 1, 1, 0, 0, 0, 1000000000},
		{2024, 1, 1, 0, 0, 0, 0, 0},
		{2024, 2, 31, 10, 0, 0, 0},
		{2023, 2, 29, 10, 0, 0, 0},
		{2024, 4, 31, 0, 0, 0, 0},
	} {
		_, err := DecodeOccurredOn(parts)
		assert.ErrorIs(t, err, ErrPoisonMessage, "%v", parts)
	}
}

type fakeSubscriber struct {
	topic   string
	handler kafka.EventHandler
}

func (f *fakeSubscriber) SubscribeAll(topic string, handler kafka.EventHandler) {
	f.topic = topic
	f.handler = handler
}

type memoryMessageRepository struct {
	processed map[string]bool
}

func (m *memoryMessageRepository) MarkProcessed(_ context.Context, msg *idempotency.ProcessedMessage) error {
	if m.processed[msg.MessageID] {
		return idempotency.ErrMessageAlreadyProcessed
	}
	m.processed[msg.MessageID] = true
	return nil
}

func (m *memoryMessageRepository) IsProcessed(_ context.Context, messageID, _, _ string) (bool, error) {
	return m.processed[messageID], nil
}

func (m *memoryMessageRepository) EnsureIndexes(context.Context) error { return nil }

func TestRegisterDeduplicatesRedelivery(t *testing.T) {
	uc := &fakeUseCases{}
	consumer := NewPaymentConsumer(uc, testLogger(), nil)
	sub := &fakeSubscriber{}
	repo := &memoryMessageRepository{processed: map[string]bool{}}
	dedup := idempotency.DefaultConsumerConfig("invoice-service", "payments.events", "invoice-service", repo, testLogger())

	consumer.Register(sub, "payments.events", dedup)
	require.NotNil(t, sub.handler)
	assert.Equal(t, "payments.events", sub.topic)

	event := paymentEvent(t, cloudevents.PaymentAuthorized, map[string]any{
		"invoiceId":  "X",
		"occurredOn": sampleOccurredOn,
	})
	require.NoError(t, sub.handler(context.Background(), event))
	require.NoError(t, sub.handler(context.Background(), event))

	assert.Len(t, uc.calls, 1)
}
