package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/services/invoice-service/internal/application"
	"github.com/wms-platform/services/invoice-service/internal/domain"
	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/outbox"
)

type fakePublisher struct {
	publishFn func(context.Context, string, *cloudevents.CloudEvent) error
	sent      []*cloudevents.CloudEvent
	topics    []string
}

func (f *fakePublisher) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, topic, event); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, event)
	f.topics = append(f.topics, topic)
	return nil
}

type fakeOutboxRepo struct {
	saveAllFn func(context.Context, []*outbox.OutboxEvent) error
	saved     []*outbox.OutboxEvent
}

func (f *fakeOutboxRepo) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	if f.saveAllFn != nil {
		if err := f.saveAllFn(ctx, events); err != nil {
			return err
		}
	}
	f.saved = append(f.saved, events...)
	return nil
}

func (f *fakeOutboxRepo) FindUnpublished(context.Context, int) ([]*outbox.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) MarkPublished(context.Context, string) error { return nil }

func (f *fakeOutboxRepo) IncrementRetry(context.Context, string, string) error { return nil }

func (f *fakeOutboxRepo) FindByAggregateID(context.Context, string) ([]*outbox.OutboxEvent, error) {
	return nil, nil
}

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("invoice-service")
	cfg.Output = io.Discard
	return logging.New(cfg)
}

func sampleEvents() []domain.DomainEvent {
	at := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return []domain.DomainEvent{
		&application.InvoiceCreatedIntegrationEvent{
			InvoiceCreatedEvent: &domain.InvoiceCreatedEvent{
				InvoiceID:  "inv-1",
				ClientID:   "client-1",
				Amount:     decimal.RequireFromString("100.00"),
				Currency:   "USD",
				DueDate:    at.AddDate(0, 1, 0),
				ItemCount:  1,
				OccurredOn: at,
			},
			PaymentMethodID: "pm-1",
		},
		&domain.InvoiceFailedEvent{
			InvoiceID:  "inv-1",
			ClientID:   "client-1",
			Reason:     "declined",
			FailedAt:   at,
			OccurredOn: at,
		},
	}
}

func TestKafkaEventBusPublishesInOrder(t *testing.T) {
	producer := &fakePublisher{}
	bus := NewKafkaEventBus(producer, cloudevents.NewEventFactory(cloudevents.SourceInvoiceService), "invoices.events", testLogger())

	require.NoError(t, bus.Publish(context.Background(), sampleEvents()))

	require.Len(t, producer.sent, 2)
	assert.Equal(t, []string{"invoices.events", "invoices.events"}, producer.topics)
	assert.Equal(t, cloudevents.InvoiceCreated, producer.sent[0].Type)
	assert.Equal(t, cloudevents.InvoiceFailed, producer.sent[1].Type)
	assert.Equal(t, "invoice/inv-1", producer.sent[0].Subject)
	assert.Equal(t, cloudevents.SourceInvoiceService, producer.sent[0].Source)

	var data map[string]any
	require.NoError(t, json.Unmarshal(producer.sent[0].Data, &data))
	assert.Equal(t, "pm-1", data["paymentMethodId"])
	assert.Equal(t, "client-1", data["clientId"])
	assert.Equal(t, "100", data["amount"])
}

func TestKafkaEventBusStopsAtFirstFailure(t *testing.T) {
	producer := &fakePublisher{publishFn: func(_ context.Context, _ string, ce *cloudevents.CloudEvent) error {
		if ce.Type == cloudevents.InvoiceFailed {
			return errors.New("leader not available")
		}
		return nil
	}}
	bus := NewKafkaEventBus(producer, cloudevents.NewEventFactory(cloudevents.SourceInvoiceService), "invoices.events", testLogger())

	err := bus.Publish(context.Background(), sampleEvents())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Len(t, producer.sent, 1)
}

func TestOutboxEventBusStoresEnvelopes(t *testing.T) {
	repo := &fakeOutboxRepo{}
	bus := NewOutboxEventBus(repo, cloudevents.NewEventFactory(cloudevents.SourceInvoiceService), "invoices.events", testLogger())

	require.NoError(t, bus.Publish(context.Background(), sampleEvents()))

	require.Len(t, repo.saved, 2)
	for i, want := range []string{cloudevents.InvoiceCreated, cloudevents.InvoiceFailed} {
		row := repo.saved[i]
		assert.Equal(t, want, row.EventType)
		assert.Equal(t, "inv-1", row.AggregateID)
		assert.Equal(t, "Invoice", row.AggregateType)
		assert.Equal(t, "invoices.events", row.Topic)

		ce, err := row.ToCloudEvent()
		require.NoError(t, err)
		assert.Equal(t, row.ID, ce.ID)
	}
}

func TestOutboxEventBusEmptyAndFailure(t *testing.T) {
	repo := &fakeOutboxRepo{saveAllFn: func(context.Context, []*outbox.OutboxEvent) error {
		return errors.New("not primary")
	}}
	bus := NewOutboxEventBus(repo, cloudevents.NewEventFactory(cloudevents.SourceInvoiceService), "invoices.events", testLogger())

	require.NoError(t, bus.Publish(context.Background(), nil))
	assert.Error(t, bus.Publish(context.Background(), sampleEvents()))
	assert.Empty(t, repo.saved)
}
