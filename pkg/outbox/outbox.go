package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
)

// DefaultMaxRetries bounds relay attempts before an event is parked
const DefaultMaxRetries = 10

// OutboxEvent is a CloudEvent stored for later relay to Kafka
type OutboxEvent struct {
	ID            string          `bson:"_id" json:"id"`
	AggregateID   string          `bson:"aggregateId" json:"aggregateId"`
	AggregateType string          `bson:"aggregateType" json:"aggregateType"`
	EventType     string          `bson:"eventType" json:"eventType"`
	Topic         string          `bson:"topic" json:"topic"`
	Payload       json.RawMessage `bson:"payload" json:"payload"`
	CreatedAt     time.Time       `bson:"createdAt" json:"createdAt"`
	PublishedAt   *time.Time      `bson:"publishedAt,omitempty" json:"publishedAt,omitempty"`
	RetryCount    int             `bson:"retryCount" json:"retryCount"`
	LastError     string          `bson:"lastError,omitempty" json:"lastError,omitempty"`
	MaxRetries    int             `bson:"maxRetries" json:"maxRetries"`
}

// NewOutboxEvent stores a CloudEvent under its own id
func NewOutboxEvent(aggregateID, aggregateType, topic string, event *cloudevents.CloudEvent) (*OutboxEvent, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cloud event %s: %w", event.ID, err)
	}

	return &OutboxEvent{
		ID:            event.ID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     event.Type,
		Topic:         topic,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		MaxRetries:    DefaultMaxRetries,
	}, nil
}

// IsPublished checks if the event has been published
func (e *OutboxEvent) IsPublished() bool {
	return e.PublishedAt != nil
}

// ShouldRetry checks if the event should be retried
func (e *OutboxEvent) ShouldRetry() bool {
	return !e.IsPublished() && e.RetryCount < e.MaxRetries
}

// ToCloudEvent decodes the stored envelope
func (e *OutboxEvent) ToCloudEvent() (*cloudevents.CloudEvent, error) {
	var event cloudevents.CloudEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}
