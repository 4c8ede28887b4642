package idempotency

import (
	"time"
)

// ProcessedMessage records one CloudEvent handled by a consumer group
type ProcessedMessage struct {
	MessageID     string `bson:"messageId"`
	Topic         string `bson:"topic"`
	EventType     string `bson:"eventType"`
	ConsumerGroup string `bson:"consumerGroup"`
	ServiceID     string `bson:"serviceId"`

	ProcessedAt time.Time `bson:"processedAt"`
	ExpiresAt   time.Time `bson:"expiresAt"`

	CorrelationID string `bson:"correlationId,omitempty"`
}

// TTL returns the remaining lifetime of the record relative to ProcessedAt
func (m *ProcessedMessage) TTL() time.Duration {
	return m.ExpiresAt.Sub(m.ProcessedAt)
}
