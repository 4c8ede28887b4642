package idempotency

import (
	"context"
)

// MessageRepository manages processed messages for Kafka consumers
type MessageRepository interface {
	// MarkProcessed records msg atomically.
	// It returns ErrMessageAlreadyProcessed when the record already exists.
	MarkProcessed(ctx context.Context, msg *ProcessedMessage) error

	// IsProcessed checks if a message has been processed
	IsProcessed(ctx context.Context, messageID, topic, consumerGroup string) (bool, error)

	// EnsureIndexes prepares the backing store; called on service startup
	EnsureIndexes(ctx context.Context) error
}
