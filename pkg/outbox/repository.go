package outbox

import "context"

// Repository defines the interface for outbox event persistence
type Repository interface {
	// SaveAll saves multiple outbox events in a single operation
	SaveAll(ctx context.Context, events []*OutboxEvent) error

	// FindUnpublished returns the oldest unpublished events that still have retries left
	FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error)

	// MarkPublished marks an event as published
	MarkPublished(ctx context.Context, eventID string) error

	// IncrementRetry increments the retry count and records the last error
	IncrementRetry(ctx context.Context, eventID string, errorMsg string) error

	// FindByAggregateID retrieves all events for one aggregate in creation order
	FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error)
}
