package application

import (
	"context"

	"github.com/wms-platform/services/invoice-service/internal/domain"
)

// EventBus forwards drained events downstream. Implementations must deliver events in
// slice order, each tagged by its EventType.
type EventBus interface {
	Publish(ctx context.Context, events []domain.DomainEvent) error
}

// IdGenerator produces unique invoice identifiers
type IdGenerator interface {
	Generate() string
}
