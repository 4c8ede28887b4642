package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/event"

	"github.com/wms-platform/services/invoice-service/pkg/metrics"
)

// skippedCommands are driver housekeeping commands kept out of the operation metrics
var skippedCommands = map[string]bool{
	"hello":        true,
	"isMaster":     true,
	"ping":         true,
	"saslStart":    true,
	"saslContinue": true,
	"endSessions":  true,
}

// NewCommandMonitor records the outcome and duration of every MongoDB command
func NewCommandMonitor(m *metrics.Metrics) *event.CommandMonitor {
	return &event.CommandMonitor{
		Succeeded: func(_ context.Context, e *event.CommandSucceededEvent) {
			if skippedCommands[e.CommandName] {
				return
			}
			m.RecordMongoOperation(e.CommandName, true, e.Duration)
		},
		Failed: func(_ context.Context, e *event.CommandFailedEvent) {
			if skippedCommands[e.CommandName] {
				return
			}
			m.RecordMongoOperation(e.CommandName, false, e.Duration)
		},
	}
}
