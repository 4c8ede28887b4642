package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
	"github.com/wms-platform/services/invoice-service/pkg/kafka"
)

// DeduplicatingHandler wraps an event handler so each CloudEvent id is handled once per
// topic and consumer group. Handler errors leave the message unrecorded so it is redelivered.
func DeduplicatingHandler(config *ConsumerConfig, handler kafka.EventHandler) kafka.EventHandler {
	logger := config.Logger.WithComponent("deduplication").WithFields(map[string]any{
		"topic":         config.Topic,
		"consumerGroup": config.ConsumerGroup,
	})

	record := func(result string) {
		if config.Metrics != nil {
			config.Metrics.RecordDeduplication(config.Topic, result)
		}
	}

	return func(ctx context.Context, event *cloudevents.CloudEvent) error {
		log := logger.WithContext(ctx).WithFields(map[string]any{
			"messageId": event.ID,
			"eventType": event.Type,
		})

		processed, err := config.Repository.IsProcessed(ctx, event.ID, config.Topic, config.ConsumerGroup)
		if err != nil {
			log.WithError(err).Error("Failed to check if message is processed")
			record("error")
			return err
		}

		if processed {
			log.Info("Duplicate message skipped")
			record("hit")
			return nil
		}
		record("miss")

		if err := handler(ctx, event); err != nil {
			return err
		}

		now := time.Now().UTC()
		msg := &ProcessedMessage{
			MessageID:     event.ID,
			Topic:         config.Topic,
			EventType:     event.Type,
			ConsumerGroup: config.ConsumerGroup,
			ServiceID:     config.ServiceName,
			ProcessedAt:   now,
			ExpiresAt:     now.Add(config.RetentionPeriod),
			CorrelationID: event.CorrelationID,
		}

		if err := config.Repository.MarkProcessed(ctx, msg); err != nil {
			if errors.Is(err, ErrMessageAlreadyProcessed) {
				log.Warn("Message was processed concurrently")
				return nil
			}

			// the handler already ran; a redelivery will run it again
			log.WithError(err).Error("Failed to mark message as processed")
			record("error")
			return err
		}

		return nil
	}
}
