package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wms-platform/services/invoice-service/pkg/kafka"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/metrics"
)

// Publisher relays events from the outbox to Kafka
type Publisher struct {
	repo         Repository
	producer     kafka.EventPublisher
	logger       *logging.Logger
	metrics      *metrics.Metrics
	interval     time.Duration
	batchSize    int
	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	stoppedCh    chan struct{}
	publishedCnt int
	failedCnt    int
}

// PublisherConfig holds configuration for the outbox publisher
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultPublisherConfig returns default configuration
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		PollInterval: 1 * time.Second,
		BatchSize:    100,
	}
}

// NewPublisher creates a new outbox publisher
func NewPublisher(
	repo Repository,
	producer kafka.EventPublisher,
	logger *logging.Logger,
	m *metrics.Metrics,
	config *PublisherConfig,
) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}

	return &Publisher{
		repo:      repo,
		producer:  producer,
		logger:    logger.WithComponent("outbox-publisher"),
		metrics:   m,
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start starts the relay loop in the background
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("publisher already running")
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info("Starting outbox publisher", "interval", p.interval, "batchSize", p.batchSize)

	go p.run(ctx)
	return nil
}

// Stop stops the relay loop and waits for the current batch to finish
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("publisher not running")
	}
	p.mu.Unlock()

	close(p.stopCh)
	<-p.stoppedCh

	p.mu.Lock()
	p.running = false
	published, failed := p.publishedCnt, p.failedCnt
	p.mu.Unlock()

	p.logger.Info("Outbox publisher stopped", "published", published, "failed", failed)
	return nil
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.PublishPending(ctx)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// PublishPending relays one batch and returns how many events were published
func (p *Publisher) PublishPending(ctx context.Context) int {
	events, err := p.repo.FindUnpublished(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("Failed to find unpublished events")
		return 0
	}

	if p.metrics != nil {
		p.metrics.SetOutboxPending(len(events))
	}

	published := 0
	for _, event := range events {
		duration, err := p.publishEvent(ctx, event)
		if p.metrics != nil {
			p.metrics.RecordOutboxPublish(event.EventType, err == nil, duration)
		}

		if err != nil {
			p.logger.WithError(err).Error("Failed to publish event",
				"eventId", event.ID,
				"eventType", event.EventType,
				"aggregateId", event.AggregateID,
				"retryCount", event.RetryCount,
			)
			p.recordResult(false)

			if err := p.repo.IncrementRetry(ctx, event.ID, err.Error()); err != nil {
				p.logger.WithError(err).Error("Failed to increment retry count", "eventId", event.ID)
			}
			if p.metrics != nil {
				p.metrics.RecordOutboxRetry(event.EventType)
			}
			continue
		}

		p.recordResult(true)
		published++

		if err := p.repo.MarkPublished(ctx, event.ID); err != nil {
			p.logger.WithError(err).Error("Failed to mark event as published", "eventId", event.ID)
		}
	}

	return published
}

func (p *Publisher) recordResult(success bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if success {
		p.publishedCnt++
	} else {
		p.failedCnt++
	}
}

func (p *Publisher) publishEvent(ctx context.Context, event *OutboxEvent) (time.Duration, error) {
	start := time.Now()

	cloudEvent, err := event.ToCloudEvent()
	if err != nil {
		return time.Since(start), fmt.Errorf("failed to decode stored cloud event: %w", err)
	}

	if err := p.producer.PublishEvent(ctx, event.Topic, cloudEvent); err != nil {
		return time.Since(start), fmt.Errorf("failed to publish to Kafka: %w", err)
	}

	duration := time.Since(start)
	p.logger.Debug("Published event from outbox",
		"eventId", event.ID,
		"eventType", event.EventType,
		"topic", event.Topic,
		"aggregateId", event.AggregateID,
		"durationMs", duration.Milliseconds(),
	)

	return duration, nil
}

// IsRunning returns whether the publisher is running
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns publisher statistics
func (p *Publisher) Stats() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]int{
		"published": p.publishedCnt,
		"failed":    p.failedCnt,
	}
}
