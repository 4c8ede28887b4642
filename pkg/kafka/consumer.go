package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/resilience"
)

// EventHandler is a function that handles a CloudEvent
type EventHandler func(ctx context.Context, event *cloudevents.CloudEvent) error

// messageReader is the subset of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer handles consuming messages from Kafka topics
type Consumer struct {
	config    *Config
	mu        sync.Mutex
	readers   map[string]messageReader
	handlers  map[string]map[string]EventHandler // topic -> eventType -> handler
	logger    *slog.Logger
	newReader func(topic string) messageReader
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config *Config, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Consumer{
		config:   config,
		readers:  make(map[string]messageReader),
		handlers: make(map[string]map[string]EventHandler),
		logger:   logger,
	}
	c.newReader = c.kafkaReader
	return c
}

// Subscribe subscribes to a topic with a handler for a specific event type
func (c *Consumer) Subscribe(topic string, eventType string, handler EventHandler) {
	if _, exists := c.handlers[topic]; !exists {
		c.handlers[topic] = make(map[string]EventHandler)
	}
	c.handlers[topic][eventType] = handler
}

// SubscribeAll subscribes to all event types on a topic with a single handler
func (c *Consumer) SubscribeAll(topic string, handler EventHandler) {
	c.Subscribe(topic, "*", handler)
}

func (c *Consumer) kafkaReader(topic string) messageReader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.config.Brokers,
		GroupID:        c.config.ConsumerGroup,
		Topic:          topic,
		MinBytes:       c.config.MinBytes,
		MaxBytes:       c.config.MaxBytes,
		MaxWait:        c.config.MaxWait,
		CommitInterval: 0, // synchronous commits
	})
}

// getReader returns a reader for the specified topic, creating one if necessary
func (c *Consumer) getReader(topic string) messageReader {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reader, exists := c.readers[topic]; exists {
		return reader
	}

	reader := c.newReader(topic)
	c.readers[topic] = reader
	return reader
}

// Start consumes all subscribed topics until ctx is canceled
func (c *Consumer) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	for topic := range c.handlers {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			c.consumeTopic(ctx, topic)
		}(topic)
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// consumeTopic consumes messages from a single topic.
// A message is committed after its handler succeeds or when it cannot be parsed. A
// handler error retries the same message, so later offsets are never committed past it.
func (c *Consumer) consumeTopic(ctx context.Context, topic string) {
	reader := c.getReader(topic)

	c.logger.Info("Starting consumer for topic", "topic", topic, "group", c.config.ConsumerGroup)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping consumer for topic", "topic", topic)
				return
			}
			c.logger.Error("Error fetching message", "topic", topic, "error", err)
			continue
		}

		err = resilience.Retry(ctx, c.retryConfig(topic, msg), func(ctx context.Context) error {
			return c.processMessage(ctx, topic, msg)
		})
		if err != nil {
			c.logger.Info("Stopping consumer for topic with message uncommitted",
				"topic", topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			return
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Error committing message", "topic", topic, "error", err)
		}
	}
}

func (c *Consumer) retryConfig(topic string, msg kafka.Message) *resilience.RetryConfig {
	config := resilience.DefaultRetryConfig()
	if c.config.RetryInitialDelay > 0 {
		config.InitialDelay = c.config.RetryInitialDelay
	}
	if c.config.RetryMaxDelay > 0 {
		config.MaxDelay = c.config.RetryMaxDelay
	}
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("Retrying message",
			"topic", topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
	}
	return config
}

// processMessage returns nil when msg should be committed
func (c *Consumer) processMessage(ctx context.Context, topic string, msg kafka.Message) error {
	event, err := parseMessage(msg)
	if err != nil {
		c.logger.Warn("Dropping unparseable message",
			"topic", topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	if err := c.handleEvent(ctx, topic, event); err != nil {
		c.logger.Error("Error handling event",
			"topic", topic,
			"eventType", event.Type,
			"eventId", event.ID,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return err
	}

	return nil
}

// parseMessage parses a Kafka message into a CloudEvent
func parseMessage(msg kafka.Message) (*cloudevents.CloudEvent, error) {
	var event cloudevents.CloudEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	for _, header := range msg.Headers {
		switch header.Key {
		case "ce-correlationid":
			if event.CorrelationID == "" {
				event.CorrelationID = string(header.Value)
			}
		case "ce-traceparent":
			event.TraceParent = string(header.Value)
		case "ce-tracestate":
			event.TraceState = string(header.Value)
		}
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}

	return &event, nil
}

// handleEvent routes an event to the appropriate handler
func (c *Consumer) handleEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	handlers, exists := c.handlers[topic]
	if !exists {
		return fmt.Errorf("no handlers registered for topic %s", topic)
	}

	if event.CorrelationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, event.CorrelationID)
	}

	if handler, exists := handlers[event.Type]; exists {
		return handler(ctx, event)
	}

	if handler, exists := handlers["*"]; exists {
		return handler(ctx, event)
	}

	c.logger.Warn("No handler found for event type", "topic", topic, "eventType", event.Type)
	return nil
}

// Close closes all readers
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastErr error
	for topic, reader := range c.readers {
		if err := reader.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close reader for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
