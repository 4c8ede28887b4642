package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
)

// EventPublisher publishes CloudEvents to a topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error
}

// messageWriter is the subset of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing messages to Kafka topics
type Producer struct {
	mu        sync.Mutex
	writers   map[string]messageWriter
	config    *Config
	newWriter func(topic string) messageWriter
}

// NewProducer creates a new Kafka producer
func NewProducer(config *Config) *Producer {
	p := &Producer{
		writers: make(map[string]messageWriter),
		config:  config,
	}
	p.newWriter = p.kafkaWriter
	return p
}

func (p *Producer) kafkaWriter(topic string) messageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    p.config.BatchSize,
		BatchTimeout: p.config.BatchTimeout,
		RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
		Async:        false,
	}
}

// getWriter returns a writer for the specified topic, creating one if necessary
func (p *Producer) getWriter(topic string) messageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, exists := p.writers[topic]; exists {
		return writer
	}

	writer := p.newWriter(topic)
	p.writers[topic] = writer
	return writer
}

// PublishEvent publishes a CloudEvent to the specified topic.
// The subject is the message key so events for one invoice stay ordered.
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	msg, err := toMessage(event)
	if err != nil {
		return err
	}

	if err := p.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event to topic %s: %w", topic, err)
	}

	return nil
}

func toMessage(event *cloudevents.CloudEvent) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Subject),
		Value: data,
		Headers: []kafka.Header{
			{Key: "ce-specversion", Value: []byte(event.SpecVersion)},
			{Key: "ce-type", Value: []byte(event.Type)},
			{Key: "ce-source", Value: []byte(event.Source)},
			{Key: "ce-id", Value: []byte(event.ID)},
			{Key: "ce-time", Value: []byte(event.Time.Format(time.RFC3339Nano))},
			{Key: "content-type", Value: []byte(event.DataContentType)},
		},
		Time: event.Time,
	}

	optional := []struct{ key, value string }{
		{"ce-correlationid", event.CorrelationID},
		{"ce-traceparent", event.TraceParent},
		{"ce-tracestate", event.TraceState},
	}
	for _, h := range optional {
		if h.value != "" {
			msg.Headers = append(msg.Headers, kafka.Header{Key: h.key, Value: []byte(h.value)})
		}
	}

	return msg, nil
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close writer for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
