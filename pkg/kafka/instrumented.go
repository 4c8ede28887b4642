package kafka

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wms-platform/services/invoice-service/pkg/cloudevents"
	"github.com/wms-platform/services/invoice-service/pkg/logging"
	"github.com/wms-platform/services/invoice-service/pkg/metrics"
	"github.com/wms-platform/services/invoice-service/pkg/tracing"
)

func eventSpanAttributes(topic, operation string, event *cloudevents.CloudEvent) []attribute.KeyValue {
	attrs := tracing.MessagingSpanAttributes("kafka", topic, operation)
	attrs = append(attrs,
		attribute.String("messaging.kafka.event_type", event.Type),
		attribute.String("messaging.message_id", event.ID),
	)
	if event.Subject != "" {
		attrs = append(attrs, attribute.String("cloudevents.subject", event.Subject))
	}
	if event.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", event.CorrelationID))
	}
	return attrs
}

func endSpan(span trace.Span, err error, duration time.Duration) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.Int64("messaging.duration_ms", duration.Milliseconds()))
}

// InstrumentedProducer wraps an EventPublisher with metrics and tracing
type InstrumentedProducer struct {
	producer EventPublisher
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewInstrumentedProducer creates a new instrumented producer
func NewInstrumentedProducer(producer EventPublisher, m *metrics.Metrics, logger *logging.Logger) *InstrumentedProducer {
	return &InstrumentedProducer{
		producer: producer,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("kafka-producer"),
	}
}

// PublishEvent publishes a CloudEvent with metrics and tracing.
// The active trace context is written into the envelope before sending.
func (p *InstrumentedProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	start := time.Now()

	ctx, span := p.tracer.Start(ctx, "kafka.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(eventSpanAttributes(topic, "publish", event)...),
	)
	defer span.End()

	carrier := tracing.MapCarrier{}
	tracing.InjectTraceContext(ctx, carrier)
	if tp := carrier.Get("traceparent"); tp != "" {
		event.TraceParent = tp
		event.TraceState = carrier.Get("tracestate")
	}

	err := p.producer.PublishEvent(ctx, topic, event)
	duration := time.Since(start)

	success := err == nil
	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, event.Type, success, duration)
	}
	if p.logger != nil {
		p.logger.KafkaPublish(ctx, topic, event.Type, success, duration)
	}

	endSpan(span, err, duration)
	return err
}

// Close closes the underlying producer when it supports closing
func (p *InstrumentedProducer) Close() error {
	if closer, ok := p.producer.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// InstrumentedConsumer wraps a Consumer with metrics and tracing
type InstrumentedConsumer struct {
	consumer *Consumer
	metrics  *metrics.Metrics
	logger   *logging.Logger
	tracer   trace.Tracer
}

// NewInstrumentedConsumer creates a new instrumented consumer
func NewInstrumentedConsumer(consumer *Consumer, m *metrics.Metrics, logger *logging.Logger) *InstrumentedConsumer {
	return &InstrumentedConsumer{
		consumer: consumer,
		metrics:  m,
		logger:   logger,
		tracer:   otel.Tracer("kafka-consumer"),
	}
}

// Subscribe subscribes to a topic with instrumented handler
func (c *InstrumentedConsumer) Subscribe(topic string, eventType string, handler EventHandler) {
	c.consumer.Subscribe(topic, eventType, c.instrumentHandler(topic, handler))
}

// SubscribeAll subscribes to all event types with instrumented handler
func (c *InstrumentedConsumer) SubscribeAll(topic string, handler EventHandler) {
	c.consumer.SubscribeAll(topic, c.instrumentHandler(topic, handler))
}

// instrumentHandler continues the producer's trace when the envelope carries one
func (c *InstrumentedConsumer) instrumentHandler(topic string, handler EventHandler) EventHandler {
	return func(ctx context.Context, event *cloudevents.CloudEvent) error {
		start := time.Now()

		if event.TraceParent != "" {
			ctx = tracing.ExtractTraceContext(ctx, tracing.MapCarrier{
				"traceparent": event.TraceParent,
				"tracestate":  event.TraceState,
			})
		}

		attrs := eventSpanAttributes(topic, "receive", event)
		attrs = append(attrs, attribute.String("messaging.kafka.consumer_group", c.consumer.config.ConsumerGroup))
		ctx, span := c.tracer.Start(ctx, "kafka.consume",
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		if c.logger != nil {
			c.logger.KafkaConsume(ctx, topic, event.Type, 0, 0)
		}

		err := handler(ctx, event)

		if c.metrics != nil {
			c.metrics.RecordKafkaConsume(topic, event.Type, err == nil)
		}

		endSpan(span, err, time.Since(start))
		return err
	}
}

// Start starts the instrumented consumer
func (c *InstrumentedConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// Close closes the underlying consumer
func (c *InstrumentedConsumer) Close() error {
	return c.consumer.Close()
}
