package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all invoice-service metrics
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaEventsConsumed  *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// MongoDB metrics
	MongoOperationsTotal   *prometheus.CounterVec
	MongoOperationDuration *prometheus.HistogramVec

	// Outbox metrics
	OutboxPending         prometheus.Gauge
	OutboxPublished       *prometheus.CounterVec
	OutboxPublishDuration *prometheus.HistogramVec
	OutboxRetries         *prometheus.CounterVec

	// Deduplication metrics
	DeduplicationResults *prometheus.CounterVec

	// Business metrics
	InvoicesCreated     *prometheus.CounterVec
	InvoiceTransitions  *prometheus.CounterVec
	PaymentEventsRouted *prometheus.CounterVec
	LateFeesApplied     prometheus.Counter

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "invoicing",
	}
}

// New creates a new Metrics instance backed by its own registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	serviceLabel := prometheus.Labels{"service": config.ServiceName}

	m := &Metrics{
		serviceName: config.ServiceName,
		registry:    registry,
	}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests"},
		[]string{"service", "method", "path", "status"},
	)
	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"service", "method", "path"},
	)
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "http_requests_in_flight",
		Help:        "Number of HTTP requests currently being processed",
		ConstLabels: serviceLabel,
	})

	m.KafkaEventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.KafkaEventsConsumed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "kafka_events_consumed_total", Help: "Total number of Kafka events consumed"},
		[]string{"service", "topic", "event_type", "status"},
	)
	m.KafkaPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "kafka_publish_duration_seconds",
			Help:      "Kafka publish duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "topic"},
	)

	m.MongoOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "mongodb_operations_total", Help: "Total number of MongoDB commands"},
		[]string{"service", "command", "status"},
	)
	m.MongoOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "mongodb_operation_duration_seconds",
			Help:      "MongoDB command duration in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "command"},
	)

	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   ns,
		Name:        "outbox_pending_events",
		Help:        "Unpublished events found in the last outbox poll",
		ConstLabels: serviceLabel,
	})
	m.OutboxPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "outbox_published_total", Help: "Outbox relay attempts by outcome"},
		[]string{"service", "event_type", "status"},
	)
	m.OutboxPublishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "outbox_publish_duration_seconds",
			Help:      "Outbox relay duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"service", "event_type"},
	)
	m.OutboxRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "outbox_retries_total", Help: "Outbox events scheduled for retry"},
		[]string{"service", "event_type"},
	)

	m.DeduplicationResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "message_deduplication_total", Help: "Consumer deduplication lookups by result"},
		[]string{"service", "topic", "result"},
	)

	m.InvoicesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "invoices_created_total", Help: "Invoices created"},
		[]string{"service", "currency"},
	)
	m.InvoiceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "invoice_transitions_total", Help: "Invoice status transitions"},
		[]string{"service", "status"},
	)
	m.PaymentEventsRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "payment_events_routed_total", Help: "Inbound payment events by routing key and outcome"},
		[]string{"service", "routing_key", "outcome"},
	)
	m.LateFeesApplied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace:   ns,
		Name:        "late_fees_applied_total",
		Help:        "Late fees applied by the overdue sweep",
		ConstLabels: serviceLabel,
	})

	m.CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)"},
		[]string{"service", "name"},
	)
	m.CircuitBreakerTrips = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: ns, Name: "circuit_breaker_trips_total", Help: "Total number of circuit breaker trips"},
		[]string{"service", "name"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaEventsConsumed,
		m.KafkaPublishDuration,
		m.MongoOperationsTotal,
		m.MongoOperationDuration,
		m.OutboxPending,
		m.OutboxPublished,
		m.OutboxPublishDuration,
		m.OutboxRetries,
		m.DeduplicationResults,
		m.InvoicesCreated,
		m.InvoiceTransitions,
		m.PaymentEventsRouted,
		m.LateFeesApplied,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordKafkaPublish records a Kafka publish
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordKafkaConsume records a consumed Kafka event
func (m *Metrics) RecordKafkaConsume(topic, eventType string, success bool) {
	m.KafkaEventsConsumed.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
}

// RecordMongoOperation records one MongoDB command
func (m *Metrics) RecordMongoOperation(command string, success bool, duration time.Duration) {
	m.MongoOperationsTotal.WithLabelValues(m.serviceName, command, statusLabel(success)).Inc()
	m.MongoOperationDuration.WithLabelValues(m.serviceName, command).Observe(duration.Seconds())
}

// SetOutboxPending records how many unpublished events the last poll saw
func (m *Metrics) SetOutboxPending(count int) {
	m.OutboxPending.Set(float64(count))
}

// RecordOutboxPublish records one outbox relay attempt
func (m *Metrics) RecordOutboxPublish(eventType string, success bool, duration time.Duration) {
	m.OutboxPublished.WithLabelValues(m.serviceName, eventType, statusLabel(success)).Inc()
	m.OutboxPublishDuration.WithLabelValues(m.serviceName, eventType).Observe(duration.Seconds())
}

// RecordOutboxRetry records an outbox event scheduled for retry
func (m *Metrics) RecordOutboxRetry(eventType string) {
	m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
}

// RecordDeduplication records a dedup lookup; result is hit, miss or error
func (m *Metrics) RecordDeduplication(topic, result string) {
	m.DeduplicationResults.WithLabelValues(m.serviceName, topic, result).Inc()
}

// RecordInvoiceCreated records a newly created invoice
func (m *Metrics) RecordInvoiceCreated(currency string) {
	m.InvoicesCreated.WithLabelValues(m.serviceName, currency).Inc()
}

// RecordInvoiceTransition records an invoice entering status
func (m *Metrics) RecordInvoiceTransition(status string) {
	m.InvoiceTransitions.WithLabelValues(m.serviceName, status).Inc()
}

// RecordPaymentEvent records the outcome of routing one inbound payment event
func (m *Metrics) RecordPaymentEvent(routingKey, outcome string) {
	m.PaymentEventsRouted.WithLabelValues(m.serviceName, routingKey, outcome).Inc()
}

// RecordLateFeeApplied records one late fee applied by the sweep
func (m *Metrics) RecordLateFeeApplied() {
	m.LateFeesApplied.Inc()
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
}
