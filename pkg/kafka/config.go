package kafka

import (
	"time"
)

// Config holds Kafka configuration
type Config struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string

	// Producer settings
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack

	// Consumer settings
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration

	// A failed message is retried in place with this backoff until it is handled
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:       []string{"localhost:9092"},
		ConsumerGroup: "invoice-service",
		ClientID:      "invoice-service",

		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,

		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  500 * time.Millisecond,

		RetryInitialDelay: 200 * time.Millisecond,
		RetryMaxDelay:     30 * time.Second,
	}
}

// Topics contains the default topic names
var Topics = struct {
	InvoiceEvents string
	PaymentEvents string
}{
	InvoiceEvents: "invoices.events",
	PaymentEvents: "payments.events",
}
