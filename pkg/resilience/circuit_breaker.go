package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/wms-platform/services/invoice-service/pkg/metrics"
)

// ErrCircuitOpen is returned when the breaker rejects a call
var ErrCircuitOpen = errors.New("circuit breaker is open")

const (
	defaultMaxRequests           uint32 = 5
	defaultInterval                     = time.Minute
	defaultTimeout                      = 30 * time.Second
	defaultFailureThreshold      uint32 = 5
	defaultFailureRatioThreshold        = 0.5
	defaultMinRequestsToTrip     uint32 = 10
)

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name                  string
	MaxRequests           uint32        // requests allowed while half-open
	Interval              time.Duration // closed-state count reset period, 0 never resets
	Timeout               time.Duration // open to half-open delay
	FailureThreshold      uint32        // consecutive failures that trip the breaker
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32 // requests needed before the ratio is evaluated
}

// DefaultCircuitBreakerConfig returns the defaults used for outbound Kafka publishing
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                  name,
		MaxRequests:           defaultMaxRequests,
		Interval:              defaultInterval,
		Timeout:               defaultTimeout,
		FailureThreshold:      defaultFailureThreshold,
		FailureRatioThreshold: defaultFailureRatioThreshold,
		MinRequestsToTrip:     defaultMinRequestsToTrip,
	}
}

// CircuitBreaker wraps gobreaker with logging and metrics
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	logger *slog.Logger
}

// NewCircuitBreaker creates a new circuit breaker. m may be nil.
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *slog.Logger, m *metrics.Metrics) *CircuitBreaker {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return shouldTrip(config, counts)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			if m != nil {
				m.SetCircuitBreakerState(name, int(to))
				if to == gobreaker.StateOpen {
					m.RecordCircuitBreakerTrip(name)
				}
			}
		},
	}

	return &CircuitBreaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		name:   config.Name,
		logger: logger,
	}
}

func shouldTrip(config *CircuitBreakerConfig, counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= config.FailureThreshold {
		return true
	}
	if config.MinRequestsToTrip > 0 && counts.Requests >= config.MinRequestsToTrip {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return failureRatio >= config.FailureRatioThreshold
	}
	return false
}

// Execute runs fn through the circuit breaker. Rejections wrap ErrCircuitOpen.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("Circuit breaker rejected call", "name", c.name, "reason", err.Error())
		return fmt.Errorf("%w: %s", ErrCircuitOpen, c.name)
	}

	return err
}

// State returns the current state of the circuit breaker
func (c *CircuitBreaker) State() gobreaker.State {
	return c.cb.State()
}

// Name returns the circuit breaker name
func (c *CircuitBreaker) Name() string {
	return c.name
}

// Counts returns the current counts
func (c *CircuitBreaker) Counts() gobreaker.Counts {
	return c.cb.Counts()
}
