package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/services/invoice-service/pkg/metrics"
)

func TestCircuitBreakerTripsOnConsecutiveFailures(t *testing.T) {
	config := DefaultCircuitBreakerConfig("kafka-producer")
	config.FailureThreshold = 3
	config.MinRequestsToTrip = 0
	cb := NewCircuitBreaker(config, nil, metrics.New(metrics.DefaultConfig("invoice-service")))

	boom := errors.New("broker down")
	for i := 0; i < 3; i++ {
		err := cb.Execute(context.Background(), func(context.Context) error { return boom })
		require.ErrorIs(t, err, boom)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreakerPassesThroughSuccess(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig("mongo"), nil, nil)

	err := cb.Execute(context.Background(), func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
	assert.Equal(t, uint32(1), cb.Counts().TotalSuccesses)
	assert.Equal(t, "mongo", cb.Name())
}

func TestShouldTripOnRatio(t *testing.T) {
	config := DefaultCircuitBreakerConfig("ratio")

	tests := []struct {
		name   string
		counts gobreaker.Counts
		want   bool
	}{
		{"below minimum requests", gobreaker.Counts{Requests: 4, TotalFailures: 4, ConsecutiveFailures: 1}, false},
		{"ratio reached", gobreaker.Counts{Requests: 10, TotalFailures: 5, ConsecutiveFailures: 1}, true},
		{"ratio below threshold", gobreaker.Counts{Requests: 10, TotalFailures: 2, ConsecutiveFailures: 1}, false},
		{"consecutive failures", gobreaker.Counts{Requests: 5, TotalFailures: 5, ConsecutiveFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldTrip(config, tt.counts))
		})
	}
}
