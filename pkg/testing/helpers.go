package testing

import (
	"context"
	"testing"
	"time"
)

// AssertEventually fails the test unless condition becomes true within timeout
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := WaitForCondition(ctx, condition, 10*time.Millisecond); err != nil {
		t.Fatalf("Condition not met within %s: %s", timeout, message)
	}
}

// WaitForCondition polls condition every interval until it holds or ctx is done
func WaitForCondition(ctx context.Context, condition func() bool, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if condition() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
