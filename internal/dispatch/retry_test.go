package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pkumv1/matt-automated-testing-tool-sub003/internal/core"
)

func TestRetryPolicy_Execute_Success(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3))
	ctx := context.Background()

	callCount := 0
	err := policy.Execute(ctx, func(ctx context.Context) error {
		callCount++
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1", callCount)
	}
}

func TestRetryPolicy_Execute_SuccessAfterRetry(t *testing.T) {
	policy := NewRetryPolicy(
		WithMaxAttempts(3),
		WithBaseDelay(1*time.Millisecond),
	)
	ctx := context.Background()

	callCount := 0
	err := policy.Execute(ctx, func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return core.ErrTransient("NETWORK", "dial failed")
		}
		return nil
	})

	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
	if callCount != 3 {
		t.Errorf("callCount = %d, want 3", callCount)
	}
}

func TestRetryPolicy_Execute_NonRetryable(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(3))
	ctx := context.Background()

	callCount := 0
	err := policy.Execute(ctx, func(ctx context.Context) error {
		callCount++
		return core.ErrValidation("INVALID", "malformed payload")
	})

	if err == nil {
		t.Error("Execute() should return error")
	}
	if callCount != 1 {
		t.Errorf("callCount = %d, want 1 (validation failures are never retried)", callCount)
	}
}

func TestRetryPolicy_Execute_Exhausted(t *testing.T) {
	policy := NewRetryPolicy(
		WithMaxAttempts(3),
		WithBaseDelay(1*time.Millisecond),
	)
	ctx := context.Background()

	callCount := 0
	err := policy.Execute(ctx, func(ctx context.Context) error {
		callCount++
		return core.ErrTimeout("deadline exceeded")
	})

	if callCount != 3 {
		t.Errorf("callCount = %d, want 3", callCount)
	}
	var exhausted *RetryExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("error = %v, want RetryExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	// The terminal cause must stay reachable for classification.
	if !core.IsCategory(exhausted.LastErr, core.ErrCatTimeout) {
		t.Errorf("LastErr category = %s, want timeout", core.GetCategory(exhausted.LastErr))
	}
}

func TestRetryPolicy_Execute_ContextCancelled(t *testing.T) {
	policy := NewRetryPolicy(WithMaxAttempts(5), WithBaseDelay(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := policy.Execute(ctx, func(ctx context.Context) error {
		callCount++
		return core.ErrTransient("NETWORK", "flaky")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if callCount > 2 {
		t.Errorf("callCount = %d, cancellation should stop retries", callCount)
	}
}

func TestRetryPolicy_CalculateDelay(t *testing.T) {
	policy := NewRetryPolicy(
		WithBaseDelay(1*time.Second),
		WithMaxDelay(30*time.Second),
		WithJitter(0), // deterministic
	)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, 30 * time.Second}, // capped
	}
	for _, tt := range tests {
		if got := policy.CalculateDelay(tt.attempt); got != tt.want {
			t.Errorf("CalculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestUnavailableRetryPolicy_LongerBackoff(t *testing.T) {
	def := DefaultRetryPolicy()
	unavail := UnavailableRetryPolicy()
	if unavail.BaseDelay <= def.BaseDelay {
		t.Errorf("unavailable base delay %v should exceed default %v", unavail.BaseDelay, def.BaseDelay)
	}
}
