package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout", err: errors.New("request timeout"), want: true},
		{name: "deadline", err: errors.New("context deadline exceeded"), want: true},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "service unavailable", err: errors.New("relayer returned status 503"), want: true},
		{name: "rate limited", err: errors.New("too many requests"), want: true},
		{name: "unauthorized", err: errors.New("request unauthorized"), want: false},
		{name: "invalid input", err: errors.New("invalid handle"), want: false},
		{name: "unknown defaults to permanent", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetry_SucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), "test_op", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset by peer")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("WithRetry() error = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("WithRetry() made %d calls, want 3", calls)
	}
}

func TestWithRetry_PermanentFailureNoRetry(t *testing.T) {
	calls := 0
	permanent := errors.New("invalid request")
	err := WithRetry(context.Background(), fastConfig(), "test_op", func() error {
		calls++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Fatalf("WithRetry() error = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("WithRetry() made %d calls, want 1", calls)
	}
}

func TestWithRetry_ExhaustsBudget(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), "test_op", func() error {
		calls++
		return errors.New("timeout")
	})

	if err == nil {
		t.Fatal("WithRetry() error = nil, want last error")
	}
	if calls != 4 { // first try + 3 retries
		t.Errorf("WithRetry() made %d calls, want 4", calls)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := WithRetry(ctx, fastConfig(), "test_op", func() error {
		calls++
		cancel()
		return errors.New("timeout")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("WithRetry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("WithRetry() made %d calls, want 1", calls)
	}
}
