package resilience

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2.0,
		BreakerEnabled:      false,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func retryableClassifier(error) ErrorClassification {
	return ErrorClassification{Retryable: true, RecordFailure: true}
}

func TestExecuteRetriesRetryableErrors(t *testing.T) {
	ex := NewExecutor(testConfig(), testLogger())

	calls := 0
	err := ex.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, retryableClassifier)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestExecuteDoesNotRetryNonRetryable(t *testing.T) {
	ex := NewExecutor(testConfig(), testLogger())

	calls := 0
	wantErr := errors.New("bad request")
	err := ex.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return wantErr
	}, func(error) ErrorClassification {
		return ErrorClassification{Retryable: false, RecordFailure: false}
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestExecuteStopsAtMaxAttempts(t *testing.T) {
	ex := NewExecutor(testConfig(), testLogger())

	calls := 0
	err := ex.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return errors.New("still failing")
	}, retryableClassifier)
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestExecuteHonorsContextCancellation(t *testing.T) {
	ex := NewExecutor(testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := ex.Execute(ctx, "op", func(context.Context) error {
		calls++
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("cancelled context must not run the operation, got %d calls", calls)
	}
}

func TestBreakerOpensAfterFailureRatio(t *testing.T) {
	cfg := testConfig()
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.RetryMaxAttempts = 1
	ex := NewExecutor(cfg, testLogger())

	fail := func(context.Context) error { return errors.New("down") }
	for i := 0; i < 2; i++ {
		if err := ex.Execute(context.Background(), "op", fail, retryableClassifier); err == nil {
			t.Fatalf("expected failure on attempt %d", i)
		}
	}

	err := ex.Execute(context.Background(), "op", func(context.Context) error { return nil }, retryableClassifier)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}
