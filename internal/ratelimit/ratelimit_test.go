package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/mfathy/safaribooks/internal/safarierr"
)

func TestPolicy_ForcesConcurrencyToOne(t *testing.T) {
	p := New(0, 0, 0, 8, slog.Default())
	if p.Concurrency() != 1 {
		t.Errorf("expected concurrency forced to 1, got %d", p.Concurrency())
	}
}

func TestPolicy_WaitEnforcesClassDelay(t *testing.T) {
	p := New(30*time.Millisecond, 0, 0, 1, slog.Default())
	ctx := context.Background()

	if err := p.Wait(ctx, ClassDiscovery); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := p.Wait(ctx, ClassDiscovery); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("expected wait to enforce the class delay, elapsed %v", elapsed)
	}
}

func TestPolicy_WaitRespectsContextCancellation(t *testing.T) {
	p := New(time.Hour, 0, 0, 1, slog.Default())
	ctx := context.Background()
	if err := p.Wait(ctx, ClassDiscovery); err != nil {
		t.Fatal(err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(cancelCtx, ClassDiscovery); err == nil {
		t.Error("expected cancelled context to abort the wait")
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(nil) {
		t.Error("nil should not be retryable")
	}
	if Retryable(safarierr.New(safarierr.AuthFailed, "nope", nil)) {
		t.Error("AuthFailed should never be retryable")
	}
	if !Retryable(safarierr.New(safarierr.TransportError, "timeout", nil)) {
		t.Error("TransportError should be retryable")
	}
	if !Retryable(&HTTPStatusError{StatusCode: 503}) {
		t.Error("5xx should be retryable")
	}
	if Retryable(&HTTPStatusError{StatusCode: 404}) {
		t.Error("4xx should not be retryable")
	}
}

func TestDo_StopsOnAuthFailed(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		return safarierr.New(safarierr.AuthFailed, "nope", nil)
	})
	if !errors.Is(err, safarierr.ErrAuthFailed) {
		t.Fatalf("expected AuthFailed, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected exactly one attempt for a non-retryable error, got %d", attempts)
	}
}

func TestDo_RetriesTransportErrors(t *testing.T) {
	old := BaseDelay
	BaseDelay = time.Millisecond
	defer func() { BaseDelay = old }()

	attempts := 0
	err := Do(context.Background(), func() error {
		attempts++
		if attempts < MaxAttempts {
			return safarierr.New(safarierr.TransportError, "flaky", nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != MaxAttempts {
		t.Errorf("expected %d attempts, got %d", MaxAttempts, attempts)
	}
}
