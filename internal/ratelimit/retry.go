package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/mfathy/safaribooks/internal/safarierr"
)

// MaxAttempts and BaseDelay implement the retry policy: transport errors
// and 5xx responses retry up to 3 times with base delay 5s × attempt.
const MaxAttempts = 3

// BaseDelay is a var, not a const, so tests can shrink it; production
// code never changes it from the 5s default.
var BaseDelay = 5 * time.Second

// Retryable reports whether err is worth retrying under the policy:
// transport errors and 5xx-flagged errors, but never AuthFailed or parse
// failures.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, safarierr.ErrAuthFailed) {
		return false
	}
	if errors.Is(err, safarierr.ErrTransport) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return false
}

// HTTPStatusError wraps a non-2xx HTTP status so Retryable can inspect it
// without the caller needing to know the policy's 5xx threshold.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return http.StatusText(e.StatusCode)
}

// Do runs fn under the retry policy: up to MaxAttempts total attempts,
// delay BaseDelay × attempt number, stopping early on a non-retryable
// error (in particular AuthFailed, which must abort the job immediately).
func Do(ctx context.Context, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(MaxAttempts),
		retry.DelayType(func(n uint, err error, cfg *retry.Config) time.Duration {
			return BaseDelay * time.Duration(n+1)
		}),
		retry.RetryIf(Retryable),
		retry.LastErrorOnly(true),
	)
}

// DoIndependent runs fn with the same backoff as Do but is meant for
// per-image asset retries: its failure must never propagate as a book
// failure, only be reported to the caller to log-and-skip.
func DoIndependent(ctx context.Context, fn func() error) error {
	return Do(ctx, fn)
}
