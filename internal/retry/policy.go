// Package retry provides a bounded retry policy for operations against
// eventually-consistent backends.
//
// The staging store uses it to ride out the write-visibility window of freshly
// inserted rows (mutations on such rows fail with a conflict until the window
// closes); the CRM client uses a single-attempt policy for token refresh.
// The policy is deliberately small: max attempts, fixed delay, and a
// retryable-predicate. Cancellation is honoured between attempts via the
// supplied context.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for retry execution.
var (
	// ErrBudgetExhausted is returned (wrapping the last attempt's error) when
	// every attempt failed with a retryable error.
	ErrBudgetExhausted = errors.New("retry budget exhausted")
)

type (
	// Policy describes a bounded retry discipline: up to MaxAttempts calls,
	// sleeping Delay between attempts, retrying only while Retryable returns
	// true for the attempt's error.
	Policy struct {
		// MaxAttempts is the total number of calls, including the first.
		// Values below 1 are treated as 1 (no retry).
		MaxAttempts int

		// Delay is the fixed sleep between attempts.
		Delay time.Duration

		// Retryable classifies an error as transient. A nil predicate retries
		// every error.
		Retryable func(error) bool
	}
)

// Do runs op until it succeeds, returns a non-retryable error, the attempt
// budget is exhausted, or ctx is cancelled.
//
// On budget exhaustion the returned error wraps both ErrBudgetExhausted and
// the last attempt's error, so callers can branch with errors.Is on either.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		if err := sleep(ctx, p.Delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrBudgetExhausted, attempts, lastErr)
}

// sleep waits for d or until ctx is cancelled, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
