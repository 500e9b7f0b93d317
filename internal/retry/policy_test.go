package retry

import (
	"context"
	"errors"
	"testing"
)

var errTransient = errors.New("row still in write-visibility window")

var errPermanent = errors.New("table does not exist")

func TestPolicyDo_SucceedsFirstAttempt(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	calls := 0
	policy := Policy{MaxAttempts: 3}

	err := policy.Do(context.Background(), func(context.Context) error {
		calls++

		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}

	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestPolicyDo_RetriesUntilSuccess(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	calls := 0
	policy := Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}

	err := policy.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Do() = %v, want nil", err)
	}

	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestPolicyDo_BudgetExhausted(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	calls := 0
	policy := Policy{
		MaxAttempts: 4,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}

	err := policy.Do(context.Background(), func(context.Context) error {
		calls++

		return errTransient
	})

	if !errors.Is(err, ErrBudgetExhausted) {
		t.Errorf("Do() = %v, want ErrBudgetExhausted", err)
	}

	// The last attempt's error must remain reachable for callers.
	if !errors.Is(err, errTransient) {
		t.Errorf("Do() = %v, want wrapped transient error", err)
	}

	if calls != 4 {
		t.Errorf("op called %d times, want 4", calls)
	}
}

func TestPolicyDo_NonRetryableStopsImmediately(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	calls := 0
	policy := Policy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
	}

	err := policy.Do(context.Background(), func(context.Context) error {
		calls++

		return errPermanent
	})

	if !errors.Is(err, errPermanent) {
		t.Errorf("Do() = %v, want errPermanent", err)
	}

	if errors.Is(err, ErrBudgetExhausted) {
		t.Error("non-retryable failure must not be reported as budget exhaustion")
	}

	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestPolicyDo_ContextCancelled(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := Policy{MaxAttempts: 3}

	err := policy.Do(ctx, func(context.Context) error { return errTransient })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() = %v, want context.Canceled", err)
	}
}

func TestPolicyDo_ZeroAttemptsTreatedAsOne(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	calls := 0
	policy := Policy{}

	_ = policy.Do(context.Background(), func(context.Context) error {
		calls++

		return errTransient
	})

	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}
