package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	policy := Policy{Attempts: 3, BaseDelay: time.Millisecond}

	var waits []time.Duration
	attempts, err := Do(context.Background(), policy, func(attempt int) error {
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		waits = append(waits, wait)
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	want := []time.Duration{time.Millisecond, 2 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait[%d] = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestDoExhausted(t *testing.T) {
	policy := Policy{Attempts: 3, BaseDelay: time.Millisecond}
	failure := errors.New("still failing")

	calls := 0
	attempts, err := Do(context.Background(), policy, func(int) error {
		calls++
		return failure
	}, nil)

	if !errors.Is(err, failure) {
		t.Errorf("Do() error = %v, want %v", err, failure)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3", attempts, calls)
	}
}

func TestDoPermanent(t *testing.T) {
	failure := errors.New("bad input")

	attempts, err := Do(context.Background(), DefaultPolicy(), func(int) error {
		return Permanent(failure)
	}, nil)

	if !errors.Is(err, failure) {
		t.Errorf("Do() error = %v, want %v", err, failure)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDoCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, DefaultPolicy(), func(int) error {
		calls++
		return nil
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("op called %d times on a cancelled context", calls)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.Attempts != 3 || p.BaseDelay != 2*time.Second {
		t.Errorf("DefaultPolicy() = %+v", p)
	}
}
