// Package retry runs an operation under a bounded exponential backoff policy.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how often and how patiently an operation is retried
type Policy struct {
	Attempts  int           // Total attempts including the first one
	BaseDelay time.Duration // Wait before the second attempt; doubles for each later one
}

// DefaultPolicy returns 3 attempts waiting 2s and then 4s
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 2 * time.Second,
	}
}

// NotifyFunc is called after a failed attempt, before waiting
type NotifyFunc func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a Permanent error, the context ends
// or the policy is exhausted. It returns the number of attempts made and the
// last error.
func Do(ctx context.Context, p Policy, op func(attempt int) error, notify NotifyFunc) (int, error) {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.BaseDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = p.BaseDelay << uint(p.Attempts)
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.Attempts-1)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return op(attempt)
	}, b, func(err error, wait time.Duration) {
		if notify != nil {
			notify(attempt, err, wait)
		}
	})
	return attempt, err
}

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	return backoff.Permanent(err)
}
