// Package retry provides the single retry policy used across the engine.
// The market data source and the scheduler used to carry their own ad-hoc
// retry loops; both now run through a Policy.
package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// Strategy selects how the delay grows between attempts.
type Strategy int

const (
	// Exponential doubles the delay after every failed attempt.
	Exponential Strategy = iota
	// Linear waits base*attempt between attempts.
	Linear
)

// Policy describes a bounded retry loop.
type Policy struct {
	MaxAttempts int           // total attempts, including the first
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // cap for exponential growth; 0 = 30s
	Strategy    Strategy

	// Retryable decides whether an error is worth another attempt.
	// nil means every error is retryable.
	Retryable func(error) bool
}

// Do runs fn until it succeeds, the attempts are exhausted, a non-retryable
// error occurs, or ctx is cancelled. The last error from fn is returned on
// exhaustion; ctx.Err() is returned on cancellation mid-wait.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	exp := &backoff.Backoff{Min: base, Max: maxDelay, Factor: 2}

	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt >= attempts {
			return lastErr
		}

		var delay time.Duration
		switch p.Strategy {
		case Linear:
			delay = base * time.Duration(attempt)
		default:
			delay = exp.Duration()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
