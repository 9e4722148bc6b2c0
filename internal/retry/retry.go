// Package retry runs an operation under a bounded exponential backoff policy.
//
// The policy is a plain value: attempt bound, delay schedule and an explicit
// retryable predicate. Nothing is inferred from error types.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// ErrExhausted is matched by errors.Is when every allowed attempt failed
// with a retryable error.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter is the randomization factor in [0,1]; 0 gives a fixed schedule.
	Jitter float64

	// Retryable decides whether a failed attempt may be repeated.
	// A nil predicate retries nothing.
	Retryable func(error) bool
	// RetryAfter extracts a server-requested minimum delay from an error.
	// The hint is honored up to MaxDelay.
	RetryAfter func(error) (time.Duration, bool)
	// OnRetry is called before sleeping ahead of attempt (1-based).
	OnRetry func(attempt int, err error, delay time.Duration)
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger *zap.Logger
}

// DefaultPolicy returns three attempts with a 1s, 2s schedule capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
		Jitter:      0.2,
	}
}

// ExhaustedError carries the last cause after the attempt bound was hit.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Do calls fn until it succeeds, fails with a non-retryable error, the
// context is done, or MaxAttempts is reached. It returns the number of
// attempts made.
//
// A non-retryable error is returned unchanged. Exhaustion returns an
// *ExhaustedError. When ctx ends during a backoff sleep the context error
// is returned joined with the last failure.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) (int, error) {
	p = p.normalized()
	schedule := p.schedule()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := schedule.NextBackOff()
			if p.RetryAfter != nil {
				if ra, ok := p.RetryAfter(lastErr); ok && ra > delay {
					delay = min(ra, p.MaxDelay)
				}
			}
			p.Logger.Debug("retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr, delay)
			}
			if err := p.Sleep(ctx, delay); err != nil {
				return attempt - 1, errors.Join(err, lastErr)
			}
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil {
			return attempt, errors.Join(ctx.Err(), lastErr)
		}
		if p.Retryable == nil || !p.Retryable(lastErr) {
			return attempt, lastErr
		}
	}

	p.Logger.Warn("retry attempts exhausted",
		zap.Int("attempts", p.MaxAttempts),
		zap.Error(lastErr),
	)
	return p.MaxAttempts, &ExhaustedError{Attempts: p.MaxAttempts, Err: lastErr}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	if p.Jitter > 1 {
		p.Jitter = 1
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return p
}

func (p Policy) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = p.Jitter
	b.Reset()
	return b
}

// Delays returns the un-jittered delay before each retry, for display.
func (p Policy) Delays() []time.Duration {
	p = p.normalized()
	p.Jitter = 0
	b := p.schedule()
	out := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := 1; i < p.MaxAttempts; i++ {
		out = append(out, b.NextBackOff())
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
