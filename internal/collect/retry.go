// Package collect resolves one weather sample per tick. Providers are tried
// strictly in priority order, each under the shared retry policy, and the
// first payload that normalizes cleanly wins.
package collect

import (
	"context"
	"errors"
	"time"

	"climatewatch/internal/types"
)

// RetryPolicy bounds the attempts made against a single provider.
type RetryPolicy struct {
	// MaxRetries is the total number of attempts, including the first.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns the defaults used when configuration is absent.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

// Backoff returns the wait after the given zero-based failed attempt:
// BaseDelay × 2^attempt, capped at MaxDelay.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.MaxDelay || d <= 0 {
			return p.MaxDelay
		}
	}
	if d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the production SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Classifier reports whether err is worth another attempt.
type Classifier func(err error) bool

// IsRetryable retries provider_unreachable and provider_rate_limited only.
func IsRetryable(err error) bool {
	return types.CodeOf(err).Retryable()
}

// retryAfter extracts the Retry-After hint captured by the provider client.
func retryAfter(err error) (time.Duration, bool) {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return 0, false
	}
	d, ok := appErr.Details["retry_after"].(time.Duration)
	return d, ok
}

// Retry calls fn until it succeeds, returns a non-retryable error, or
// MaxRetries attempts have been made. attempt is zero-based. A rate-limit
// hint longer than the computed backoff is honored up to MaxDelay. Retry
// returns the number of attempts made and the last error.
func Retry(ctx context.Context, policy RetryPolicy, sleep SleepFunc, classify Classifier, fn func(ctx context.Context, attempt int) error) (int, error) {
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	if sleep == nil {
		sleep = ContextSleep
	}
	if classify == nil {
		classify = IsRetryable
	}

	var err error
	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			return attempt, err
		}

		err = fn(ctx, attempt)
		if err == nil {
			return attempt + 1, nil
		}
		if !classify(err) || attempt == policy.MaxRetries-1 {
			return attempt + 1, err
		}

		wait := policy.Backoff(attempt)
		if hint, ok := retryAfter(err); ok && hint > wait {
			wait = min(hint, policy.MaxDelay)
		}
		if sleepErr := sleep(ctx, wait); sleepErr != nil {
			return attempt + 1, err
		}
	}
	return policy.MaxRetries, err
}
