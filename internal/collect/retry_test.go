package collect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"climatewatch/internal/types"
)

// recordingSleep captures requested waits without sleeping.
type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func unreachable() error {
	return types.NewAppError(types.ErrCodeProviderUnreachable, "connection refused", nil)
}

func TestBackoff_DoublesAndCaps(t *testing.T) {
	p := RetryPolicy{MaxRetries: 10, BaseDelay: time.Second, MaxDelay: 10 * time.Second}

	assert.Equal(t, time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, 10*time.Second, p.Backoff(4))
	assert.Equal(t, 10*time.Second, p.Backoff(60))
}

func TestRetry_StopsOnSuccess(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	attempts, err := Retry(context.Background(), DefaultRetryPolicy(), rs.sleep, IsRetryable, func(context.Context, int) error {
		calls++
		if calls < 2 {
			return unreachable()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{time.Second}, rs.waits)
}

func TestRetry_BoundedByMaxRetries(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	policy := RetryPolicy{MaxRetries: 4, BaseDelay: time.Second, MaxDelay: time.Minute}
	attempts, err := Retry(context.Background(), policy, rs.sleep, IsRetryable, func(context.Context, int) error {
		calls++
		return unreachable()
	})

	require.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, 4, calls)
	// No wait after the final attempt.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, rs.waits)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	rs := &recordingSleep{}
	calls := 0
	attempts, err := Retry(context.Background(), DefaultRetryPolicy(), rs.sleep, IsRetryable, func(context.Context, int) error {
		calls++
		return types.NewAppError(types.ErrCodeProviderAuthFailed, "bad key", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rs.waits)
}

func TestRetry_HonorsRetryAfterHint(t *testing.T) {
	rs := &recordingSleep{}
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: 20 * time.Second}
	_, _ = Retry(context.Background(), policy, rs.sleep, IsRetryable, func(context.Context, int) error {
		return types.NewAppErrorWithDetails(types.ErrCodeProviderRateLimited, "slow down", nil,
			map[string]any{"retry_after": 45 * time.Second})
	})

	assert.Equal(t, []time.Duration{20 * time.Second}, rs.waits)
}

func TestRetry_CancelledContextStopsBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	attempts, err := Retry(ctx, DefaultRetryPolicy(), func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}, IsRetryable, func(context.Context, int) error {
		calls++
		return unreachable()
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, types.ErrCodeProviderUnreachable, types.CodeOf(err))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(unreachable()))
	assert.True(t, IsRetryable(types.NewAppError(types.ErrCodeProviderRateLimited, "", nil)))
	assert.False(t, IsRetryable(types.NewAppError(types.ErrCodeProviderAuthFailed, "", nil)))
	assert.False(t, IsRetryable(types.NewAppError(types.ErrCodeProviderMalformed, "", nil)))
	assert.False(t, IsRetryable(context.Canceled))
}
