package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryTransientStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("constraint violated")
	calls := 0
	attempts, err := retryTransient(context.Background(), retryPolicy{attempts: 5, baseDelay: time.Millisecond}, nil, func() error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	require.Equal(t, 1, attempts)
	require.Equal(t, 1, calls)
}

func TestRetryTransientRecovers(t *testing.T) {
	var retried []int
	calls := 0
	attempts, err := retryTransient(context.Background(), retryPolicy{attempts: 4, baseDelay: time.Millisecond},
		func(attempt int, _ error) { retried = append(retried, attempt) },
		func() error {
			calls++
			if calls < 3 {
				return errConcurrentUpdate
			}
			return nil
		})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, []int{1, 2}, retried)
}

func TestRetryTransientHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := retryTransient(ctx, retryPolicy{attempts: 3, baseDelay: time.Second}, nil, func() error {
		return errConcurrentUpdate
	})
	require.ErrorIs(t, err, errConcurrentUpdate)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicyDelayIsBounded(t *testing.T) {
	policy := retryPolicy{attempts: 10, baseDelay: 10 * time.Millisecond, maxDelay: 40 * time.Millisecond}.normalized()
	for retry := 1; retry <= 10; retry++ {
		d := policy.delay(retry)
		require.Greater(t, d, time.Duration(0))
		require.LessOrEqual(t, d, 40*time.Millisecond)
	}
}
