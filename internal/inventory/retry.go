package inventory

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/retailops-backend/pkg/db"
)

// errConcurrentUpdate means another writer changed the StockLevel between
// our read and the compare-and-set update.
var errConcurrentUpdate = errors.New("stock level changed concurrently")

type retryPolicy struct {
	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

func (p retryPolicy) normalized() retryPolicy {
	if p.attempts <= 0 {
		p.attempts = defaultMaxAttempts
	}
	if p.baseDelay <= 0 {
		p.baseDelay = defaultRetryBaseDelay
	}
	if p.maxDelay < p.baseDelay {
		p.maxDelay = p.baseDelay
	}
	return p
}

// delay returns the full-jitter backoff before the given retry (1-based).
func (p retryPolicy) delay(retry int) time.Duration {
	d := p.baseDelay
	for i := 1; i < retry && d < p.maxDelay; i++ {
		d *= 2
	}
	if d > p.maxDelay {
		d = p.maxDelay
	}
	return d/2 + time.Duration(rand.Int64N(int64(d/2)+1))
}

func isTransient(err error) bool {
	return errors.Is(err, errConcurrentUpdate) || db.IsTransient(err)
}

// retryTransient runs fn until it succeeds, fails permanently or the attempts
// run out. onRetry is called before every sleep.
func retryTransient(ctx context.Context, policy retryPolicy, onRetry func(attempt int, err error), fn func() error) (int, error) {
	policy = policy.normalized()
	var err error
	for attempt := 1; attempt <= policy.attempts; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) {
			return attempt, err
		}
		if attempt == policy.attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		timer := time.NewTimer(policy.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, multierr.Append(err, ctx.Err())
		case <-timer.C:
		}
	}
	return policy.attempts, err
}
