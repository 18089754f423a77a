package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/domain"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 20 * time.Millisecond
	maxRetryBackoff     = time.Second
)

// RetryPolicy bounds automatic retries of concurrency conflicts.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Backoff <= 0 {
		p.Backoff = defaultRetryBackoff
	}
	return p
}

// retryOnConflict runs fn until it succeeds, fails with anything other than
// domain.ErrConcurrencyConflict, or the policy is exhausted. The delay doubles after every attempt.
func retryOnConflict(ctx context.Context, policy RetryPolicy, onRetry func(attempt int, err error), fn func() error) error {
	policy = policy.normalized()
	delay := policy.Backoff

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !errors.Is(err, domain.ErrConcurrencyConflict) || attempt > policy.MaxRetries {
			return err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(err, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > maxRetryBackoff {
			delay = maxRetryBackoff
		}
	}
}
