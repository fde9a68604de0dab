package util

import (
	"context"
	"time"

	"scopedrbac/internal/rbac/model"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds RetryIdempotent.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 100 * time.Millisecond,
	MaxInterval:     2 * time.Second,
	MaxRetries:      4,
}

// RetryIdempotent re-runs op with exponential backoff while it fails with a
// dependency error. Any other error is returned immediately. Only use it for
// operations that are safe to repeat.
func RetryIdempotent(ctx context.Context, policy RetryPolicy, op func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.MaxInterval = policy.MaxInterval
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, policy.MaxRetries), ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil || model.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, b)
}
