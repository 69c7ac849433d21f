package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds Store retries. The delay before retry n is
// n × Interval, so attempts are spaced with linearly increasing waits.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultRetryPolicy matches the upload contract: five attempts with the
// delay growing by one second per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Interval: time.Second}
}

// linearBackOff implements backoff.BackOff with delay = attempt × interval.
type linearBackOff struct {
	interval time.Duration
	attempt  int64
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.interval
}

func (b *linearBackOff) Reset() {
	b.attempt = 0
}

// Retrying decorates a BlobStore with a bounded retry policy. The final
// failure is surfaced to the caller after the attempts are exhausted.
type Retrying struct {
	inner  BlobStore
	policy RetryPolicy
}

// NewRetrying wraps a store with the policy, falling back to the default
// policy values for non-positive fields.
func NewRetrying(inner BlobStore, policy RetryPolicy) *Retrying {
	def := DefaultRetryPolicy()
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.Interval <= 0 {
		policy.Interval = def.Interval
	}
	return &Retrying{inner: inner, policy: policy}
}

// Store attempts the inner store up to MaxAttempts times. Cancelling the
// context stops the retry loop between attempts.
func (r *Retrying) Store(ctx context.Context, data []byte, fileName, contentType string) (string, error) {
	var url string
	operation := func() error {
		stored, err := r.inner.Store(ctx, data, fileName, contentType)
		if err != nil {
			return err
		}
		url = stored
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{interval: r.policy.Interval}, uint64(r.policy.MaxAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return "", fmt.Errorf("upload failed after %d attempts: %w", r.policy.MaxAttempts, err)
	}
	return url, nil
}
