package objectstore

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBase     = 50 * time.Millisecond
)

// withRetry retries fn up to attempts times when it returns a Throttled or
// Transient error, sleeping 50ms * 2^n plus jitter between attempts. Other
// errors surface immediately. Honors ctx cancellation during the backoff
// sleep, per §5 "cancellation propagates into adapter calls."
func withRetry(ctx context.Context, op, key string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < defaultRetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := defaultRetryBase * (1 << uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(defaultRetryBase)))
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		oe := classify(op, key, err)
		if !oe.Kind.Retryable() {
			return oe
		}
		lastErr = oe
	}
	return lastErr
}
