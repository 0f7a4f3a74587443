package connector

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/evalcore/evalcore/types"
	"go.uber.org/zap"
)

// RetryPolicy configures the connector's exponential backoff with full
// jitter. Callers may supply their own values; DefaultRetryPolicy gives
// base = 200ms, factor = 2, cap = 10s, max = 5 attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// DefaultRetryPolicy returns the standard backoff policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Factor:      2,
	}
}

// Retryer executes fn, retrying on a retryable *types.Error until it
// succeeds, the policy is exhausted, or ctx is cancelled.
type Retryer interface {
	Do(ctx context.Context, fn func() (Response, error)) (Response, error)
}

type backoffRetryer struct {
	policy  RetryPolicy
	logger  *zap.Logger
	onRetry func(attempt int, err error, delay time.Duration)
}

// NewRetryer builds a Retryer using policy, logging each retry at Debug and
// invoking onRetry (if non-nil) before each delay, so a caller can count
// retries into a metric without the retryer importing one.
func NewRetryer(policy RetryPolicy, logger *zap.Logger, onRetry func(attempt int, err error, delay time.Duration)) Retryer {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &backoffRetryer{policy: policy, logger: logger, onRetry: onRetry}
}

func (r *backoffRetryer) Do(ctx context.Context, fn func() (Response, error)) (Response, error) {
	var lastErr error

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := r.fullJitterDelay(attempt)
			if r.onRetry != nil {
				r.onRetry(attempt, lastErr, delay)
			}
			r.logger.Debug("model connector retrying",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return Response{}, types.NewError(types.KindCancelled, "retry cancelled").WithCause(ctx.Err())
			case <-time.After(delay):
			}
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !types.IsRetryable(err) {
			return Response{}, err
		}
	}

	// Exhausted: surface the last attempt's own kind (Transport, RateLimited,
	// ...) rather than inventing a new one. RateLimited is only the terminal
	// kind after retries exhaust on a 429; a run of 5xx failures should
	// still read as Transport.
	return Response{}, lastErr
}

// fullJitterDelay implements the "full jitter" backoff:
// delay = uniform(0, min(cap, base*factor^attempt)).
func (r *backoffRetryer) fullJitterDelay(attempt int) time.Duration {
	capped := float64(r.policy.BaseDelay) * math.Pow(r.policy.Factor, float64(attempt))
	if capped > float64(r.policy.MaxDelay) {
		capped = float64(r.policy.MaxDelay)
	}
	n := int64(capped)
	if n <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(n))
}
