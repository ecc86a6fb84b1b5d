package concurrent

import (
	"math/rand"
	"time"
)

// RetryPolicy retries failed sink writes, store merges, and service lookups.
//
// Retried operations must be atomic: a failed Merge or Write must leave no
// partial effect behind, or the retry will double-count it.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts including the first one.
	// Must be >= 1. A value of 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff.
	// The delay before retry n (0-based) is min(BaseDelay*2^n, MaxDelay) plus
	// a jitter in [0, BaseDelay).
	BaseDelay time.Duration

	// MaxDelay caps the exponential component. Zero means no cap.
	MaxDelay time.Duration

	// Retryable reports whether an error is transient.
	// If nil, no error is retried.
	Retryable func(error) bool
}

// Validate checks the policy:
//   - MaxAttempts must be >= 1
//   - BaseDelay must not be negative
//   - if both are set, MaxDelay must be >= BaseDelay
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 || rp.BaseDelay < 0 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}

func (rp *RetryPolicy) retryable(err error) bool {
	return rp != nil && rp.Retryable != nil && rp.Retryable(err)
}

// computeBackoff returns the delay before retry attempt (0 = first retry):
//
//	delay = min(base * 2^attempt, maxDelay) + jitter(0, base)
//
// With base=10ms, maxDelay=100ms:
//   - attempt 0: 10-20ms
//   - attempt 1: 20-30ms
//   - attempt 4: 100-110ms (capped)
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}

	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}
	return delay + jitter
}
