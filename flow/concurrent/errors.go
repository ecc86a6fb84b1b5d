package concurrent

import "errors"

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// ErrMaxAttemptsExceeded is returned when an operation still fails with a
// retryable error after RetryPolicy.MaxAttempts attempts.
var ErrMaxAttemptsExceeded = errors.New("maximum retry attempts exceeded")

// ErrInvalidOption is returned by New for an out-of-range option.
var ErrInvalidOption = errors.New("invalid option")
