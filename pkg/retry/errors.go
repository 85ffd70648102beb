package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/chirpwire/chirpd/pkg/social"
)

// Common errors returned by the executor.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context ends during a wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass classifies a failed attempt for retry policy and metrics.
type ErrorClass string

const (
	// ClassRateLimit marks provider throttling; retried with reset-aware
	// or scheduled waits.
	ClassRateLimit ErrorClass = "rate_limit"

	// ClassTransient marks network and server failures; retried with the
	// fixed backoff schedule.
	ClassTransient ErrorClass = "transient"

	// ClassPermanent marks auth/validation failures and local quota
	// rejections; never retried.
	ClassPermanent ErrorClass = "permanent"
)

// Classify maps an error onto its retry class.
func Classify(err error) ErrorClass {
	if _, ok := social.IsRateLimited(err); ok {
		return ClassRateLimit
	}
	if social.IsPermanent(err) || social.IsQuotaExceeded(err) {
		return ClassPermanent
	}
	return ClassTransient
}

// RateLimitExceededError is the terminal result of an operation that was
// throttled on every attempt. ResetAt is the last observed reset time,
// zero when the provider never supplied one.
type RateLimitExceededError struct {
	Category social.Category
	ResetAt  time.Time
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *RateLimitExceededError) Error() string {
	if !e.ResetAt.IsZero() {
		return fmt.Sprintf("rate limit exceeded on %s after %d attempts, window resets %s",
			e.Category, e.Attempts, e.ResetAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("rate limit exceeded on %s after %d attempts", e.Category, e.Attempts)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *RateLimitExceededError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrRetryExhausted) match exhaustion regardless of
// the wrapped attempt error.
func (e *RateLimitExceededError) Is(target error) bool {
	return target == ErrRetryExhausted
}
