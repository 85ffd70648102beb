package social

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitedError signals that the provider throttled a request. ResetAt
// is zero when the provider returned a bare "too many requests" without a
// machine-readable reset time.
type RateLimitedError struct {
	Category  Category
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.HasReset() {
		return fmt.Sprintf("rate limited on %s (limit %d, remaining %d, resets %s)",
			e.Category, e.Limit, e.Remaining, e.ResetAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("rate limited on %s (no reset metadata)", e.Category)
}

// HasReset reports whether the provider supplied a reset timestamp.
func (e *RateLimitedError) HasReset() bool {
	return !e.ResetAt.IsZero()
}

// RateLimitInfo converts the error payload into rate-limit metadata.
func (e *RateLimitedError) RateLimitInfo() *RateLimit {
	if !e.HasReset() {
		return nil
	}
	return &RateLimit{Limit: e.Limit, Remaining: e.Remaining, ResetAt: e.ResetAt}
}

// PermanentError signals an auth or validation failure that must not be
// retried (invalid token, malformed payload, permanent 4xx).
type PermanentError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent API error (status %d): %s", e.StatusCode, e.Message)
}

// QuotaExceededError signals a local quota rejection. The request was never
// attempted on the network and must not be retried within the window.
type QuotaExceededError struct {
	// Kind is the activity type that hit its cap (post, reply, read).
	Kind string

	// Used and Limit describe the exhausted window.
	Used  int
	Limit int

	// Window names the exhausted window (daily, monthly).
	Window string
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded for %s (%d/%d)", e.Window, e.Kind, e.Used, e.Limit)
}

// IsRateLimited reports whether err is (or wraps) a provider throttle, and
// returns the error payload when it is.
func IsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// IsPermanent reports whether err is (or wraps) a permanent API error.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsQuotaExceeded reports whether err is (or wraps) a local quota rejection.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}
