// Package retry wraps single network attempts with bounded, rate-limit
// aware retry logic. It is the single place throttling policy lives:
// provider-reported reset times drive exact waits, metadata-free throttles
// and transient failures fall back to a fixed backoff schedule, and
// permanent errors surface immediately.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/chirpwire/chirpd/pkg/ratelimit"
	"github.com/chirpwire/chirpd/pkg/social"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirpd_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chirpd_retry_backoff_seconds",
		Help:    "Backoff duration before retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirpd_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})

	preemptiveWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirpd_preemptive_waits_total",
		Help: "Attempts delayed until a known rate limit reset by category",
	}, []string{"category"})
)

// Config holds the executor configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts per operation,
	// including the initial one.
	MaxAttempts int

	// SafetyBuffer is added on top of a provider-reported reset time
	// before the next attempt.
	SafetyBuffer time.Duration

	// BackoffSchedule is the fixed wait table, indexed by attempt number,
	// used when the provider gives no usable reset signal. The last entry
	// repeats for attempts beyond the table.
	BackoffSchedule []time.Duration
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		SafetyBuffer: 1 * time.Second,
		BackoffSchedule: []time.Duration{
			1 * time.Second,
			5 * time.Second,
			15 * time.Second,
			30 * time.Second,
			60 * time.Second,
		},
	}
}

// AttemptFunc performs one network attempt. The returned *social.RateLimit
// carries limit metadata from a successful response and may be nil; on
// throttling the metadata travels inside *social.RateLimitedError instead.
type AttemptFunc func(ctx context.Context) (any, *social.RateLimit, error)

// Executor runs attempts with rate-limit aware retries. It is the only
// writer of the rate-limit store it owns a reference to.
type Executor struct {
	limits *ratelimit.Store
	config Config
	logger zerolog.Logger
}

// NewExecutor creates a retry executor bound to a rate-limit store.
func NewExecutor(limits *ratelimit.Store, cfg Config) (*Executor, error) {
	if limits == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be at least 1 (got %d)", cfg.MaxAttempts)
	}
	if len(cfg.BackoffSchedule) == 0 {
		return nil, fmt.Errorf("backoff schedule must not be empty")
	}

	return &Executor{
		limits: limits,
		config: cfg,
		logger: log.With().Str("component", "retry").Logger(),
	}, nil
}

// Do executes an operation with up to MaxAttempts attempts.
//
// Before each attempt, a known-spent window for the category is waited out
// (reset plus safety buffer) rather than burning an attempt on a guaranteed
// failure. Throttles with a reset timestamp wait until reset plus buffer;
// throttles without one and transient failures follow the fixed backoff
// schedule. Permanent errors propagate on first occurrence.
func (e *Executor) Do(ctx context.Context, category social.Category, attempt AttemptFunc) (any, error) {
	var lastErr error
	var lastReset time.Time

	for attemptNum := 1; attemptNum <= e.config.MaxAttempts; attemptNum++ {
		// Pre-emptive wait: a prior observation showing zero remaining
		// with a future reset makes an immediate attempt pointless.
		if resetAt, ok := e.limits.ExhaustedUntil(category); ok {
			wait := time.Until(resetAt) + e.config.SafetyBuffer
			preemptiveWaitsTotal.WithLabelValues(string(category)).Inc()
			e.logger.Info().
				Str("category", string(category)).
				Dur("wait", wait).
				Time("reset_at", resetAt).
				Msg("Waiting out known-spent rate limit window")
			if err := e.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}

		value, meta, err := attempt(ctx)
		if err == nil {
			if meta != nil {
				e.limits.Observe(category, *meta)
			}
			if attemptNum > 1 {
				e.logger.Info().
					Str("category", string(category)).
					Int("attempt", attemptNum).
					Msg("Request succeeded after retry")
			}
			return value, nil
		}

		lastErr = err
		class := Classify(err)

		if class == ClassPermanent {
			// Auth and validation failures are terminal on first sight.
			return nil, err
		}

		var wait time.Duration
		if throttle, ok := social.IsRateLimited(err); ok {
			if throttle.HasReset() {
				e.limits.Observe(category, social.RateLimit{
					Limit:     throttle.Limit,
					Remaining: 0,
					ResetAt:   throttle.ResetAt,
				})
				lastReset = throttle.ResetAt
				wait = time.Until(throttle.ResetAt) + e.config.SafetyBuffer
				if wait < e.config.SafetyBuffer {
					wait = e.config.SafetyBuffer
				}
			} else {
				// Bare "too many requests" with no machine-readable
				// reset: fall back to the fixed schedule.
				wait = e.backoffFor(attemptNum)
			}
		} else {
			wait = e.backoffFor(attemptNum)
		}

		if attemptNum >= e.config.MaxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		e.logger.Warn().
			Str("category", string(category)).
			Str("error_class", string(class)).
			Int("attempt", attemptNum).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		if err := e.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}

	class := Classify(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	e.logger.Warn().
		Str("category", string(category)).
		Str("error_class", string(class)).
		Int("max_attempts", e.config.MaxAttempts).
		Msg("Retry attempts exhausted")

	if class == ClassRateLimit {
		return nil, &RateLimitExceededError{
			Category: category,
			ResetAt:  lastReset,
			Attempts: e.config.MaxAttempts,
			Err:      lastErr,
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, e.config.MaxAttempts, lastErr)
}

// backoffFor returns the scheduled wait for an attempt number (1-based).
func (e *Executor) backoffFor(attemptNum int) time.Duration {
	idx := attemptNum - 1
	if idx >= len(e.config.BackoffSchedule) {
		idx = len(e.config.BackoffSchedule) - 1
	}
	return e.config.BackoffSchedule[idx]
}

// sleep waits with context cancellation support.
func (e *Executor) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		e.logger.Warn().
			Dur("remaining", d).
			Msg("Context cancelled during retry wait")
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
