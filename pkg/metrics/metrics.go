// Package metrics provides the centralized Prometheus registry reference
// for chirpd. All metrics are defined in their respective packages (quota,
// queue, retry, ratelimit, client, poller) via promauto to maintain
// modularity and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by chirpd.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Rate Limit Metrics (pkg/ratelimit):
//   - chirpd_rate_limit_remaining{category} (Gauge): Requests remaining in the observed window
//   - chirpd_rate_limit_observations_total{category} (Counter): Observations recorded
//
// Quota Metrics (pkg/quota):
//   - chirpd_quota_used{kind} (Gauge): Current usage by activity kind (post, reply, read)
//   - chirpd_quota_rejections_total{kind} (Counter): Local reservations rejected
//
// Queue Metrics (pkg/queue):
//   - chirpd_queue_depth{category} (Gauge): Tasks queued or executing per lane
//   - chirpd_queue_wait_seconds{category} (Histogram): Time spent behind lane predecessors
//
// Retry Metrics (pkg/retry):
//   - chirpd_retries_total{error_class} (Counter): Retry attempts by error class
//   - chirpd_retry_backoff_seconds{error_class} (Histogram): Backoff duration before retries
//   - chirpd_retry_exhausted_total{error_class} (Counter): Operations that exhausted max attempts
//   - chirpd_preemptive_waits_total{category} (Counter): Attempts delayed until a known reset
//
// Request Metrics (pkg/client):
//   - chirpd_requests_total{category, outcome} (Counter): Orchestrated operations by outcome
//   - chirpd_request_duration_seconds{category} (Histogram): End-to-end operation duration
//
// Poller Metrics (pkg/poller):
//   - chirpd_poll_cycles_total{result} (Counter): Poll cycles by result (ok, empty, error)
//   - chirpd_mentions_processed_total{outcome} (Counter): Mentions by outcome (handled, failed, skipped)
//   - chirpd_poll_interval_seconds (Gauge): Delay chosen for the next cycle
//
// Example Prometheus Queries:
//
//   # Quota rejection rate
//   rate(chirpd_quota_rejections_total[1h])
//
//   # Throttle pressure
//   rate(chirpd_retries_total{error_class="rate_limit"}[15m])
//
//   # Poll loop health (should stay near the configured default)
//   chirpd_poll_interval_seconds
//
//   # P95 operation latency including queue and retry waits
//   histogram_quantile(0.95, rate(chirpd_request_duration_seconds_bucket[5m]))
//
//   # Mention failure ratio
//   rate(chirpd_mentions_processed_total{outcome="failed"}[1d]) /
//   rate(chirpd_mentions_processed_total[1d])
