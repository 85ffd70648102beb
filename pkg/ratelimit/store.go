package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/chirpwire/chirpd/pkg/social"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chirpd_rate_limit_remaining",
		Help: "Requests remaining in the current rate limit window by category",
	}, []string{"category"})

	rateLimitObservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirpd_rate_limit_observations_total",
		Help: "Total rate limit observations recorded by category",
	}, []string{"category"})
)

// Recorder persists rate-limit observations. Recording is best-effort and
// must never block the request path.
type Recorder interface {
	RecordRateLimitObservation(ctx context.Context, category social.Category, obs social.RateLimitObservation) error
}

// Store holds the last observed rate-limit snapshot per endpoint category.
// Snapshots are created lazily on first observation. All access goes
// through the mutex; the retry executor is the only writer.
type Store struct {
	mu       sync.Mutex
	states   map[social.Category]Snapshot
	recorder Recorder
	logger   zerolog.Logger
}

// NewStore creates an empty rate-limit store. recorder may be nil, in which
// case observations are kept in memory only.
func NewStore(recorder Recorder) *Store {
	return &Store{
		states:   make(map[social.Category]Snapshot),
		recorder: recorder,
		logger:   log.With().Str("component", "ratelimit").Logger(),
	}
}

// Observe overwrites the snapshot for a category with fresh metadata.
func (s *Store) Observe(category social.Category, rl social.RateLimit) {
	now := time.Now()
	snap := FromRateLimit(rl, now)

	s.mu.Lock()
	s.states[category] = snap
	s.mu.Unlock()

	rateLimitRemaining.WithLabelValues(string(category)).Set(float64(snap.Remaining))
	rateLimitObservationsTotal.WithLabelValues(string(category)).Inc()

	event := s.logger.Debug()
	if snap.Remaining == 0 {
		event = s.logger.Warn()
	}
	event.
		Str("category", string(category)).
		Int("remaining", snap.Remaining).
		Int("limit", snap.Limit).
		Time("reset_at", snap.ResetAt).
		Msg("Rate limit state updated")

	if s.recorder != nil {
		// Best-effort persistence off the request path.
		go s.record(category, snap)
	}
}

// record writes one observation to the recorder with a short deadline.
func (s *Store) record(category social.Category, snap Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	obs := social.RateLimitObservation{
		Limit:      snap.Limit,
		Remaining:  snap.Remaining,
		ResetAt:    snap.ResetAt,
		ObservedAt: snap.ObservedAt,
	}
	if err := s.recorder.RecordRateLimitObservation(ctx, category, obs); err != nil {
		s.logger.Warn().Err(err).
			Str("category", string(category)).
			Msg("Failed to persist rate limit observation")
	}
}

// Get returns the last snapshot for a category, false if none was observed.
func (s *Store) Get(category social.Category) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.states[category]
	return snap, ok
}

// ExhaustedUntil returns the reset time for a category whose window is
// known to be spent. ok is false when the state is unknown or the window
// still has budget.
func (s *Store) ExhaustedUntil(category social.Category) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.states[category]
	if !ok || !snap.Exhausted(time.Now()) {
		return time.Time{}, false
	}
	return snap.ResetAt, true
}
