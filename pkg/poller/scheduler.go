// Package poller runs the self-rescheduling mention loop. Each cycle
// fetches new mentions through the orchestration stack, hands them to the
// content handler one at a time with pacing in between, and computes the
// next wake-up from the outcome: default interval on success, stretched
// (capped) interval on throttling, exact reset-derived delay when the
// provider said when to come back.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirpwire/chirpd/pkg/retry"
	"github.com/chirpwire/chirpd/pkg/social"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for the polling loop.
var (
	pollCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirpd_poll_cycles_total",
		Help: "Completed poll cycles by result",
	}, []string{"result"}) // "ok", "empty", "error"

	mentionsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirpd_mentions_processed_total",
		Help: "Mentions seen by the poll loop by outcome",
	}, []string{"outcome"}) // "handled", "failed", "skipped"

	pollIntervalSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chirpd_poll_interval_seconds",
		Help: "Delay chosen for the next poll cycle",
	})
)

// MaxInterval is the hard ceiling for the stretched poll interval.
const MaxInterval = 3600 * time.Second

// Fetcher is the slice of the orchestration client the scheduler needs.
type Fetcher interface {
	FetchMentions(ctx context.Context, sinceID string) (*social.MentionPage, error)
	Identity(ctx context.Context) (social.Identity, error)
}

// Config holds the scheduler configuration.
type Config struct {
	// Interval is the default delay between cycles.
	Interval time.Duration

	// MaxInterval caps the stretched interval after repeated throttling.
	MaxInterval time.Duration

	// ItemPacing is the fixed delay between handled items within one
	// cycle. It bounds burst rate independently of lane serialization.
	ItemPacing time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    60 * time.Second,
		MaxInterval: MaxInterval,
		ItemPacing:  5 * time.Second,
	}
}

// Scheduler drives the mention polling loop. Only one cycle is ever in
// flight; the next is scheduled strictly after the current one settles.
type Scheduler struct {
	config  Config
	store   social.Store
	handler social.Handler
	fetch   Fetcher
	logger  zerolog.Logger

	// interval is the current stretched interval; touched only by the
	// loop goroutine.
	interval time.Duration
}

// NewScheduler creates a poll scheduler.
func NewScheduler(fetch Fetcher, store social.Store, handler social.Handler, cfg Config) (*Scheduler, error) {
	if fetch == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.MaxInterval <= 0 || cfg.MaxInterval > MaxInterval {
		cfg.MaxInterval = MaxInterval
	}
	if cfg.ItemPacing < 0 {
		cfg.ItemPacing = 0
	}

	return &Scheduler{
		config:   cfg,
		store:    store,
		handler:  handler,
		fetch:    fetch,
		interval: cfg.Interval,
		logger:   log.With().Str("component", "poller").Logger(),
	}, nil
}

// Run executes poll cycles until the context ends. No error class escapes
// the loop: every failure is logged and folded into the next delay. The
// returned error is always the context's.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Dur("item_pacing", s.config.ItemPacing).
		Msg("Poll loop starting")

	for {
		next := s.cycle(ctx)
		pollIntervalSeconds.Set(next.Seconds())

		s.logger.Debug().Dur("next", next).Msg("Cycle settled, rescheduling")

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Poll loop stopping")
			return ctx.Err()
		case <-time.After(next):
		}
	}
}

// cycle runs one fetch-and-process pass and returns the delay until the
// next one. It never panics the loop and never returns without a delay.
func (s *Scheduler) cycle(ctx context.Context) time.Duration {
	cursor, err := s.store.LoadCursor(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to load poll cursor, skipping cycle")
		pollCyclesTotal.WithLabelValues("error").Inc()
		return s.nextAfterError(err)
	}

	self, err := s.fetch.Identity(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to resolve own identity, skipping cycle")
		pollCyclesTotal.WithLabelValues("error").Inc()
		return s.nextAfterError(err)
	}

	page, err := s.fetch.FetchMentions(ctx, cursor)
	if err != nil {
		s.logger.Error().Err(err).Str("cursor", cursor).Msg("Mention fetch failed")
		pollCyclesTotal.WithLabelValues("error").Inc()
		return s.nextAfterError(err)
	}

	if len(page.Items) == 0 {
		s.logger.Debug().Str("cursor", cursor).Msg("No new mentions")
		pollCyclesTotal.WithLabelValues("empty").Inc()
		return s.nextAfterSuccess()
	}

	s.logger.Info().
		Int("count", len(page.Items)).
		Str("cursor", cursor).
		Msg("Processing mentions")

	s.processItems(ctx, self, page.Items)

	pollCyclesTotal.WithLabelValues("ok").Inc()
	return s.nextAfterSuccess()
}

// processItems handles fetched mentions in the order returned. Cursor
// advancement is per item, not per cycle: a failed item is logged, its
// cursor still advances, and the cycle continues with the next item.
func (s *Scheduler) processItems(ctx context.Context, self social.Identity, items []social.Mention) {
	for i, mention := range items {
		if ctx.Err() != nil {
			s.logger.Info().
				Int("remaining", len(items)-i).
				Msg("Shutdown requested, leaving remaining mentions for next start")
			return
		}

		if s.shouldSkip(self, mention) {
			mentionsProcessedTotal.WithLabelValues(string(social.OutcomeSkipped)).Inc()
			s.recordOutcome(ctx, mention, social.OutcomeSkipped, nil)
			s.advanceCursor(ctx, mention.ID)
			continue
		}

		outcome := social.OutcomeHandled
		handleErr := s.handle(ctx, mention)
		if handleErr != nil {
			outcome = social.OutcomeFailed
			s.logger.Error().Err(handleErr).
				Str("mention_id", mention.ID).
				Str("author", mention.AuthorHandle).
				Msg("Mention handler failed")
		}

		mentionsProcessedTotal.WithLabelValues(string(outcome)).Inc()
		s.recordOutcome(ctx, mention, outcome, handleErr)

		// At-least-once, partial-progress policy: the cursor moves past
		// the item whether handling succeeded or failed.
		s.advanceCursor(ctx, mention.ID)

		if i < len(items)-1 {
			s.pace(ctx)
		}
	}
}

// handle invokes the content handler, converting any panic into an error so
// a misbehaving collaborator cannot kill the loop.
func (s *Scheduler) handle(ctx context.Context, mention social.Mention) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler.Handle(ctx, mention)
}

// shouldSkip filters self-authored mentions and mentions of the bot's own
// posts, which would otherwise produce reply loops.
func (s *Scheduler) shouldSkip(self social.Identity, mention social.Mention) bool {
	if mention.AuthorID == self.ID {
		s.logger.Debug().Str("mention_id", mention.ID).Msg("Skipping self-authored mention")
		return true
	}
	if mention.InReplyToUserID != "" && mention.InReplyToUserID == self.ID {
		s.logger.Debug().Str("mention_id", mention.ID).Msg("Skipping mention of own post")
		return true
	}
	return false
}

// advanceCursor persists the last processed mention ID. A failed save is
// logged and tolerated; the worst case is reprocessing one item next cycle.
func (s *Scheduler) advanceCursor(ctx context.Context, id string) {
	if err := s.store.SaveCursor(ctx, id); err != nil {
		s.logger.Warn().Err(err).Str("mention_id", id).Msg("Failed to save poll cursor")
	}
}

// recordOutcome persists the handling outcome, best-effort.
func (s *Scheduler) recordOutcome(ctx context.Context, mention social.Mention, outcome social.MentionOutcome, handleErr error) {
	if err := s.store.RecordMentionOutcome(ctx, mention, outcome, handleErr); err != nil {
		s.logger.Warn().Err(err).
			Str("mention_id", mention.ID).
			Msg("Failed to record mention outcome")
	}
}

// pace waits the configured inter-item delay, cut short by shutdown.
func (s *Scheduler) pace(ctx context.Context) {
	if s.config.ItemPacing <= 0 {
		return
	}
	timer := time.NewTimer(s.config.ItemPacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// nextAfterSuccess resets the stretched interval back to the default.
func (s *Scheduler) nextAfterSuccess() time.Duration {
	s.interval = s.config.Interval
	return s.interval
}

// nextAfterError folds a cycle failure into the next delay. A throttle
// carrying a concrete reset time yields exactly the remaining wait; a
// throttle without one doubles the current interval up to the cap; any
// other failure keeps the default interval.
func (s *Scheduler) nextAfterError(err error) time.Duration {
	if resetAt, ok := throttleReset(err); ok {
		if !resetAt.IsZero() {
			wait := time.Until(resetAt)
			if wait < 0 {
				wait = 0
			}
			s.interval = s.config.Interval
			return wait
		}

		s.interval *= 2
		if s.interval > s.config.MaxInterval {
			s.interval = s.config.MaxInterval
		}
		return s.interval
	}

	s.interval = s.config.Interval
	return s.interval
}

// throttleReset reports whether err is a throttle and extracts its reset
// time (zero when the provider supplied none).
func throttleReset(err error) (time.Time, bool) {
	var exhausted *retry.RateLimitExceededError
	if errors.As(err, &exhausted) {
		return exhausted.ResetAt, true
	}
	if throttle, ok := social.IsRateLimited(err); ok {
		return throttle.ResetAt, true
	}
	return time.Time{}, false
}
