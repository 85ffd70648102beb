// Package quota enforces calendar-aligned usage budgets before any network
// attempt is made. Daily post budgets are split into independent new-post
// and reply caps; reads are gated by a separate monthly cap. Windows reset
// lazily on first access after a UTC calendar boundary, not on a timer.
package quota

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chirpwire/chirpd/pkg/social"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for quota tracking.
var (
	quotaUsed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chirpd_quota_used",
		Help: "Current usage count by activity kind",
	}, []string{"kind"})

	quotaRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirpd_quota_rejections_total",
		Help: "Total reservations rejected by activity kind",
	}, []string{"kind"})
)

// Kind is the activity type a quota reservation is charged against.
type Kind string

const (
	// KindPost is a new standalone post (daily window, post ratio cap).
	KindPost Kind = "post"

	// KindReply is a reply to an existing post (daily window, reply ratio cap).
	KindReply Kind = "reply"

	// KindRead is a read-type operation such as a mention fetch (monthly window).
	KindRead Kind = "read"
)

// Config holds the quota tracker configuration.
type Config struct {
	// DailyPostBudget is the absolute daily cap across posts and replies.
	DailyPostBudget int

	// PostRatio caps new posts at floor(DailyPostBudget * PostRatio).
	PostRatio float64

	// ReplyRatio caps replies at floor(DailyPostBudget * ReplyRatio).
	// The ratios are independent caps, not a partition; they need not sum
	// to 1.
	ReplyRatio float64

	// MonthlyReadBudget caps read-type operations per calendar month.
	MonthlyReadBudget int

	// Now returns the current time; defaults to time.Now. Calendar
	// boundaries are evaluated in UTC.
	Now func() time.Time
}

// DefaultConfig returns the default quota configuration.
func DefaultConfig() Config {
	return Config{
		DailyPostBudget:   17,
		PostRatio:         0.2,
		ReplyRatio:        0.8,
		MonthlyReadBudget: 100,
	}
}

// Tracker gates operations against daily and monthly budgets. It is safe
// for concurrent use; it is the sole owner of the quota counters.
type Tracker struct {
	mu  sync.Mutex
	cfg Config

	// Daily window: day-of-month detects boundary crossing.
	day          int
	dailyPosts   int
	dailyReplies int

	// Monthly window.
	month        time.Month
	monthlyReads int

	logger zerolog.Logger
}

// NewTracker creates a quota tracker.
func NewTracker(cfg Config) (*Tracker, error) {
	if cfg.DailyPostBudget <= 0 {
		return nil, fmt.Errorf("daily post budget must be positive (got %d)", cfg.DailyPostBudget)
	}
	if cfg.PostRatio < 0 || cfg.PostRatio > 1 {
		return nil, fmt.Errorf("post ratio must be in [0, 1] (got %v)", cfg.PostRatio)
	}
	if cfg.ReplyRatio < 0 || cfg.ReplyRatio > 1 {
		return nil, fmt.Errorf("reply ratio must be in [0, 1] (got %v)", cfg.ReplyRatio)
	}
	if cfg.MonthlyReadBudget <= 0 {
		return nil, fmt.Errorf("monthly read budget must be positive (got %d)", cfg.MonthlyReadBudget)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	now := cfg.Now().UTC()
	return &Tracker{
		cfg:    cfg,
		day:    now.Day(),
		month:  now.Month(),
		logger: log.With().Str("component", "quota").Logger(),
	}, nil
}

// PostCap returns the daily cap for new posts.
func (t *Tracker) PostCap() int {
	return int(math.Floor(float64(t.cfg.DailyPostBudget) * t.cfg.PostRatio))
}

// ReplyCap returns the daily cap for replies.
func (t *Tracker) ReplyCap() int {
	return int(math.Floor(float64(t.cfg.DailyPostBudget) * t.cfg.ReplyRatio))
}

// TryReserve checks whether an operation of the given kind is permitted
// right now. It returns *social.QuotaExceededError on rejection and has no
// side effects: a rejected reservation performs no network call and emits
// no retry.
func (t *Tracker) TryReserve(kind Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfBoundaryCrossed()

	var rejection *social.QuotaExceededError
	switch kind {
	case KindPost:
		switch {
		case t.dailyPosts+t.dailyReplies >= t.cfg.DailyPostBudget:
			rejection = &social.QuotaExceededError{
				Kind: string(kind), Window: "daily",
				Used: t.dailyPosts + t.dailyReplies, Limit: t.cfg.DailyPostBudget,
			}
		case t.dailyPosts >= t.PostCap():
			rejection = &social.QuotaExceededError{
				Kind: string(kind), Window: "daily",
				Used: t.dailyPosts, Limit: t.PostCap(),
			}
		}
	case KindReply:
		switch {
		case t.dailyPosts+t.dailyReplies >= t.cfg.DailyPostBudget:
			rejection = &social.QuotaExceededError{
				Kind: string(kind), Window: "daily",
				Used: t.dailyPosts + t.dailyReplies, Limit: t.cfg.DailyPostBudget,
			}
		case t.dailyReplies >= t.ReplyCap():
			rejection = &social.QuotaExceededError{
				Kind: string(kind), Window: "daily",
				Used: t.dailyReplies, Limit: t.ReplyCap(),
			}
		}
	case KindRead:
		if t.monthlyReads >= t.cfg.MonthlyReadBudget {
			rejection = &social.QuotaExceededError{
				Kind: string(kind), Window: "monthly",
				Used: t.monthlyReads, Limit: t.cfg.MonthlyReadBudget,
			}
		}
	default:
		return fmt.Errorf("unknown quota kind %q", kind)
	}

	if rejection != nil {
		quotaRejectionsTotal.WithLabelValues(string(kind)).Inc()
		t.logger.Warn().
			Str("kind", string(kind)).
			Str("window", rejection.Window).
			Int("used", rejection.Used).
			Int("limit", rejection.Limit).
			Msg("Quota reservation rejected")
		return rejection
	}

	return nil
}

// RecordUsed charges one completed operation against its window.
func (t *Tracker) RecordUsed(kind Kind) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfBoundaryCrossed()

	switch kind {
	case KindPost:
		t.dailyPosts++
		quotaUsed.WithLabelValues(string(kind)).Set(float64(t.dailyPosts))
	case KindReply:
		t.dailyReplies++
		quotaUsed.WithLabelValues(string(kind)).Set(float64(t.dailyReplies))
	case KindRead:
		t.monthlyReads++
		quotaUsed.WithLabelValues(string(kind)).Set(float64(t.monthlyReads))
	}
}

// Usage is a point-in-time view of the quota counters.
type Usage struct {
	DailyPosts   int `json:"daily_posts"`
	PostCap      int `json:"post_cap"`
	DailyReplies int `json:"daily_replies"`
	ReplyCap     int `json:"reply_cap"`
	DailyBudget  int `json:"daily_budget"`
	MonthlyReads int `json:"monthly_reads"`
	ReadBudget   int `json:"read_budget"`
}

// Usage returns the current counters, applying any pending lazy reset.
func (t *Tracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.resetIfBoundaryCrossed()

	return Usage{
		DailyPosts:   t.dailyPosts,
		PostCap:      t.PostCap(),
		DailyReplies: t.dailyReplies,
		ReplyCap:     t.ReplyCap(),
		DailyBudget:  t.cfg.DailyPostBudget,
		MonthlyReads: t.monthlyReads,
		ReadBudget:   t.cfg.MonthlyReadBudget,
	}
}

// resetIfBoundaryCrossed zeroes window counters when the UTC calendar unit
// has advanced since the last access. Callers must hold the mutex.
func (t *Tracker) resetIfBoundaryCrossed() {
	now := t.cfg.Now().UTC()

	if now.Day() != t.day {
		t.logger.Info().
			Int("previous_day", t.day).
			Int("day", now.Day()).
			Int("posts_used", t.dailyPosts).
			Int("replies_used", t.dailyReplies).
			Msg("Daily quota window reset")
		t.day = now.Day()
		t.dailyPosts = 0
		t.dailyReplies = 0
		quotaUsed.WithLabelValues(string(KindPost)).Set(0)
		quotaUsed.WithLabelValues(string(KindReply)).Set(0)
	}

	if now.Month() != t.month {
		t.logger.Info().
			Str("previous_month", t.month.String()).
			Str("month", now.Month().String()).
			Int("reads_used", t.monthlyReads).
			Msg("Monthly quota window reset")
		t.month = now.Month()
		t.monthlyReads = 0
		quotaUsed.WithLabelValues(string(KindRead)).Set(0)
	}
}
