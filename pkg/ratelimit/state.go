// Package ratelimit tracks observed per-category rate-limit state for a
// remote social API. State is written only by the retry executor, from
// limit metadata on successful and throttled responses, and read to decide
// whether an attempt would be a guaranteed failure.
package ratelimit

import (
	"time"

	"github.com/chirpwire/chirpd/pkg/social"
)

// Snapshot is the last observed rate-limit state for one endpoint category.
// Snapshots are overwritten, never merged: every response carrying limit
// metadata replaces the previous observation wholesale.
type Snapshot struct {
	// Limit is the total request budget of the window.
	Limit int

	// Remaining is the number of requests left in the window.
	Remaining int

	// ResetAt is when the window resets.
	ResetAt time.Time

	// ObservedAt is when this snapshot was taken.
	ObservedAt time.Time
}

// FromRateLimit builds a snapshot from provider metadata observed now.
func FromRateLimit(rl social.RateLimit, now time.Time) Snapshot {
	return Snapshot{
		Limit:      rl.Limit,
		Remaining:  rl.Remaining,
		ResetAt:    rl.ResetAt,
		ObservedAt: now,
	}
}

// Exhausted reports whether the snapshot shows a spent window whose reset
// is still in the future. A passed reset means the state is unknown, not
// exhausted; the next check must not assume anything.
func (s Snapshot) Exhausted(now time.Time) bool {
	return s.Remaining == 0 && s.ResetAt.After(now)
}

// TimeUntilReset returns the duration until the window resets, 0 if the
// reset has already passed.
func (s Snapshot) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
