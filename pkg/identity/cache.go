// Package identity caches the bot's own account identity so that posting
// and polling paths do not pay a network round trip on every operation.
package identity

import (
	"context"
	"sync"
	"time"

	"github.com/chirpwire/chirpd/pkg/social"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTTL is how long a fetched identity stays fresh.
const DefaultTTL = 5 * time.Minute

// FetchFunc retrieves the authenticated identity from the API. The fetch
// is idempotent, so concurrent refreshes are harmless; no de-duplication
// is attempted.
type FetchFunc func(ctx context.Context) (*social.Identity, error)

// Cache is a TTL-based cache of the bot's own identity.
type Cache struct {
	fetch  FetchFunc
	ttl    time.Duration
	logger zerolog.Logger

	mu        sync.Mutex
	identity  social.Identity
	fetchedAt time.Time
}

// NewCache creates an identity cache. A non-positive ttl falls back to
// DefaultTTL.
func NewCache(fetch FetchFunc, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		fetch:  fetch,
		ttl:    ttl,
		logger: log.With().Str("component", "identity").Logger(),
	}
}

// Get returns the cached identity, refreshing it when stale. Concurrent
// callers during the refresh window may both trigger a fetch; the last
// write wins.
func (c *Cache) Get(ctx context.Context) (social.Identity, error) {
	c.mu.Lock()
	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		id := c.identity
		c.mu.Unlock()
		return id, nil
	}
	c.mu.Unlock()

	fetched, err := c.fetch(ctx)
	if err != nil {
		return social.Identity{}, err
	}

	c.mu.Lock()
	c.identity = *fetched
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	c.logger.Debug().
		Str("id", fetched.ID).
		Str("handle", fetched.Handle).
		Msg("Identity refreshed")

	return *fetched, nil
}

// Invalidate discards the cached identity, forcing a refresh on next Get.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
