// Package client is the orchestration facade of chirpd. Every outbound
// operation flows through the same path: quota gate, per-category FIFO
// lane, rate-limit aware retry, then the remote API collaborator.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/chirpwire/chirpd/pkg/identity"
	"github.com/chirpwire/chirpd/pkg/quota"
	"github.com/chirpwire/chirpd/pkg/queue"
	"github.com/chirpwire/chirpd/pkg/ratelimit"
	"github.com/chirpwire/chirpd/pkg/retry"
	"github.com/chirpwire/chirpd/pkg/social"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for orchestrated operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chirpd_requests_total",
		Help: "Total orchestrated operations by category and outcome",
	}, []string{"category", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chirpd_request_duration_seconds",
		Help:    "End-to-end operation duration by category, queue and retry waits included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 60, 300},
	}, []string{"category"})
)

// Config holds the client configuration.
type Config struct {
	// API is the remote social API collaborator (required).
	API social.API

	// Store is the persistence collaborator. Optional; when set it
	// receives best-effort rate-limit observations.
	Store social.Store

	// Quota is the usage budget configuration.
	Quota quota.Config

	// Retry is the retry executor configuration.
	Retry retry.Config

	// IdentityTTL is how long the bot's own identity stays cached.
	IdentityTTL time.Duration
}

// DefaultConfig returns a safe default configuration around an API.
func DefaultConfig(api social.API) Config {
	return Config{
		API:         api,
		Quota:       quota.DefaultConfig(),
		Retry:       retry.DefaultConfig(),
		IdentityTTL: identity.DefaultTTL,
	}
}

// Client orchestrates posting, replying, and mention fetching against a
// rate-limited social API.
type Client struct {
	api      social.API
	quota    *quota.Tracker
	limits   *ratelimit.Store
	lanes    *queue.Lanes
	retry    *retry.Executor
	identity *identity.Cache
	logger   zerolog.Logger
}

// New creates a new orchestration client.
func New(cfg Config) (*Client, error) {
	if cfg.API == nil {
		return nil, fmt.Errorf("api collaborator is required")
	}

	quotaTracker, err := quota.NewTracker(cfg.Quota)
	if err != nil {
		return nil, fmt.Errorf("quota config: %w", err)
	}

	var recorder ratelimit.Recorder
	if cfg.Store != nil {
		recorder = cfg.Store
	}
	limits := ratelimit.NewStore(recorder)

	executor, err := retry.NewExecutor(limits, cfg.Retry)
	if err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}

	c := &Client{
		api:    cfg.API,
		quota:  quotaTracker,
		limits: limits,
		lanes:  queue.NewLanes(),
		retry:  executor,
		logger: log.With().Str("component", "client").Logger(),
	}
	c.identity = identity.NewCache(c.fetchIdentity, cfg.IdentityTTL)

	return c, nil
}

// PostTweet publishes a new standalone post. The post is charged against
// the daily post sub-cap; a rejected reservation never reaches the network.
func (c *Client) PostTweet(ctx context.Context, text string) (*social.PostResult, error) {
	value, err := c.do(ctx, social.CategoryTweet, quota.KindPost,
		func(ctx context.Context) (any, *social.RateLimit, error) {
			res, err := c.api.CreatePost(ctx, text)
			if err != nil {
				return nil, nil, err
			}
			return res, res.RateLimit, nil
		})
	if err != nil {
		return nil, err
	}
	return value.(*social.PostResult), nil
}

// Reply publishes a reply to an existing post, charged against the daily
// reply sub-cap.
func (c *Client) Reply(ctx context.Context, text, inReplyToID string) (*social.PostResult, error) {
	value, err := c.do(ctx, social.CategoryReply, quota.KindReply,
		func(ctx context.Context) (any, *social.RateLimit, error) {
			res, err := c.api.CreateReply(ctx, text, inReplyToID)
			if err != nil {
				return nil, nil, err
			}
			return res, res.RateLimit, nil
		})
	if err != nil {
		return nil, err
	}
	return value.(*social.PostResult), nil
}

// FetchMentions lists mentions newer than sinceID, charged against the
// monthly read cap.
func (c *Client) FetchMentions(ctx context.Context, sinceID string) (*social.MentionPage, error) {
	value, err := c.do(ctx, social.CategoryMentions, quota.KindRead,
		func(ctx context.Context) (any, *social.RateLimit, error) {
			page, err := c.api.ListMentions(ctx, sinceID)
			if err != nil {
				return nil, nil, err
			}
			return page, page.RateLimit, nil
		})
	if err != nil {
		return nil, err
	}
	return value.(*social.MentionPage), nil
}

// Identity returns the bot's own account, served from the TTL cache.
func (c *Client) Identity(ctx context.Context) (social.Identity, error) {
	return c.identity.Get(ctx)
}

// Usage exposes the current quota counters.
func (c *Client) Usage() quota.Usage {
	return c.quota.Usage()
}

// fetchIdentity is the cache-miss path for the identity cache. Identity
// lookups ride their own category lane and are not charged against the
// monthly read cap; the TTL already bounds their rate.
func (c *Client) fetchIdentity(ctx context.Context) (*social.Identity, error) {
	value, err := c.do(ctx, social.CategoryUserLookup, "",
		func(ctx context.Context) (any, *social.RateLimit, error) {
			id, err := c.api.GetIdentity(ctx)
			return id, nil, err
		})
	if err != nil {
		return nil, err
	}
	return value.(*social.Identity), nil
}

// do runs one operation through the full orchestration path.
//
// Step 1: quota gate (local, no network on rejection).
// Step 2: category lane (single flight, submission order).
// Step 3: retry executor (rate-limit aware attempts).
// Step 4: charge quota only after success.
func (c *Client) do(ctx context.Context, category social.Category, kind quota.Kind, op retry.AttemptFunc) (any, error) {
	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(string(category)).Observe(time.Since(start).Seconds())
	}()

	if kind != "" {
		if err := c.quota.TryReserve(kind); err != nil {
			requestsTotal.WithLabelValues(string(category), "quota_rejected").Inc()
			return nil, err
		}
	}

	value, err := c.lanes.Do(ctx, category, func(ctx context.Context) (any, error) {
		return c.retry.Do(ctx, category, op)
	})
	if err != nil {
		requestsTotal.WithLabelValues(string(category), string(retry.Classify(err))).Inc()
		c.logger.Warn().Err(err).
			Str("category", string(category)).
			Msg("Operation failed")
		return nil, err
	}

	if kind != "" {
		c.quota.RecordUsed(kind)
	}
	requestsTotal.WithLabelValues(string(category), "ok").Inc()

	return value, nil
}
