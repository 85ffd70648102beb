// Package store provides persistence collaborators for the orchestration
// core: the poll cursor, best-effort rate-limit observations, and
// per-mention handling outcomes. Two backends are available, Redis for
// shared deployments and SQLite for single-binary ones.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chirpwire/chirpd/pkg/social"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Redis keys for persisted orchestration state.
const (
	RedisKeyCursor          = "chirpd:poll:cursor"
	RedisKeyRateLimitPrefix = "chirpd:rate_limit:" // + category
	RedisKeyMentionPrefix   = "chirpd:mention:"    // + mention ID
)

// mentionOutcomeTTL bounds how long outcome records are kept in Redis.
const mentionOutcomeTTL = 30 * 24 * time.Hour

// RedisStore implements social.Store on a Redis backend.
type RedisStore struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		logger: log.With().Str("component", "redis-store").Logger(),
	}
}

// LoadCursor returns the persisted poll cursor, empty if none exists.
func (s *RedisStore) LoadCursor(ctx context.Context) (string, error) {
	cursor, err := s.redis.Get(ctx, RedisKeyCursor).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get cursor: %w", err)
	}
	return cursor, nil
}

// SaveCursor persists the poll cursor.
func (s *RedisStore) SaveCursor(ctx context.Context, id string) error {
	if err := s.redis.Set(ctx, RedisKeyCursor, id, 0).Err(); err != nil {
		return fmt.Errorf("redis set cursor: %w", err)
	}
	return nil
}

// RecordRateLimitObservation stores the latest observation per category.
func (s *RedisStore) RecordRateLimitObservation(ctx context.Context, category social.Category, obs social.RateLimitObservation) error {
	data, err := json.Marshal(obs)
	if err != nil {
		return fmt.Errorf("marshal observation: %w", err)
	}

	key := RedisKeyRateLimitPrefix + string(category)
	if err := s.redis.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set observation: %w", err)
	}
	return nil
}

// LastRateLimitObservation returns the stored observation for a category,
// false if none was recorded.
func (s *RedisStore) LastRateLimitObservation(ctx context.Context, category social.Category) (social.RateLimitObservation, bool, error) {
	data, err := s.redis.Get(ctx, RedisKeyRateLimitPrefix+string(category)).Bytes()
	if err == redis.Nil {
		return social.RateLimitObservation{}, false, nil
	}
	if err != nil {
		return social.RateLimitObservation{}, false, fmt.Errorf("redis get observation: %w", err)
	}

	var obs social.RateLimitObservation
	if err := json.Unmarshal(data, &obs); err != nil {
		return social.RateLimitObservation{}, false, fmt.Errorf("unmarshal observation: %w", err)
	}
	return obs, true, nil
}

// mentionRecord is the persisted shape of a handled mention.
type mentionRecord struct {
	MentionID    string    `json:"mention_id"`
	AuthorID     string    `json:"author_id"`
	AuthorHandle string    `json:"author_handle"`
	Text         string    `json:"text"`
	Outcome      string    `json:"outcome"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// RecordMentionOutcome stores the handling outcome for one mention with a
// bounded retention.
func (s *RedisStore) RecordMentionOutcome(ctx context.Context, mention social.Mention, outcome social.MentionOutcome, handleErr error) error {
	record := mentionRecord{
		MentionID:    mention.ID,
		AuthorID:     mention.AuthorID,
		AuthorHandle: mention.AuthorHandle,
		Text:         mention.Text,
		Outcome:      string(outcome),
		CreatedAt:    mention.CreatedAt,
		RecordedAt:   time.Now(),
	}
	if handleErr != nil {
		record.Error = handleErr.Error()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal mention record: %w", err)
	}

	key := RedisKeyMentionPrefix + mention.ID
	if err := s.redis.Set(ctx, key, data, mentionOutcomeTTL).Err(); err != nil {
		return fmt.Errorf("redis set mention record: %w", err)
	}
	return nil
}
