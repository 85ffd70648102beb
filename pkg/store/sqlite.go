package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chirpwire/chirpd/pkg/social"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements social.Store on a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS poll_cursor (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create poll_cursor table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rate_limit_observations (
			category TEXT PRIMARY KEY,
			request_limit INTEGER NOT NULL,
			remaining INTEGER NOT NULL,
			reset_at INTEGER NOT NULL,
			observed_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create rate_limit_observations table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS mention_outcomes (
			mention_id TEXT PRIMARY KEY,
			author_id TEXT NOT NULL,
			author_handle TEXT NOT NULL,
			text TEXT NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			recorded_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create mention_outcomes table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_mention_outcomes_recorded_at
		ON mention_outcomes(recorded_at)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create mention_outcomes index: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: log.With().Str("component", "sqlite-store").Logger(),
	}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadCursor returns the persisted poll cursor, empty if none exists.
func (s *SQLiteStore) LoadCursor(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM poll_cursor WHERE id = 1`).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query cursor: %w", err)
	}
	return value, nil
}

// SaveCursor persists the poll cursor.
func (s *SQLiteStore) SaveCursor(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO poll_cursor (id, value, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, id, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// RecordRateLimitObservation stores the latest observation per category.
func (s *SQLiteStore) RecordRateLimitObservation(ctx context.Context, category social.Category, obs social.RateLimitObservation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_limit_observations (category, request_limit, remaining, reset_at, observed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(category) DO UPDATE SET
			request_limit = excluded.request_limit,
			remaining = excluded.remaining,
			reset_at = excluded.reset_at,
			observed_at = excluded.observed_at
	`, string(category), obs.Limit, obs.Remaining, obs.ResetAt.Unix(), obs.ObservedAt.Unix())
	if err != nil {
		return fmt.Errorf("record observation: %w", err)
	}
	return nil
}

// LastRateLimitObservation returns the stored observation for a category,
// false if none was recorded.
func (s *SQLiteStore) LastRateLimitObservation(ctx context.Context, category social.Category) (social.RateLimitObservation, bool, error) {
	var obs social.RateLimitObservation
	var resetAt, observedAt int64

	err := s.db.QueryRowContext(ctx, `
		SELECT request_limit, remaining, reset_at, observed_at
		FROM rate_limit_observations WHERE category = ?
	`, string(category)).Scan(&obs.Limit, &obs.Remaining, &resetAt, &observedAt)
	if err == sql.ErrNoRows {
		return social.RateLimitObservation{}, false, nil
	}
	if err != nil {
		return social.RateLimitObservation{}, false, fmt.Errorf("query observation: %w", err)
	}

	obs.ResetAt = time.Unix(resetAt, 0)
	obs.ObservedAt = time.Unix(observedAt, 0)
	return obs, true, nil
}

// RecordMentionOutcome stores the handling outcome for one mention.
func (s *SQLiteStore) RecordMentionOutcome(ctx context.Context, mention social.Mention, outcome social.MentionOutcome, handleErr error) error {
	errText := ""
	if handleErr != nil {
		errText = handleErr.Error()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mention_outcomes
			(mention_id, author_id, author_handle, text, outcome, error, created_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mention_id) DO UPDATE SET
			outcome = excluded.outcome,
			error = excluded.error,
			recorded_at = excluded.recorded_at
	`, mention.ID, mention.AuthorID, mention.AuthorHandle, mention.Text,
		string(outcome), errText, mention.CreatedAt.Unix(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record mention outcome: %w", err)
	}
	return nil
}

// MentionOutcome returns the recorded outcome for a mention ID, false if
// none was recorded.
func (s *SQLiteStore) MentionOutcome(ctx context.Context, mentionID string) (social.MentionOutcome, bool, error) {
	var outcome string
	err := s.db.QueryRowContext(ctx,
		`SELECT outcome FROM mention_outcomes WHERE mention_id = ?`, mentionID).Scan(&outcome)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query mention outcome: %w", err)
	}
	return social.MentionOutcome(outcome), true, nil
}
