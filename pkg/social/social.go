// Package social defines the domain types, error taxonomy, and collaborator
// interfaces for the chirpd orchestration core. The core itself never talks
// to the network directly; it drives an API implementation through the
// contracts defined here.
package social

import (
	"context"
	"time"
)

// Category identifies a class of remote calls sharing one rate-limit bucket.
// Categories are fixed at compile time; the orchestrator serializes calls
// per category.
type Category string

const (
	// CategoryTweet covers new post creation.
	CategoryTweet Category = "tweet"

	// CategoryReply covers replies to existing posts.
	CategoryReply Category = "reply"

	// CategoryMentions covers the mention timeline endpoint.
	CategoryMentions Category = "mentions"

	// CategoryMedia covers media upload endpoints.
	CategoryMedia Category = "media"

	// CategoryUserLookup covers user/identity lookup endpoints.
	CategoryUserLookup Category = "user-lookup"
)

// Categories lists all known endpoint categories.
func Categories() []Category {
	return []Category{
		CategoryTweet,
		CategoryReply,
		CategoryMentions,
		CategoryMedia,
		CategoryUserLookup,
	}
}

// RateLimit carries rate-limit metadata reported by the provider on a
// response. A zero ResetAt means the provider sent no reset timestamp.
type RateLimit struct {
	// Limit is the total request budget of the current window.
	Limit int

	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAt is when the current window resets.
	ResetAt time.Time
}

// Identity is the authenticated bot account.
type Identity struct {
	ID     string
	Handle string
}

// PostResult is the provider's answer to a successful post or reply.
type PostResult struct {
	// ID of the created post.
	ID string

	// RateLimit metadata from the response, nil if the provider sent none.
	RateLimit *RateLimit
}

// Mention is one item from the mention timeline.
type Mention struct {
	ID             string
	AuthorID       string
	AuthorHandle   string
	Text           string
	ConversationID string

	// InReplyToUserID is the author of the post this mention replies to.
	// Used to skip mentions of the bot's own posts (reply-loop guard).
	InReplyToUserID string

	CreatedAt time.Time
}

// MentionPage is one page of the mention timeline.
type MentionPage struct {
	Items []Mention

	// NextCursor is the pagination token for the following page, empty on
	// the last page.
	NextCursor string

	// RateLimit metadata from the response, nil if the provider sent none.
	RateLimit *RateLimit
}

// MentionOutcome records how a single mention was handled.
type MentionOutcome string

const (
	// OutcomeHandled means the handler completed without error.
	OutcomeHandled MentionOutcome = "handled"

	// OutcomeFailed means the handler returned an error; the failure was
	// logged and the poll cycle continued.
	OutcomeFailed MentionOutcome = "failed"

	// OutcomeSkipped means the item was self-authored or referenced the
	// bot's own content and was not handled.
	OutcomeSkipped MentionOutcome = "skipped"
)

// API is the remote social API collaborator. All calls are assumed
// idempotent enough that a retry after an ambiguous failure is acceptable
// (at-least-once semantics).
//
// Implementations return *RateLimitedError on throttling and
// *PermanentError on auth/validation failures; anything else is treated as
// a transient network error.
type API interface {
	// CreatePost publishes a new post and returns its ID.
	CreatePost(ctx context.Context, text string) (*PostResult, error)

	// CreateReply publishes a reply to the given post.
	CreateReply(ctx context.Context, text, inReplyToID string) (*PostResult, error)

	// ListMentions returns mentions newer than sinceID, oldest first.
	// An empty sinceID returns the most recent page.
	ListMentions(ctx context.Context, sinceID string) (*MentionPage, error)

	// GetIdentity returns the authenticated account.
	GetIdentity(ctx context.Context) (*Identity, error)
}

// RateLimitObservation is a persisted snapshot of observed rate-limit state
// for one category.
type RateLimitObservation struct {
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	ObservedAt time.Time `json:"observed_at"`
}

// Store is the persistence collaborator. Cursor operations sit on the
// polling critical path; observation and outcome recording are best-effort.
type Store interface {
	// LoadCursor returns the last fully-processed mention ID, empty if
	// none has been saved yet.
	LoadCursor(ctx context.Context) (string, error)

	// SaveCursor persists the last fully-processed mention ID.
	SaveCursor(ctx context.Context, id string) error

	// RecordRateLimitObservation persists an observed rate-limit snapshot.
	RecordRateLimitObservation(ctx context.Context, category Category, obs RateLimitObservation) error

	// RecordMentionOutcome persists the handling outcome for one mention.
	RecordMentionOutcome(ctx context.Context, mention Mention, outcome MentionOutcome, handleErr error) error
}

// Handler is the content collaborator invoked once per non-skipped mention.
// One complete handling typically fetches context, produces content, posts
// a reply, and persists its own records. Errors are caught and logged by
// the poll scheduler; they never abort the cycle.
type Handler interface {
	Handle(ctx context.Context, mention Mention) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, mention Mention) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, mention Mention) error {
	return f(ctx, mention)
}
