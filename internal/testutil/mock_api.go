// Package testutil provides testing utilities for the chirpd orchestration
// core: a scriptable in-process API mock, an in-memory store, a collecting
// handler, and an httptest-based mock REST server.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/chirpwire/chirpd/pkg/social"
)

// MockAPI is a scriptable in-process implementation of social.API. Each
// method uses its Fn override when set and a benign default otherwise.
// All counters are guarded by the internal mutex.
type MockAPI struct {
	mu sync.Mutex

	PostFn     func(ctx context.Context, text string) (*social.PostResult, error)
	ReplyFn    func(ctx context.Context, text, inReplyToID string) (*social.PostResult, error)
	MentionsFn func(ctx context.Context, sinceID string) (*social.MentionPage, error)
	IdentityFn func(ctx context.Context) (*social.Identity, error)

	postCalls     int
	replyCalls    int
	mentionCalls  int
	identityCalls int
	lastSinceID   string
}

// NewMockAPI creates a mock with default benign behavior.
func NewMockAPI() *MockAPI {
	return &MockAPI{}
}

// CreatePost implements social.API.
func (m *MockAPI) CreatePost(ctx context.Context, text string) (*social.PostResult, error) {
	m.mu.Lock()
	m.postCalls++
	n := m.postCalls
	m.mu.Unlock()

	if m.PostFn != nil {
		return m.PostFn(ctx, text)
	}
	return &social.PostResult{ID: fmt.Sprintf("post-%d", n)}, nil
}

// CreateReply implements social.API.
func (m *MockAPI) CreateReply(ctx context.Context, text, inReplyToID string) (*social.PostResult, error) {
	m.mu.Lock()
	m.replyCalls++
	n := m.replyCalls
	m.mu.Unlock()

	if m.ReplyFn != nil {
		return m.ReplyFn(ctx, text, inReplyToID)
	}
	return &social.PostResult{ID: fmt.Sprintf("reply-%d", n)}, nil
}

// ListMentions implements social.API.
func (m *MockAPI) ListMentions(ctx context.Context, sinceID string) (*social.MentionPage, error) {
	m.mu.Lock()
	m.mentionCalls++
	m.lastSinceID = sinceID
	m.mu.Unlock()

	if m.MentionsFn != nil {
		return m.MentionsFn(ctx, sinceID)
	}
	return &social.MentionPage{}, nil
}

// GetIdentity implements social.API.
func (m *MockAPI) GetIdentity(ctx context.Context) (*social.Identity, error) {
	m.mu.Lock()
	m.identityCalls++
	m.mu.Unlock()

	if m.IdentityFn != nil {
		return m.IdentityFn(ctx)
	}
	return &social.Identity{ID: "bot-1", Handle: "chirpd"}, nil
}

// PostCalls returns the number of CreatePost invocations.
func (m *MockAPI) PostCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.postCalls
}

// ReplyCalls returns the number of CreateReply invocations.
func (m *MockAPI) ReplyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replyCalls
}

// MentionCalls returns the number of ListMentions invocations.
func (m *MockAPI) MentionCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mentionCalls
}

// IdentityCalls returns the number of GetIdentity invocations.
func (m *MockAPI) IdentityCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identityCalls
}

// LastSinceID returns the sinceID of the most recent ListMentions call.
func (m *MockAPI) LastSinceID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSinceID
}

// OutcomeRecord is one recorded mention outcome.
type OutcomeRecord struct {
	Mention social.Mention
	Outcome social.MentionOutcome
	Err     error
}

// MemoryStore is an in-memory implementation of social.Store.
type MemoryStore struct {
	mu           sync.Mutex
	cursor       string
	cursorSaves  []string
	observations map[social.Category]social.RateLimitObservation
	outcomes     map[string]OutcomeRecord

	// FailSaveCursor, when set, is returned by every SaveCursor call.
	FailSaveCursor error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		observations: make(map[social.Category]social.RateLimitObservation),
		outcomes:     make(map[string]OutcomeRecord),
	}
}

// LoadCursor implements social.Store.
func (s *MemoryStore) LoadCursor(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

// SaveCursor implements social.Store.
func (s *MemoryStore) SaveCursor(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSaveCursor != nil {
		return s.FailSaveCursor
	}
	s.cursor = id
	s.cursorSaves = append(s.cursorSaves, id)
	return nil
}

// RecordRateLimitObservation implements social.Store.
func (s *MemoryStore) RecordRateLimitObservation(ctx context.Context, category social.Category, obs social.RateLimitObservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations[category] = obs
	return nil
}

// RecordMentionOutcome implements social.Store.
func (s *MemoryStore) RecordMentionOutcome(ctx context.Context, mention social.Mention, outcome social.MentionOutcome, handleErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[mention.ID] = OutcomeRecord{Mention: mention, Outcome: outcome, Err: handleErr}
	return nil
}

// Cursor returns the current cursor value.
func (s *MemoryStore) Cursor() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// CursorSaves returns every cursor value saved, in order.
func (s *MemoryStore) CursorSaves() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cursorSaves...)
}

// Outcome returns the recorded outcome for a mention ID.
func (s *MemoryStore) Outcome(mentionID string) (OutcomeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.outcomes[mentionID]
	return rec, ok
}

// Observation returns the recorded observation for a category.
func (s *MemoryStore) Observation(category social.Category) (social.RateLimitObservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs, ok := s.observations[category]
	return obs, ok
}

// CollectingHandler records handled mentions and fails on request.
type CollectingHandler struct {
	mu      sync.Mutex
	handled []social.Mention

	// FailIDs maps mention IDs to the error Handle returns for them.
	FailIDs map[string]error

	// PanicIDs lists mention IDs whose handling panics.
	PanicIDs map[string]bool
}

// NewCollectingHandler creates an empty collecting handler.
func NewCollectingHandler() *CollectingHandler {
	return &CollectingHandler{
		FailIDs:  make(map[string]error),
		PanicIDs: make(map[string]bool),
	}
}

// Handle implements social.Handler.
func (h *CollectingHandler) Handle(ctx context.Context, mention social.Mention) error {
	if h.PanicIDs[mention.ID] {
		panic("handler exploded on " + mention.ID)
	}
	if err, ok := h.FailIDs[mention.ID]; ok {
		return err
	}

	h.mu.Lock()
	h.handled = append(h.handled, mention)
	h.mu.Unlock()
	return nil
}

// Handled returns the mentions handled so far, in order.
func (h *CollectingHandler) Handled() []social.Mention {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]social.Mention(nil), h.handled...)
}
