package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Rate limit headers used by X-style v2 APIs.
const (
	headerRateLimitLimit     = "x-rate-limit-limit"
	headerRateLimitRemaining = "x-rate-limit-remaining"
	headerRateLimitReset     = "x-rate-limit-reset"
)

// RESTConfig holds the REST client configuration.
type RESTConfig struct {
	// BaseURL of the API, e.g. "https://api.x.com".
	BaseURL string

	// BearerToken for authentication. Token acquisition and refresh are
	// owned by the caller; the client only attaches the token it is given.
	BearerToken string

	// UserAgent header sent on every request.
	UserAgent string

	// Timeout per HTTP request.
	Timeout time.Duration
}

// DefaultRESTConfig returns a safe default configuration.
func DefaultRESTConfig(baseURL, bearerToken string) RESTConfig {
	return RESTConfig{
		BaseURL:     baseURL,
		BearerToken: bearerToken,
		UserAgent:   "chirpd/0.1.0",
		Timeout:     30 * time.Second,
	}
}

// RESTClient is a thin HTTP implementation of the API interface against an
// X-style v2 API. It carries no retry or rate-limit policy of its own; it
// reports throttles and limit metadata to the orchestration layer through
// the error taxonomy and the RateLimit fields on results.
type RESTClient struct {
	httpClient *http.Client
	config     RESTConfig
	logger     zerolog.Logger

	mu     sync.Mutex
	userID string // memoized from /2/users/me, needed for the mentions path
}

// NewRESTClient creates a new REST API client.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.BearerToken == "" {
		return nil, fmt.Errorf("bearer token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &RESTClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		logger:     log.With().Str("component", "rest-client").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *RESTClient) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// CreatePost publishes a new post.
func (c *RESTClient) CreatePost(ctx context.Context, text string) (*PostResult, error) {
	return c.createTweet(ctx, CategoryTweet, map[string]any{"text": text})
}

// CreateReply publishes a reply to the given post.
func (c *RESTClient) CreateReply(ctx context.Context, text, inReplyToID string) (*PostResult, error) {
	return c.createTweet(ctx, CategoryReply, map[string]any{
		"text":  text,
		"reply": map[string]any{"in_reply_to_tweet_id": inReplyToID},
	})
}

func (c *RESTClient) createTweet(ctx context.Context, category Category, body map[string]any) (*PostResult, error) {
	respBody, rl, err := c.do(ctx, category, http.MethodPost, "/2/tweets", nil, body)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode post response: %w", err)
	}

	return &PostResult{ID: parsed.Data.ID, RateLimit: rl}, nil
}

// ListMentions returns mentions newer than sinceID. The provider returns
// newest first; the page is reversed so callers see oldest first.
func (c *RESTClient) ListMentions(ctx context.Context, sinceID string) (*MentionPage, error) {
	userID, err := c.resolveUserID(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("tweet.fields", "author_id,conversation_id,created_at,in_reply_to_user_id")
	query.Set("expansions", "author_id")
	if sinceID != "" {
		query.Set("since_id", sinceID)
	}

	path := fmt.Sprintf("/2/users/%s/mentions", userID)
	respBody, rl, err := c.do(ctx, CategoryMentions, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			ID              string    `json:"id"`
			Text            string    `json:"text"`
			AuthorID        string    `json:"author_id"`
			ConversationID  string    `json:"conversation_id"`
			InReplyToUserID string    `json:"in_reply_to_user_id"`
			CreatedAt       time.Time `json:"created_at"`
		} `json:"data"`
		Includes struct {
			Users []struct {
				ID       string `json:"id"`
				Username string `json:"username"`
			} `json:"users"`
		} `json:"includes"`
		Meta struct {
			NextToken string `json:"next_token"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode mentions response: %w", err)
	}

	handles := make(map[string]string, len(parsed.Includes.Users))
	for _, u := range parsed.Includes.Users {
		handles[u.ID] = u.Username
	}

	page := &MentionPage{
		Items:      make([]Mention, 0, len(parsed.Data)),
		NextCursor: parsed.Meta.NextToken,
		RateLimit:  rl,
	}
	// Reverse to oldest-first.
	for i := len(parsed.Data) - 1; i >= 0; i-- {
		item := parsed.Data[i]
		page.Items = append(page.Items, Mention{
			ID:              item.ID,
			AuthorID:        item.AuthorID,
			AuthorHandle:    handles[item.AuthorID],
			Text:            item.Text,
			ConversationID:  item.ConversationID,
			InReplyToUserID: item.InReplyToUserID,
			CreatedAt:       item.CreatedAt,
		})
	}

	return page, nil
}

// GetIdentity returns the authenticated account.
func (c *RESTClient) GetIdentity(ctx context.Context) (*Identity, error) {
	respBody, _, err := c.do(ctx, CategoryUserLookup, http.MethodGet, "/2/users/me", nil, nil)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}

	c.mu.Lock()
	c.userID = parsed.Data.ID
	c.mu.Unlock()

	return &Identity{ID: parsed.Data.ID, Handle: parsed.Data.Username}, nil
}

// resolveUserID returns the memoized account ID, fetching it once if needed.
func (c *RESTClient) resolveUserID(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.userID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	identity, err := c.GetIdentity(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve user id: %w", err)
	}
	return identity.ID, nil
}

// do executes one HTTP request and maps the response onto the error
// taxonomy: 429 -> *RateLimitedError, permanent 4xx -> *PermanentError,
// everything else non-2xx -> plain (transient) error.
func (c *RESTClient) do(ctx context.Context, category Category, method, path string, query url.Values, body map[string]any) ([]byte, *RateLimit, error) {
	u := c.config.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read response body: %w", err)
	}

	rl := parseRateLimitHeaders(resp.Header)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		throttle := &RateLimitedError{Category: category}
		if rl != nil {
			throttle.Limit = rl.Limit
			throttle.Remaining = rl.Remaining
			throttle.ResetAt = rl.ResetAt
		}
		c.logger.Warn().
			Str("category", string(category)).
			Time("reset_at", throttle.ResetAt).
			Msg("Request throttled by provider")
		return nil, nil, throttle

	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, nil, &PermanentError{
			StatusCode: resp.StatusCode,
			Message:    truncateBody(respBody),
		}

	case resp.StatusCode >= 400:
		// Remaining 4xx and all 5xx are treated as transient.
		return nil, nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, truncateBody(respBody))
	}

	return respBody, rl, nil
}

// parseRateLimitHeaders extracts x-rate-limit-* headers, nil when absent.
func parseRateLimitHeaders(headers http.Header) *RateLimit {
	remainStr := headers.Get(headerRateLimitRemaining)
	resetStr := headers.Get(headerRateLimitReset)
	if remainStr == "" || resetStr == "" {
		return nil
	}

	remaining, err := strconv.Atoi(remainStr)
	if err != nil {
		return nil
	}
	resetEpoch, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil
	}

	limit, _ := strconv.Atoi(headers.Get(headerRateLimitLimit))

	return &RateLimit{
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.Unix(resetEpoch, 0),
	}
}

func truncateBody(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
