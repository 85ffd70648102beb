package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockServer is a configurable mock social API server for testing the REST
// client against real HTTP semantics.
type MockServer struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
}

// NewMockServer creates a new mock API server.
func NewMockServer() *MockServer {
	mock := &MockServer{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific path.
func (m *MockServer) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockServer) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// defaultHandler answers unconfigured paths with an empty success.
func (m *MockServer) defaultHandler(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{}`))
}

// RateLimitHeaders builds x-rate-limit headers for a window.
func RateLimitHeaders(limit, remaining int, resetAt time.Time) map[string]string {
	return map[string]string{
		"x-rate-limit-limit":     fmt.Sprintf("%d", limit),
		"x-rate-limit-remaining": fmt.Sprintf("%d", remaining),
		"x-rate-limit-reset":     fmt.Sprintf("%d", resetAt.Unix()),
		"Content-Type":           "application/json; charset=utf-8",
	}
}

// NewPostCreatedResponse creates a 201 response for a created post.
func NewPostCreatedResponse(id string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusCreated,
		Body:       fmt.Sprintf(`{"data": {"id": %q, "text": "ok"}}`, id),
		Headers:    RateLimitHeaders(200, 199, time.Now().Add(15*time.Minute)),
	}
}

// NewIdentityResponse creates a 200 response for /2/users/me.
func NewIdentityResponse(id, handle string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"data": {"id": %q, "username": %q}}`, id, handle),
		Headers:    RateLimitHeaders(75, 74, time.Now().Add(15*time.Minute)),
	}
}

// NewThrottledResponse creates a 429 with machine-readable reset headers.
func NewThrottledResponse(resetAt time.Time) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"title": "Too Many Requests"}`,
		Headers:    RateLimitHeaders(200, 0, resetAt),
	}
}

// NewBareThrottledResponse creates a 429 without any reset metadata.
func NewBareThrottledResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"title": "Too Many Requests"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewForbiddenResponse creates a 403 permanent error response.
func NewForbiddenResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"title": "Forbidden", "detail": "suspended"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 transient error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"title": "Internal Server Error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}
