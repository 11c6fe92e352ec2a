// Package testutil provides a mock CRM API server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockClose is a configurable mock CRM API server.
type MockClose struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc
	apiKey   string

	// Tracking
	requestCount int
	pathCounts   map[string]int
	lastHeader   http.Header
	lastBody     []byte
	skips        map[string][]int
}

// NewMockClose creates and starts a mock server.
func NewMockClose() *MockClose {
	mock := &MockClose{
		handlers:   make(map[string]http.HandlerFunc),
		pathCounts: make(map[string]int),
		skips:      make(map[string][]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastHeader = r.Header.Clone()
		mock.lastBody = body
		apiKey := mock.apiKey
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if apiKey != "" {
			if user, _, ok := r.BasicAuth(); !ok || user != apiKey {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Invalid API key"})
				return
			}
		}

		if exists {
			handler(w, r)
			return
		}

		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Not found"})
	}))

	return mock
}

// URL returns the mock server URL, usable as the client base URL.
func (m *MockClose) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockClose) Close() {
	m.server.Close()
}

// RequireAPIKey makes every request without this basic-auth user fail with 401.
func (m *MockClose) RequireAPIKey(apiKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKey = apiKey
}

// Reset clears all tracking counters.
func (m *MockClose) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pathCounts = make(map[string]int)
	m.lastHeader = nil
	m.lastBody = nil
	m.skips = make(map[string][]int)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockClose) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockClose) SetResponse(path string, resp MockResponse) {
	m.SetSequence(path, resp)
}

// SetSequence answers successive requests to path with responses in order.
// The last response repeats once the sequence is used up.
func (m *MockClose) SetSequence(path string, responses ...MockResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[min(next, len(responses)-1)]
		next++
		mu.Unlock()

		writeResponse(w, resp)
	})
}

// SetCollection serves items from path as a paginated search honouring
// _skip and _limit.
func (m *MockClose) SetCollection(path string, items []any) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("_skip"))
		limit, err := strconv.Atoi(r.URL.Query().Get("_limit"))
		if err != nil || limit <= 0 {
			limit = 100
		}

		m.mu.Lock()
		m.skips[path] = append(m.skips[path], skip)
		m.mu.Unlock()

		start := min(skip, len(items))
		end := min(skip+limit, len(items))
		writeJSON(w, http.StatusOK, map[string]any{
			"data":          items[start:end],
			"has_more":      end < len(items),
			"total_results": len(items),
		})
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockClose) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PathCount returns the number of requests made to path.
func (m *MockClose) PathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[path]
}

// LastHeader returns the headers of the most recent request.
func (m *MockClose) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// LastBody returns the body of the most recent request.
func (m *MockClose) LastBody() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastBody
}

// Skips returns the _skip values requested from a collection, in order.
func (m *MockClose) Skips(path string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int(nil), m.skips[path]...)
}

// NewJSONResponse creates a response with a JSON body.
func NewJSONResponse(status int, body string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewRateLimitResponse creates a 429 response carrying header: value.
// An empty header yields a 429 without timing hints.
func NewRateLimitResponse(header, value string) MockResponse {
	resp := NewJSONResponse(http.StatusTooManyRequests, `{"error": "Rate limit exceeded"}`)
	if header != "" {
		resp.Headers[header] = value
	}
	return resp
}

// NewErrorResponse creates an error response with a JSON "error" message.
func NewErrorResponse(status int, message string) MockResponse {
	return NewJSONResponse(status, fmt.Sprintf(`{"error": %q}`, message))
}

// Items returns n objects with ids "<prefix>_0" to "<prefix>_<n-1>".
func Items(prefix string, n int) []any {
	items := make([]any, n)
	for i := range items {
		items[i] = map[string]any{"id": fmt.Sprintf("%s_%d", prefix, i)}
	}
	return items
}

func writeResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		// rate_reset is not a canonical header name.
		w.Header()[key] = []string{value}
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
