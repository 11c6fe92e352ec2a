// Package client provides the CRM HTTP client with rate-limit aware retries,
// an optional reference-data cache, and typed errors.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/closecrm-client/pkg/cache"
	"github.com/Sternrassler/closecrm-client/pkg/logging"
	"github.com/Sternrassler/closecrm-client/pkg/query"
	"github.com/Sternrassler/closecrm-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
)

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "closecrm_requests_total",
		Help: "Total API requests by method and status",
	}, []string{"method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "closecrm_request_duration_seconds",
		Help:    "API request duration in seconds by method, retries included",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "closecrm_errors_total",
		Help: "Total API errors by class",
	}, []string{"class"})
)

// ErrorClass represents a classification of HTTP errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// classifyStatus categorizes a response status for metrics and logs.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.close.com/api/v1"

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "closecrm-client-go/1.0"

// Config holds the client configuration.
type Config struct {
	// APIKey authenticates every request (REQUIRED).
	APIKey string

	// BaseURL is the API root without trailing slash.
	BaseURL string

	// UserAgent header
	UserAgent string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// Retry
	MaxRetries int
	RetryDelay time.Duration

	// Redis is optional. When set, rate-limit pauses are shared through it
	// and, with CacheTTL > 0, reference data is cached in it.
	Redis *redis.Client

	// CacheTTL is how long cached reference responses stay valid.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	retry := DefaultRetryConfig()
	return Config{
		APIKey:     apiKey,
		BaseURL:    DefaultBaseURL,
		UserAgent:  DefaultUserAgent,
		Timeout:    30 * time.Second,
		MaxRetries: retry.MaxRetries,
		RetryDelay: retry.RetryDelay,
		CacheTTL:   10 * time.Minute,
	}
}

// Client is the main API client. It is safe for concurrent use.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	userAgent   string
	namespace   string
	retrier     *retrier
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	cacheTTL    time.Duration
	logger      zerolog.Logger

	Lead                 *LeadResource
	Contact              *Resource
	Activity             *ActivityResource
	Opportunity          *Resource
	Task                 *Resource
	CustomField          *CustomFieldResource
	CustomObjectType     *Resource
	CustomObject         *Resource
	User                 *UserResource
	Organization         *Resource
	Pipeline             *Resource
	Status               *StatusResource
	EmailTemplate        *Resource
	SavedSearch          *Resource
	SmartView            *Resource
	Sequence             *Resource
	SequenceSubscription *Resource
	Report               *ReportResource
	Event                *EventResource
	Webhook              *Resource
	EmailThread          *Resource
	ConnectedAccount     *Resource
	Bulk                 *BulkResource
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}

	defaults := DefaultConfig(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}

	logger := logging.NewLogger(logging.ComponentClient)
	namespace := namespaceFor(cfg.APIKey)

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		userAgent:   cfg.UserAgent,
		namespace:   namespace,
		retrier:     newRetrier(RetryConfig{MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay}, clockz.RealClock, logger),
		rateLimiter: ratelimit.NewTracker(cfg.Redis, namespace, logger),
		cacheTTL:    cfg.CacheTTL,
		logger:      logger,
	}
	if cfg.Redis != nil && cfg.CacheTTL > 0 {
		c.cache = cache.NewManager(cfg.Redis)
	}

	c.retrier.onRateLimit = func(ctx context.Context, delay time.Duration, source ratelimit.DelaySource) {
		if err := c.rateLimiter.RecordPause(ctx, delay, source); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record rate limit pause")
		}
	}

	c.initResources()
	return c, nil
}

// namespaceFor derives a stable, non-reversible namespace from the API key so
// that shared Redis state is scoped per account without storing the key.
func namespaceFor(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:4])
}

// Do performs a request with the shared rate-limit pause, the reference
// cache and retries. body, when non-nil, is sent as JSON. Non-2xx responses
// are returned as *HTTPError.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values, body any) (*Response, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	// Validate once so that a malformed URL is not mistaken for a network error.
	if _, err := c.newRequest(ctx, method, reqURL, payload); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Step 1: honour a pause opened by an earlier 429
	if err := c.rateLimiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn().Err(err).Msg("Rate limit state unavailable, continuing")
	}

	// Step 2: reference cache
	cacheKey, cacheable := c.cacheKey(method, path, params)
	if cacheable {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().Str("path", path).Msg("Cache hit")
			requestsTotal.WithLabelValues(method, "cached").Inc()
			return &Response{StatusCode: entry.StatusCode, Header: entry.Headers, Body: entry.Data}, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("path", path).Msg("Cache get error")
		}
	}

	// Step 3: execute with retries
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Msg("Executing request")

	httpResp, err := c.retrier.do(ctx, method, path, func(ctx context.Context) (*http.Response, error) {
		req, err := c.newRequest(ctx, method, reqURL, payload)
		if err != nil {
			return nil, err
		}
		return c.httpClient.Do(req)
	})
	if err != nil {
		var rateErr *RateLimitError
		switch {
		case errors.As(err, &rateErr):
			requestsTotal.WithLabelValues(method, strconv.Itoa(http.StatusTooManyRequests)).Inc()
		case ctx.Err() == nil:
			requestsTotal.WithLabelValues(method, "network_error").Inc()
		}
		return nil, err
	}

	data, err := io.ReadAll(httpResp.Body)
	httpResp.Body.Close()
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &TransportError{Method: method, Path: path, Attempts: 1, Err: fmt.Errorf("read response body: %w", err)}
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}
	requestsTotal.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	// Step 4: HTTP errors are not retried
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		httpErr := newHTTPError(method, path, resp)
		errorsTotal.WithLabelValues(string(httpErr.ErrorClass)).Inc()
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status_code", resp.StatusCode).
			Str("error_class", string(httpErr.ErrorClass)).
			Msg("Request error")
		return nil, httpErr
	}

	// Step 5: update cache
	if cacheable && resp.StatusCode == http.StatusOK {
		entry := cache.NewEntry(resp.StatusCode, resp.Header, resp.Body, c.cacheTTL)
		if err := c.cache.Set(ctx, cacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		} else {
			c.logger.Debug().
				Str("path", path).
				Dur("ttl", c.cacheTTL).
				Msg("Cached response")
		}
	}
	if c.cache != nil && method != http.MethodGet {
		c.invalidate(ctx, path)
	}

	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, method, reqURL string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}

	req.SetBasicAuth(c.apiKey, "")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// cacheKey reports whether a request may be served from the cache.
func (c *Client) cacheKey(method, path string, params url.Values) (cache.CacheKey, bool) {
	if c.cache == nil || method != http.MethodGet {
		return cache.CacheKey{}, false
	}
	if _, ok := cache.ReferencePrefix(path); !ok {
		return cache.CacheKey{}, false
	}
	return cache.CacheKey{Namespace: c.namespace, Endpoint: path, QueryParams: params}, true
}

// invalidate drops cached entries under the reference prefix a write touched.
func (c *Client) invalidate(ctx context.Context, path string) {
	prefix, ok := cache.ReferencePrefix(path)
	if !ok {
		return
	}
	deleted, err := c.cache.InvalidatePrefix(ctx, c.namespace, prefix)
	if err != nil {
		c.logger.Warn().Err(err).Str("prefix", prefix).Msg("Failed to invalidate cache")
		return
	}
	c.logger.Debug().
		Str("prefix", prefix).
		Int("deleted", deleted).
		Msg("Invalidated cached reference data")
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, params url.Values) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, params, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, nil, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, http.MethodPut, path, nil, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, path, nil, nil)
}

// Query starts a search query for Options.Query.
func (c *Client) Query() *query.Builder {
	return query.New()
}

// Close releases idle connections. The Redis client belongs to the caller.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetClock replaces the clock used for retry delays and rate-limit pauses (for testing).
func (c *Client) SetClock(clock clockz.Clock) {
	c.retrier.clock = clock
	c.rateLimiter.SetClock(clock)
}

// RateLimiter returns the rate limit tracker (for testing).
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
