package client

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/closecrm-client/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "closecrm_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "closecrm_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "closecrm_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// RetryDelay is the fixed delay for network errors and the fallback delay
	// for rate-limited responses without timing headers.
	RetryDelay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// attemptFunc issues one HTTP attempt.
type attemptFunc func(ctx context.Context) (*http.Response, error)

// retrier re-issues a request that was rate limited or failed at the network
// level. The attempt counter is local to each call of do.
type retrier struct {
	config RetryConfig
	clock  clockz.Clock
	logger zerolog.Logger

	// onRateLimit is told about every rate-limit delay before sleeping.
	onRateLimit func(ctx context.Context, delay time.Duration, source ratelimit.DelaySource)
}

func newRetrier(config RetryConfig, clock clockz.Clock, logger zerolog.Logger) *retrier {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	return &retrier{config: config, clock: clock, logger: logger}
}

// do runs attempt until it yields a response that is not rate limited, or the
// retry bound is reached. Responses with any other status are returned as is.
func (r *retrier) do(ctx context.Context, method, path string, attempt attemptFunc) (*http.Response, error) {
	for attemptCount := 0; ; attemptCount++ {
		resp, err := attempt(ctx)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}

			errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			if attemptCount >= r.config.MaxRetries {
				retryExhaustedTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
				r.logger.Error().
					Err(err).
					Str("method", method).
					Str("path", path).
					Int("attempts", attemptCount+1).
					Msg("Network error, retry attempts exhausted")
				return nil, &TransportError{Method: method, Path: path, Attempts: attemptCount + 1, Err: err}
			}

			r.logger.Warn().
				Err(err).
				Str("method", method).
				Str("path", path).
				Int("attempt", attemptCount+1).
				Dur("backoff", r.config.RetryDelay).
				Msg("Network error, retrying request")
			if err := r.sleep(ctx, ErrorClassNetwork, r.config.RetryDelay); err != nil {
				return nil, err
			}
			continue
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			if attemptCount > 0 {
				r.logger.Info().
					Str("method", method).
					Str("path", path).
					Int("attempt", attemptCount+1).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		// Rate limited: the body is not needed for a retry.
		drain(resp)
		errorsTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()

		if attemptCount >= r.config.MaxRetries {
			retryExhaustedTotal.WithLabelValues(string(ErrorClassRateLimit)).Inc()
			r.logger.Error().
				Str("method", method).
				Str("path", path).
				Int("attempts", attemptCount+1).
				Msg("Rate limit retry attempts exhausted")
			return nil, &RateLimitError{Method: method, Path: path, Attempts: attemptCount + 1}
		}

		delay, source := ratelimit.Delay(resp.Header, r.clock.Now(), r.config.RetryDelay)
		if r.onRateLimit != nil {
			r.onRateLimit(ctx, delay, source)
		}

		r.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("attempt", attemptCount+1).
			Dur("backoff", delay).
			Str("delay_source", string(source)).
			Msg("Rate limited, retrying request")
		if err := r.sleep(ctx, ErrorClassRateLimit, delay); err != nil {
			return nil, err
		}
	}
}

// sleep waits for d on the retrier's clock, honouring ctx.
func (r *retrier) sleep(ctx context.Context, class ErrorClass, d time.Duration) error {
	retriesTotal.WithLabelValues(string(class)).Inc()
	retryBackoffSeconds.WithLabelValues(string(class)).Observe(d.Seconds())

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(d):
		return nil
	}
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

