// Package metrics exposes the client's Prometheus metrics over HTTP.
// The metrics themselves are defined in their packages (client, batch,
// ratelimit, cache) and registered via promauto with the default registry.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Registry is the default Prometheus registry used by the client.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done, then shuts down.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - closecrm_requests_total{method, status} (Counter): Requests by method and HTTP status ("cached", "network_error" for non-HTTP outcomes)
//   - closecrm_request_duration_seconds{method} (Histogram): Request duration including retries
//   - closecrm_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/client):
//   - closecrm_retries_total{error_class} (Counter): Retry attempts by error class
//   - closecrm_retry_backoff_seconds{error_class} (Histogram): Delay before each retry
//   - closecrm_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - closecrm_rate_limit_pauses_total{source} (Counter): Pauses recorded by delay source (reset, retry_after, fallback)
//   - closecrm_rate_limit_wait_seconds (Histogram): Time requests waited for a shared pause
//
// Batch Metrics (pkg/batch):
//   - closecrm_batch_items_total{outcome} (Counter): Settled batch items (success, failure)
//   - closecrm_batch_chunks_total (Counter): Chunks run
//
// Cache Metrics (pkg/cache):
//   - closecrm_cache_hits_total (Counter): Reference cache hits
//   - closecrm_cache_misses_total (Counter): Reference cache misses
//   - closecrm_cache_invalidations_total (Counter): Entries dropped after writes
//   - closecrm_cache_errors_total{operation} (Counter): Cache operation errors
//
// Example Prometheus Queries:
//
//   # Rate limit pressure
//   sum(rate(closecrm_rate_limit_pauses_total[5m])) by (source)
//
//   # Request Error Rate
//   sum(rate(closecrm_errors_total[5m])) by (class)
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(closecrm_request_duration_seconds_bucket[5m]))
//
//   # Batch failure ratio
//   rate(closecrm_batch_items_total{outcome="failure"}[5m]) / rate(closecrm_batch_items_total[5m])
