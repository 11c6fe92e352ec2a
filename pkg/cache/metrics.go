package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "closecrm_cache_hits_total",
			Help: "Total number of reference data cache hits",
		},
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "closecrm_cache_misses_total",
			Help: "Total number of reference data cache misses",
		},
	)

	// CacheInvalidations tracks entries dropped after writes
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "closecrm_cache_invalidations_total",
			Help: "Total number of cache entries invalidated by writes",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "closecrm_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "invalidate"
	)
)
