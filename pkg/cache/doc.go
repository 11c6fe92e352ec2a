// Package cache stores CRM reference-data responses in Redis.
//
// Reference data (custom field definitions, lead and opportunity statuses,
// pipelines, the current user) changes rarely and is read on almost every
// import or export job. The client caches successful GET responses for these
// paths for a fixed TTL and drops them when it writes under the same path.
//
// Cache keys are namespaced per account so that two API keys never share
// entries:
//
//	closecrm:<namespace>:custom_field/lead:_limit=100
//
// Example usage:
//
//	manager := cache.NewManager(redisClient)
//	key := cache.CacheKey{Namespace: "3f9a0c1e", Endpoint: "/status/lead/"}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch and manager.Set(ctx, key, cache.NewEntry(200, header, body, 10*time.Minute))
//	}
//
// Metrics:
//   - closecrm_cache_hits_total
//   - closecrm_cache_misses_total
//   - closecrm_cache_invalidations_total
//   - closecrm_cache_errors_total{operation}
package cache
