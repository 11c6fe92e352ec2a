package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix prefixes every cache key.
const KeyPrefix = "closecrm"

// CacheKey represents a unique identifier for a cached response.
type CacheKey struct {
	// Namespace separates accounts (derived from the API key, never the key itself)
	Namespace string

	// Endpoint is the API path (e.g., "/custom_field/lead/")
	Endpoint string

	// QueryParams are the query parameters (e.g., {"_fields": "id,name"})
	QueryParams url.Values
}

// String generates a deterministic cache key string.
// Format: closecrm:namespace:endpoint:query1=val1:query2=val2
//
// Example:
//
//	closecrm:3f9a0c1e:status/lead:_limit=100
func (k CacheKey) String() string {
	parts := []string{EndpointPrefix(k.Namespace, k.Endpoint)}

	// Add query params (sorted for determinism)
	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)

		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, strings.Join(k.QueryParams[key], ",")))
		}
	}

	return strings.Join(parts, ":")
}

// EndpointPrefix returns the key prefix shared by every entry under endpoint.
func EndpointPrefix(namespace, endpoint string) string {
	parts := []string{KeyPrefix}
	if namespace != "" {
		parts = append(parts, namespace)
	}
	if trimmed := strings.Trim(endpoint, "/"); trimmed != "" {
		parts = append(parts, trimmed)
	}
	return strings.Join(parts, ":")
}
