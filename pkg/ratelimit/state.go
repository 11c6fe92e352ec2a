// Package ratelimit interprets the CRM's rate-limit response headers and keeps
// a pause window that every client sharing the same API key honours.
package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ResetHeaders are the headers carrying the rate-limit reset value, in lookup order.
var ResetHeaders = []string{
	"RateLimit-Reset",
	"Rate-Limit-Reset",
	"X-RateLimit-Reset",
	"X-Rate-Limit-Reset",
	"rate_reset",
}

// RetryAfterHeader carries a relative delay in seconds.
const RetryAfterHeader = "Retry-After"

// EpochThreshold separates the two readings of a reset value: above it the
// value is a Unix timestamp in seconds, otherwise a delta in seconds.
const EpochThreshold = 1e5

// Redis key prefix for the shared pause window.
const RedisKeyPausedUntil = "closecrm:rate_limit:paused_until"

// DelaySource names where a computed delay came from.
type DelaySource string

const (
	// SourceReset is a delay derived from a rate-limit reset header.
	SourceReset DelaySource = "reset"

	// SourceRetryAfter is a delay derived from the Retry-After header.
	SourceRetryAfter DelaySource = "retry_after"

	// SourceFallback is the configured fixed delay.
	SourceFallback DelaySource = "fallback"
)

// ResetDelay returns the wait derived from the first parseable reset header.
// The result is never negative.
func ResetDelay(h http.Header, now time.Time) (time.Duration, bool) {
	for _, name := range ResetHeaders {
		value := headerValue(h, name)
		if value == "" {
			continue
		}

		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			continue
		}

		if parsed > EpochThreshold {
			ms := parsed * 1000
			if ms >= math.MaxInt64 {
				return maxDuration, true
			}
			return floor(time.UnixMilli(int64(ms)).Sub(now)), true
		}
		return floor(seconds(parsed)), true
	}
	return 0, false
}

// RetryAfter returns the delay of a Retry-After header given in seconds.
func RetryAfter(h http.Header) (time.Duration, bool) {
	value := strings.TrimSpace(h.Get(RetryAfterHeader))
	if value == "" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, false
	}
	return floor(seconds(parsed)), true
}

// Delay picks the wait before retrying a rate-limited request: the reset
// header first, then Retry-After, then fallback.
func Delay(h http.Header, now time.Time, fallback time.Duration) (time.Duration, DelaySource) {
	if d, ok := ResetDelay(h, now); ok {
		return d, SourceReset
	}
	if d, ok := RetryAfter(h); ok {
		return d, SourceRetryAfter
	}
	return floor(fallback), SourceFallback
}

// State is the shared pause window.
type State struct {
	// PausedUntil is when requests may resume. Zero when no pause is recorded.
	PausedUntil time.Time `json:"paused_until"`

	// LastUpdate is when the pause was recorded.
	LastUpdate time.Time `json:"last_update"`
}

// IsPaused reports whether requests must wait at the given instant.
func (s *State) IsPaused(now time.Time) bool {
	return s.PausedUntil.After(now)
}

// TimeUntilReset returns the remaining pause, or 0 if it has passed.
func (s *State) TimeUntilReset(now time.Time) time.Duration {
	return floor(s.PausedUntil.Sub(now))
}

// headerValue looks a header up canonically and, for names that are not valid
// canonical keys such as rate_reset, verbatim.
func headerValue(h http.Header, name string) string {
	if v := h.Get(name); v != "" {
		return v
	}
	if values := h[name]; len(values) > 0 {
		return values[0]
	}
	return ""
}

const maxDuration = time.Duration(math.MaxInt64)

// seconds converts s to a Duration, saturating instead of overflowing.
func seconds(s float64) time.Duration {
	ns := s * float64(time.Second)
	switch {
	case ns >= math.MaxInt64:
		return maxDuration
	case ns <= math.MinInt64:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ns)
}

func floor(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
