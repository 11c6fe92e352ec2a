package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/zoobzio/clockz"
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitPausesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "closecrm_rate_limit_pauses_total",
		Help: "Total number of rate limit pauses recorded by delay source",
	}, []string{"source"})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "closecrm_rate_limit_wait_seconds",
		Help:    "Time requests spent waiting for a shared rate limit pause",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// extendPauseScript stores ARGV[1] under KEYS[1] with a TTL of ARGV[2]
// milliseconds unless the stored window already ends at or after it.
// Returns 1 when the window was extended.
var extendPauseScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]))
if current and current >= tonumber(ARGV[1]) then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// Tracker keeps the pause window opened by a rate-limited response so that
// other requests wait instead of hitting the limit again.
//
// With a Redis client the window is shared by every process using the same
// namespace; without one it is local to the Tracker.
type Tracker struct {
	redis     *redis.Client
	namespace string
	clock     clockz.Clock
	logger    zerolog.Logger

	mu    sync.Mutex
	local State
}

// NewTracker creates a new rate limit tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, namespace string, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:     redisClient,
		namespace: namespace,
		clock:     clockz.RealClock,
		logger:    logger,
	}
}

// SetClock replaces the clock (for testing).
func (t *Tracker) SetClock(clock clockz.Clock) {
	t.clock = clock
}

func (t *Tracker) key() string {
	if t.namespace == "" {
		return RedisKeyPausedUntil
	}
	return RedisKeyPausedUntil + ":" + t.namespace
}

// GetState returns the current pause window.
// Returns an empty state if nothing has been recorded.
func (t *Tracker) GetState(ctx context.Context) (*State, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	pausedUntilMs, err := t.redis.Get(ctx, t.key()).Int64()
	if errors.Is(err, redis.Nil) {
		return &State{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get paused until: %w", err)
	}

	return &State{PausedUntil: time.UnixMilli(pausedUntilMs)}, nil
}

// RecordPause extends the pause window by delay from now. A window that
// already ends later is kept.
func (t *Tracker) RecordPause(ctx context.Context, delay time.Duration, source DelaySource) error {
	now := t.clock.Now()
	until := now.Add(floor(delay))

	rateLimitPausesTotal.WithLabelValues(string(source)).Inc()

	extended, err := t.extend(ctx, now, until, delay)
	if err != nil {
		return err
	}
	if !extended {
		return nil
	}

	t.logger.Warn().
		Dur("delay", delay).
		Str("source", string(source)).
		Time("paused_until", until).
		Msg("Rate limit pause recorded")

	return nil
}

// extend moves the pause window to until if it ends earlier. The Redis
// comparison and write run as one script so concurrent writers cannot shrink
// the window.
func (t *Tracker) extend(ctx context.Context, now, until time.Time, delay time.Duration) (bool, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		if !until.After(t.local.PausedUntil) {
			return false, nil
		}
		t.local = State{PausedUntil: until, LastUpdate: now}
		return true, nil
	}

	// The key expires with the window so stale pauses never linger.
	ttl := floor(delay)
	if ttl < maxDuration-time.Second {
		ttl += time.Second
	}
	extended, err := extendPauseScript.Run(ctx, t.redis, []string{t.key()}, until.UnixMilli(), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("store paused until in redis: %w", err)
	}
	return extended == 1, nil
}

// Wait blocks until the pause window has passed or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		return fmt.Errorf("get rate limit state: %w", err)
	}

	now := t.clock.Now()
	if !state.IsPaused(now) {
		return nil
	}

	wait := state.TimeUntilReset(now)
	t.logger.Debug().
		Dur("wait_duration", wait).
		Msg("Waiting for rate limit pause")
	rateLimitWaitSeconds.Observe(wait.Seconds())

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.clock.After(wait):
		return nil
	}
}
