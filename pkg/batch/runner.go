package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/closecrm-client/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/zoobzio/clockz"
)

// Prometheus metrics for batch runs.
var (
	batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "closecrm_batch_items_total",
		Help: "Total batch items settled by outcome",
	}, []string{"outcome"})

	batchChunksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "closecrm_batch_chunks_total",
		Help: "Total batch chunks executed",
	})
)

// Config holds batch runner configuration.
type Config struct {
	// Concurrency is the chunk size, i.e. the maximum number of invocations in flight.
	Concurrency int

	// Delay is the pause between two chunks. It is not applied after the last chunk.
	Delay time.Duration

	// OnProgress is called once per settled item with the running count and the total.
	OnProgress func(completed, total int)

	// ContinueOnError collects failures instead of aborting on the first one.
	ContinueOnError bool

	// Clock drives the inter-chunk delay (default: real clock).
	Clock clockz.Clock
}

// DefaultConfig returns the default batch configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 5,
		Delay:       100 * time.Millisecond,
		Clock:       clockz.RealClock,
	}
}

// Operation is invoked once per item with the item's index in the input.
type Operation[T, R any] func(ctx context.Context, item T, index int) (R, error)

// Run executes op for every item, chunk by chunk.
//
// With ContinueOnError the returned Result holds one entry per item. Otherwise
// the first failure observed in a chunk is returned as an *ItemError once all
// invocations of that chunk have settled; later chunks never start.
// A cancelled ctx stops the run at the next chunk boundary.
func Run[T, R any](ctx context.Context, items []T, op Operation[T, R], cfg Config) (*Result[T, R], error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.Delay < 0 {
		cfg.Delay = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = clockz.RealClock
	}

	logger := logging.NewLogger(logging.ComponentBatch)
	total := len(items)
	result := &Result[T, R]{
		Successes:      make([]R, 0, total),
		Failures:       make([]Failure[T], 0),
		TotalAttempted: total,
	}

	completed := 0
	for start := 0; start < total; start += cfg.Concurrency {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch cancelled after %d/%d items: %w", completed, total, err)
		}

		end := min(start+cfg.Concurrency, total)
		outcomes := runChunk(ctx, items[start:end], start, op)
		batchChunksTotal.Inc()

		var firstErr *ItemError
		for outcome := range outcomes {
			completed++
			if cfg.OnProgress != nil {
				cfg.OnProgress(completed, total)
			}

			if outcome.OK() {
				batchItemsTotal.WithLabelValues("success").Inc()
				result.Successes = append(result.Successes, outcome.Value)
				continue
			}

			batchItemsTotal.WithLabelValues("failure").Inc()
			if cfg.ContinueOnError {
				result.Failures = append(result.Failures, Failure[T]{
					Item:  outcome.Item,
					Index: outcome.Index,
					Err:   outcome.Err,
				})
				continue
			}
			if firstErr == nil {
				firstErr = &ItemError{Index: outcome.Index, Err: outcome.Err}
			}
		}

		logger.Debug().
			Int("chunk_start", start).
			Int("chunk_size", end-start).
			Int("completed", completed).
			Int("total", total).
			Msg("Batch chunk settled")

		if firstErr != nil {
			logger.Warn().
				Err(firstErr.Err).
				Int("index", firstErr.Index).
				Int("completed", completed).
				Int("total", total).
				Msg("Batch aborted on item failure")
			return nil, firstErr
		}

		if end < total && cfg.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("batch cancelled after %d/%d items: %w", completed, total, ctx.Err())
			case <-cfg.Clock.After(cfg.Delay):
			}
		}
	}

	if total > 0 {
		logger.Info().
			Int("total", total).
			Int("successes", len(result.Successes)).
			Int("failures", len(result.Failures)).
			Msg("Batch complete")
	}

	return result, nil
}

// runChunk launches one goroutine per item and returns a channel that delivers
// every outcome in settlement order. The channel is closed once all settled.
func runChunk[T, R any](ctx context.Context, chunk []T, offset int, op Operation[T, R]) <-chan Outcome[T, R] {
	outcomes := make(chan Outcome[T, R], len(chunk))

	var wg sync.WaitGroup
	for i, item := range chunk {
		wg.Add(1)
		go func(item T, index int) {
			defer wg.Done()

			value, err := op(ctx, item, index)
			outcomes <- Outcome[T, R]{Item: item, Index: index, Value: value, Err: err}
		}(item, offset+i)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	return outcomes
}
