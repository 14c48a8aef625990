// Package pool runs a per-item pipeline function over a fixed list of work
// items with bounded concurrency.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// PipelineFunc processes one item. A nil return is a success outcome.
type PipelineFunc[T any] func(ctx context.Context, item T) error

// Pool is a fixed-size worker pool. Each Run call drains its item list with
// at most Workers items in flight at once.
type Pool[T any] struct {
	workers int
	logger  *slog.Logger
}

// New creates a pool with the given concurrency. Values below 1 are
// clamped to 1.
func New[T any](workers int, logger *slog.Logger) *Pool[T] {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool[T]{workers: workers, logger: logger}
}

// Run executes fn over every item and returns one boolean outcome per item.
// Result order does not match input order; each item is processed exactly
// once. A panic or error from one invocation becomes a false outcome and
// never aborts the other in-flight or queued items. Run blocks until every
// item has been fully processed.
func (p *Pool[T]) Run(ctx context.Context, items []T, fn PipelineFunc[T]) []bool {
	if len(items) == 0 {
		return nil
	}

	work := make(chan T, len(items))
	for _, item := range items {
		work <- item
	}
	// Closing the channel is the end-of-stream signal; each worker exits
	// exactly once when the preloaded items run out.
	close(work)

	outcomes := make(chan bool, len(items))
	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				outcomes <- p.runOne(ctx, item, fn)
			}
		}()
	}
	wg.Wait()
	close(outcomes)

	results := make([]bool, 0, len(items))
	for ok := range outcomes {
		results = append(results, ok)
	}
	return results
}

// runOne isolates a single pipeline invocation, converting panics and
// errors into a false outcome at the point nearest the call.
func (p *Pool[T]) runOne(ctx context.Context, item T, fn PipelineFunc[T]) bool {
	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic in pipeline: %v", rec)
			}
		}()
		err = fn(ctx, item)
	}()
	if err != nil {
		p.logger.Warn("pipeline item failed", "error", err)
		return false
	}
	return true
}
