package worker

import (
	"context"
	"log/slog"
	"time"

	"gazeta/internal/queue"
)

// Worker polls the persistent queues and drains them in batches.
type Worker struct {
	download     *queue.Runner
	analysis     *queue.Runner
	pollInterval time.Duration
	batchSize    int
	logger       *slog.Logger
}

// New creates a worker driving the download and analysis runners.
func New(download, analysis *queue.Runner, pollInterval time.Duration, batchSize int, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		download:     download,
		analysis:     analysis,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shutting down")
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	for _, run := range []struct {
		name   string
		runner *queue.Runner
	}{
		{"download", w.download},
		{"analysis", w.analysis},
	} {
		res, err := run.runner.RunBatch(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// One queue's fetch error must not starve the other.
			w.logger.Error("batch failed", "queue", run.name, "error", err)
			continue
		}
		if res.Processed > 0 {
			w.logger.Info("batch finished", "queue", run.name,
				"processed", res.Processed, "succeeded", res.Succeeded,
				"retried", res.Retried, "failed", res.Failed)
		}
	}
}
