package queue

import (
	"context"
	"fmt"
	"log/slog"

	"gazeta/internal/domain"
)

// Processor is the contract a concrete queue implements. The batch loop in
// Runner is written once against this interface; implementations supply the
// store access and the side-effecting stage work.
//
// ProcessItem must not touch the item's queue status itself; routing the
// outcome through UpdateItemStatus is exclusively the Runner's job.
type Processor interface {
	// PendingItems returns at most limit items with status pending,
	// ordered by descending priority then ascending id.
	PendingItems(ctx context.Context, limit int) ([]domain.WorkItem, error)

	// ProcessItem performs the stage work for one item. A false result or
	// a non-nil error both count as a failed attempt.
	ProcessItem(ctx context.Context, item *domain.WorkItem) (bool, error)

	// UpdateItemStatus atomically persists a status transition. Moving an
	// item to processing increments attempts and stamps last_attempt.
	UpdateItemStatus(ctx context.Context, id int64, status domain.WorkStatus, errMsg string) error

	// MaxAttempts is the retry budget applied by the failure policy.
	MaxAttempts() int
}

// BatchResult summarizes one RunBatch call.
type BatchResult struct {
	Processed int
	Succeeded int
	Retried   int
	Failed    int
}

// Runner drives a Processor through batches of pending items, applying the
// uniform retry/failure policy: pending → processing → {completed |
// pending(retry) | failed}. completed and failed are terminal.
type Runner struct {
	proc   Processor
	logger *slog.Logger
}

// NewRunner creates a batch runner for the given processor.
func NewRunner(proc Processor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{proc: proc, logger: logger}
}

// RunBatch fetches up to batchSize pending items and processes each one.
// A failing item never prevents the rest of the batch from running: errors
// and panics from ProcessItem are captured per item and fed to the failure
// policy. Only fetch errors and context cancellation abort the batch.
func (r *Runner) RunBatch(ctx context.Context, batchSize int) (BatchResult, error) {
	var res BatchResult

	items, err := r.proc.PendingItems(ctx, batchSize)
	if err != nil {
		return res, fmt.Errorf("fetch pending: %w", err)
	}

	for i := range items {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		item := &items[i]

		if err := r.proc.UpdateItemStatus(ctx, item.ID, domain.StatusProcessing, ""); err != nil {
			r.logger.Warn("claim failed", "item", item.ID, "error", err)
			continue
		}
		// Mirror the claim-time increment so the retry check below sees
		// the attempt that is now in flight.
		item.Attempts++
		res.Processed++

		ok, procErr := r.processOne(ctx, item)
		if ok && procErr == nil {
			if err := r.proc.UpdateItemStatus(ctx, item.ID, domain.StatusCompleted, ""); err != nil {
				r.logger.Error("complete failed", "item", item.ID, "error", err)
			}
			res.Succeeded++
			continue
		}

		msg := "processing returned false"
		if procErr != nil {
			msg = procErr.Error()
		}
		if item.CanRetry(r.proc.MaxAttempts()) {
			r.logger.Warn("transient failure, will retry",
				"item", item.ID, "attempts", item.Attempts, "error", msg)
			if err := r.proc.UpdateItemStatus(ctx, item.ID, domain.StatusPending, msg); err != nil {
				r.logger.Error("retry update failed", "item", item.ID, "error", err)
			}
			res.Retried++
		} else {
			r.logger.Error("permanent failure",
				"item", item.ID, "attempts", item.Attempts, "error", msg)
			if err := r.proc.UpdateItemStatus(ctx, item.ID, domain.StatusFailed, msg); err != nil {
				r.logger.Error("fail update failed", "item", item.ID, "error", err)
			}
			res.Failed++
		}
	}

	return res, nil
}

// processOne isolates a single ProcessItem call, converting panics into
// errors so one bad item cannot take down the batch.
func (r *Runner) processOne(ctx context.Context, item *domain.WorkItem) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = fmt.Errorf("panic processing item %d: %v", item.ID, rec)
		}
	}()
	return r.proc.ProcessItem(ctx, item)
}
