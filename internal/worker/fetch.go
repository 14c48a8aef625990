package worker

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"gazeta/internal/adapter/source"
	"gazeta/internal/domain"
	"gazeta/internal/pool"
)

// Fetcher downloads a date range for one source with bounded concurrency.
// It is the one-shot counterpart to the persistent queues: the editions are
// already identified, so they go straight through the worker pool instead
// of the store.
type Fetcher struct {
	registry    *source.Registry
	diarios     domain.DiarioRepository
	headClient  *http.Client
	concurrency int
	logger      *slog.Logger
}

// NewFetcher creates a bounded-concurrency fetcher.
func NewFetcher(registry *source.Registry, diarios domain.DiarioRepository, concurrency int, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		registry:    registry,
		diarios:     diarios,
		concurrency: concurrency,
		logger:      logger,
	}
}

// FetchResult summarizes one FetchRange call.
type FetchResult struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
}

// FetchRange downloads every edition of one source between from and to
// inclusive. Days without a published edition are skipped, not failed.
// An unknown source code is reported immediately; it is a configuration
// error, not a per-item failure.
func (f *Fetcher) FetchRange(ctx context.Context, code string, from, to time.Time) (FetchResult, error) {
	var res FetchResult

	adapter, err := f.registry.Get(code)
	if err != nil {
		return res, err
	}

	var diarios []*domain.Diario
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		d, err := adapter.CreateDiario(day)
		if err != nil {
			return res, fmt.Errorf("resolve %s edition for %s: %w", code, day.Format("2006-01-02"), err)
		}
		diarios = append(diarios, d)
	}
	res.Total = len(diarios)

	var skipped atomic.Int64
	p := pool.New[*domain.Diario](f.concurrency, f.logger)
	outcomes := p.Run(ctx, diarios, func(ctx context.Context, d *domain.Diario) error {
		if !source.Exists(ctx, f.headClient, d.URL) {
			skipped.Add(1)
			f.logger.Debug("no edition published", "source", code, "date", d.ReferenceDate.Format("2006-01-02"))
			return nil
		}

		saved, err := f.diarios.Save(ctx, d)
		if err != nil {
			return err
		}
		if saved.Status != domain.DiarioPending {
			skipped.Add(1)
			return nil
		}
		if err := adapter.Downloader.Download(ctx, saved); err != nil {
			return err
		}
		return f.diarios.Update(ctx, saved)
	})

	for _, ok := range outcomes {
		if ok {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	res.Skipped = int(skipped.Load())
	res.Succeeded -= res.Skipped
	return res, nil
}
