package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gazeta/internal/adapter/source"
	"gazeta/internal/domain"
)

// DownloadProcessor drains the download queue: it resolves the source
// adapter for each item, fetches the gazette and enqueues the follow-up
// analysis work.
type DownloadProcessor struct {
	store       domain.QueueRepository
	analysisQ   domain.QueueRepository
	diarios     domain.DiarioRepository
	registry    *source.Registry
	maxAttempts int
	logger      *slog.Logger
}

// NewDownloadProcessor wires the download queue processor.
func NewDownloadProcessor(store, analysisQ domain.QueueRepository, diarios domain.DiarioRepository,
	registry *source.Registry, maxAttempts int, logger *slog.Logger) *DownloadProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DownloadProcessor{
		store:       store,
		analysisQ:   analysisQ,
		diarios:     diarios,
		registry:    registry,
		maxAttempts: maxAttempts,
		logger:      logger.With("queue", "download"),
	}
}

func (p *DownloadProcessor) PendingItems(ctx context.Context, limit int) ([]domain.WorkItem, error) {
	return p.store.FindPending(ctx, limit)
}

func (p *DownloadProcessor) UpdateItemStatus(ctx context.Context, id int64, status domain.WorkStatus, errMsg string) error {
	return p.store.UpdateStatus(ctx, id, status, errMsg)
}

func (p *DownloadProcessor) MaxAttempts() int {
	return p.maxAttempts
}

// ProcessItem downloads one gazette edition. Validation problems and
// transient network failures alike surface as errors and go through the
// shared retry policy.
func (p *DownloadProcessor) ProcessItem(ctx context.Context, item *domain.WorkItem) (bool, error) {
	code := item.Metadata[domain.MetaSource]
	if code == "" {
		return false, fmt.Errorf("item %d: metadata has no source code", item.ID)
	}
	rawURL := item.Metadata[domain.MetaURL]
	if rawURL == "" {
		return false, domain.ErrMissingURL
	}
	date, err := time.Parse("2006-01-02", item.Metadata[domain.MetaDate])
	if err != nil {
		return false, fmt.Errorf("item %d: bad reference date: %w", item.ID, err)
	}

	adapter, err := p.registry.Get(code)
	if err != nil {
		return false, err
	}

	d, err := p.diarios.FindBySourceAndDate(ctx, code, date)
	if err == domain.ErrDiarioNotFound {
		d, err = p.diarios.Save(ctx, domain.NewDiario(code, date, rawURL))
	}
	if err != nil {
		return false, fmt.Errorf("item %d: load diario: %w", item.ID, err)
	}
	if d.Status == domain.DiarioPending {
		if err := adapter.Downloader.Download(ctx, d); err != nil {
			return false, err
		}
		if err := p.diarios.Update(ctx, d); err != nil {
			return false, fmt.Errorf("item %d: persist download: %w", item.ID, err)
		}
	}
	if d.Status != domain.DiarioDownloaded {
		// Already past the download stage; nothing left for this queue.
		p.logger.Info("gazette already handled", "diario", d.ID, "status", d.Status)
		return true, nil
	}

	// Reached on every attempt while the gazette sits at downloaded, so a
	// failed enqueue gets retried.
	_, err = p.analysisQ.Enqueue(ctx, domain.WorkItem{
		Reference: d.URL,
		Date:      d.ReferenceDate,
		Priority:  item.Priority,
		Metadata: domain.Metadata{
			domain.MetaSource:    code,
			domain.MetaDate:      item.Metadata[domain.MetaDate],
			domain.MetaDiarioID:  strconv.FormatInt(d.ID, 10),
			domain.MetaLocalPath: d.LocalPath,
		},
	})
	if err != nil {
		return false, fmt.Errorf("item %d: enqueue analysis: %w", item.ID, err)
	}

	return true, nil
}

// AnalysisProcessor drains the analysis queue: it extracts decisions from
// a downloaded gazette and then ships the gazette to the archive.
type AnalysisProcessor struct {
	store       domain.QueueRepository
	diarios     domain.DiarioRepository
	decisions   domain.DecisionRepository
	registry    *source.Registry
	maxAttempts int
	logger      *slog.Logger
}

// NewAnalysisProcessor wires the analysis queue processor.
func NewAnalysisProcessor(store domain.QueueRepository, diarios domain.DiarioRepository,
	decisions domain.DecisionRepository, registry *source.Registry, maxAttempts int, logger *slog.Logger) *AnalysisProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisProcessor{
		store:       store,
		diarios:     diarios,
		decisions:   decisions,
		registry:    registry,
		maxAttempts: maxAttempts,
		logger:      logger.With("queue", "analysis"),
	}
}

func (p *AnalysisProcessor) PendingItems(ctx context.Context, limit int) ([]domain.WorkItem, error) {
	return p.store.FindPending(ctx, limit)
}

func (p *AnalysisProcessor) UpdateItemStatus(ctx context.Context, id int64, status domain.WorkStatus, errMsg string) error {
	return p.store.UpdateStatus(ctx, id, status, errMsg)
}

func (p *AnalysisProcessor) MaxAttempts() int {
	return p.maxAttempts
}

// ProcessItem analyzes one downloaded gazette and archives it afterwards,
// completing the pending → downloaded → analyzed → archived lifecycle.
func (p *AnalysisProcessor) ProcessItem(ctx context.Context, item *domain.WorkItem) (bool, error) {
	diarioID, err := strconv.ParseInt(item.Metadata[domain.MetaDiarioID], 10, 64)
	if err != nil {
		return false, fmt.Errorf("item %d: bad diario id: %w", item.ID, err)
	}

	d, err := p.diarios.Get(ctx, diarioID)
	if err != nil {
		return false, fmt.Errorf("item %d: load diario: %w", item.ID, err)
	}

	adapter, err := p.registry.Get(d.SourceCode)
	if err != nil {
		return false, err
	}

	if d.Status == domain.DiarioDownloaded {
		decisions, err := adapter.Analyzer.Analyze(ctx, d)
		if err != nil {
			return false, err
		}
		if err := p.decisions.SaveAll(ctx, d.ID, decisions); err != nil {
			return false, fmt.Errorf("item %d: persist decisions: %w", item.ID, err)
		}
		d.MarkAnalyzed()
		if err := p.diarios.Update(ctx, d); err != nil {
			return false, fmt.Errorf("item %d: persist analysis: %w", item.ID, err)
		}
	}

	if d.Status == domain.DiarioAnalyzed {
		if err := adapter.Downloader.Archive(ctx, d); err != nil {
			return false, err
		}
		if err := p.diarios.Update(ctx, d); err != nil {
			return false, fmt.Errorf("item %d: persist archive: %w", item.ID, err)
		}
	}

	return true, nil
}
