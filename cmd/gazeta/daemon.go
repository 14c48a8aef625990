package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	httpAdapter "gazeta/internal/adapter/http"
	"gazeta/internal/adapter/sqlite"
	"gazeta/internal/domain"
	"gazeta/internal/queue"
	"gazeta/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func newDaemonCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the queue worker and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), app)
		},
	}
}

func runDaemon(ctx context.Context, app *appContext) error {
	cfg, logger := app.cfg, app.logger

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("ensure data directory: %w", err)
	}

	lock := flock.New(filepath.Join(cfg.DataDir, "gazeta.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gazeta daemon is already running")
	}
	defer lock.Unlock()

	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	downloadQ := sqlite.NewQueueStore(db, sqlite.TableDownloadQueue)
	analysisQ := sqlite.NewQueueStore(db, sqlite.TableAnalysisQueue)
	diarios := sqlite.NewDiarioStore(db)
	decisions := sqlite.NewDecisionStore(db)

	for name, q := range map[string]domain.QueueRepository{
		"download": downloadQ,
		"analysis": analysisQ,
	} {
		recovered, err := q.RecoverStale(ctx)
		if err != nil {
			logger.Warn("recover stale items", "queue", name, "error", err)
		} else if recovered > 0 {
			logger.Info("recovered stale items", "queue", name, "count", recovered)
		}
	}

	registry, err := app.registry()
	if err != nil {
		return err
	}

	downloadProc := worker.NewDownloadProcessor(downloadQ, analysisQ, diarios, registry, cfg.Queue.MaxAttempts, logger)
	analysisProc := worker.NewAnalysisProcessor(analysisQ, diarios, decisions, registry, cfg.Queue.MaxAttempts, logger)
	w := worker.New(
		queue.NewRunner(downloadProc, logger),
		queue.NewRunner(analysisProc, logger),
		cfg.PollInterval(), cfg.Queue.BatchSize, logger,
	)

	svc := domain.NewQueueService(downloadQ)
	srv := httpAdapter.NewServer(svc, registry, cfg.HTTPBind, cfg.APIToken, logger)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go w.Run(ctx)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPBind)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
