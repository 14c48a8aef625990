package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"gazeta/internal/adapter/analysis"
	"gazeta/internal/adapter/archive"
	"gazeta/internal/adapter/source"
	"gazeta/internal/config"
	"gazeta/internal/logging"
)

// appContext carries the dependencies shared by every subcommand. Config
// and logger are populated in PersistentPreRunE, before any RunE fires.
type appContext struct {
	configFlag string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func (a *appContext) setup() error {
	cfg, err := config.Load(a.configFlag)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}, os.Stderr)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// registry builds the source registry with built-ins plus any catalog file
// from the config.
func (a *appContext) registry() (*source.Registry, error) {
	deps := source.Deps{
		DataDir:   a.cfg.DataDir,
		Archive:   archive.NewClient(archiveConfig(a.cfg), a.logger),
		Extractor: analysis.NewClient(analysisConfig(a.cfg), a.logger),
		Client:    http.DefaultClient,
		Logger:    a.logger,
	}

	reg := source.NewRegistry()
	source.RegisterBuiltins(reg, deps)

	if a.cfg.SourcesFile != "" {
		catalog, err := source.LoadCatalog(a.cfg.SourcesFile)
		if err != nil {
			return nil, err
		}
		catalog.Register(reg, deps)
	}
	return reg, nil
}

func archiveConfig(cfg *config.Config) archive.Config {
	return archive.Config{
		AccessKey:    cfg.Archive.AccessKey,
		SecretKey:    cfg.Archive.SecretKey,
		Collection:   cfg.Archive.Collection,
		UploadBase:   cfg.Archive.UploadBase,
		DownloadBase: cfg.Archive.DownloadBase,
	}
}

func analysisConfig(cfg *config.Config) analysis.Config {
	return analysis.Config{
		Endpoint:     cfg.Analysis.Endpoint,
		Model:        cfg.Analysis.Model,
		APIKey:       cfg.Analysis.APIKey,
		SystemPrompt: cfg.Analysis.SystemPrompt,
	}
}

func newRootCommand() *cobra.Command {
	app := &appContext{}

	rootCmd := &cobra.Command{
		Use:           "gazeta",
		Short:         "Judicial gazette ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&app.configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&app.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	rootCmd.AddCommand(newDaemonCommand(app))
	rootCmd.AddCommand(newEnqueueCommand(app))
	rootCmd.AddCommand(newFetchCommand(app))
	rootCmd.AddCommand(newStatusCommand(app))
	rootCmd.AddCommand(newSourcesCommand(app))

	return rootCmd
}
