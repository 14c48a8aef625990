package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gazeta/internal/adapter/source"
	"gazeta/internal/adapter/sqlite"
	"gazeta/internal/domain"
)

func newEnqueueCommand(app *appContext) *cobra.Command {
	var (
		sourceCode string
		dateFlag   string
		urlFlag    string
		priority   int
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a gazette edition for download",
		Long: "Queue one edition of a source for the pipeline. Without --date the\n" +
			"latest published edition is resolved from the source's index page.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			registry, err := app.registry()
			if err != nil {
				return err
			}
			adapter, err := registry.Get(sourceCode)
			if err != nil {
				return err
			}

			date := time.Now().UTC().Truncate(24 * time.Hour)
			if dateFlag != "" {
				date, err = time.Parse("2006-01-02", dateFlag)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
			}

			rawURL := urlFlag
			if rawURL == "" {
				if dateFlag != "" {
					rawURL, err = adapter.Discovery.URLForDate(date)
				} else {
					rawURL, err = adapter.Discovery.LatestURL(ctx)
				}
				if err != nil {
					return fmt.Errorf("resolve edition URL: %w", err)
				}
			}
			if dateFlag == "" {
				if d, ok := source.DateFromURL(rawURL); ok {
					date = d
				}
			}

			db, err := sqlite.Open(app.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := domain.NewQueueService(sqlite.NewQueueStore(db, sqlite.TableDownloadQueue))
			item, err := svc.Submit(ctx, sourceCode, date, rawURL, priority)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "queued item %d: %s\n", item.ID, item.Reference)
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceCode, "source", "s", "", "Source code (e.g. tjro)")
	cmd.Flags().StringVarP(&dateFlag, "date", "d", "", "Edition date (YYYY-MM-DD), defaults to the latest edition")
	cmd.Flags().StringVarP(&urlFlag, "url", "u", "", "Edition URL, overrides discovery")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Queue priority, higher first")
	cmd.MarkFlagRequired("source")

	return cmd
}
