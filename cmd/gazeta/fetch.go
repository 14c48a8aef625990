package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"gazeta/internal/adapter/sqlite"
	"gazeta/internal/worker"
)

func newFetchCommand(app *appContext) *cobra.Command {
	var (
		sourceCode string
		fromFlag   string
		toFlag     string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a date range of editions immediately",
		Long: "Download every published edition of a source between --from and --to\n" +
			"inclusive, bypassing the persistent queue. Days without an edition are\n" +
			"skipped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := time.Parse("2006-01-02", fromFlag)
			if err != nil {
				return fmt.Errorf("--from must be YYYY-MM-DD: %w", err)
			}
			to := from
			if toFlag != "" {
				to, err = time.Parse("2006-01-02", toFlag)
				if err != nil {
					return fmt.Errorf("--to must be YYYY-MM-DD: %w", err)
				}
			}
			if to.Before(from) {
				return fmt.Errorf("--to %s is before --from %s", toFlag, fromFlag)
			}

			registry, err := app.registry()
			if err != nil {
				return err
			}

			db, err := sqlite.Open(app.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			fetcher := worker.NewFetcher(registry, sqlite.NewDiarioStore(db), app.cfg.Queue.Concurrency, app.logger)
			res, err := fetcher.FetchRange(cmd.Context(), sourceCode, from, to)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d editions: %d downloaded, %d skipped, %d failed\n",
				res.Total, res.Succeeded, res.Skipped, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d editions failed", res.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceCode, "source", "s", "", "Source code (e.g. tjro)")
	cmd.Flags().StringVar(&fromFlag, "from", "", "First edition date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toFlag, "to", "", "Last edition date (YYYY-MM-DD), defaults to --from")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("from")

	return cmd
}
