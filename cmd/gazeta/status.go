package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"gazeta/internal/adapter/sqlite"
	"gazeta/internal/domain"
)

var statusOrder = []domain.WorkStatus{
	domain.StatusPending,
	domain.StatusProcessing,
	domain.StatusCompleted,
	domain.StatusFailed,
}

func newStatusCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue depths by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			db, err := sqlite.Open(app.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			download, err := sqlite.NewQueueStore(db, sqlite.TableDownloadQueue).CountByStatus(ctx)
			if err != nil {
				return err
			}
			analysis, err := sqlite.NewQueueStore(db, sqlite.TableAnalysisQueue).CountByStatus(ctx)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(statusOrder))
			for _, status := range statusOrder {
				rows = append(rows, []string{
					string(status),
					strconv.Itoa(download[status]),
					strconv.Itoa(analysis[status]),
				})
			}

			out := cmd.OutOrStdout()
			if isTerminal(os.Stdout) {
				fmt.Fprintln(out, renderTable([]string{"STATUS", "DOWNLOAD", "ANALYSIS"}, rows))
			} else {
				for _, row := range rows {
					fmt.Fprintf(out, "%s\t%s\t%s\n", row[0], row[1], row[2])
				}
			}
			return nil
		},
	}
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func renderTable(headers []string, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(headers))
	for i := range headers {
		align := text.AlignLeft
		if i > 0 {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
