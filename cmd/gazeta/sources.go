package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSourcesCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List registered gazette sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := app.registry()
			if err != nil {
				return err
			}
			for _, code := range registry.SupportedCodes() {
				fmt.Fprintln(cmd.OutOrStdout(), code)
			}
			return nil
		},
	}
}
