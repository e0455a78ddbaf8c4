package main

import (
	"errors"
	"fmt"

	"examgen"
	"examgen/app"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the most recently generated questions",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := app.Open(ctx, cfg, app.Needs{Store: true})
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close(ctx)) }()

			records, err := a.History.Tail(ctx, last)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No questions generated yet.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), examgen.RenderHistory(records, len(records)))
			return nil
		},
	}

	cmd.Flags().IntVar(&last, "last", 6, "Number of records to show")
	return cmd
}
