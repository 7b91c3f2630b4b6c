package main

import (
	"github.com/spf13/cobra"

	"github.com/logflow/geoflow/pkg/inspect"
	"github.com/logflow/geoflow/pkg/tui"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE.csv",
		Short: "Describe a master CSV with DuckDB",
		Long: `Infer the schema of a consolidated CSV with DuckDB, pick the latitude and
longitude columns with the most numeric values, and report how many rows
are geolocated and where their center is.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			in, err := inspect.New()
			if err != nil {
				return err
			}
			defer in.Close()

			report, err := in.Inspect(ctx, args[0])
			if err != nil {
				return err
			}
			tui.PrintInspect(cmd.OutOrStdout(), report)
			return nil
		},
	}
}
