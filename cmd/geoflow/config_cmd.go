package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/logflow/geoflow/pkg/config"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			m := config.NewManager()
			if err := m.Load(configFile); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, p := range m.GetPaths() {
				fmt.Fprintf(out, "# loaded %s\n", p)
			}
			data, err := m.Dump()
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
}
