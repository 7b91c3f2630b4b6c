// geoflow consolidates a directory of GeoJSON, JSON, CSV and XML files into
// one master table written as CSV, Parquet and XLSX.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/logflow/geoflow/pkg/output"
)

var (
	version = output.Version
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "geoflow",
		Short: "geoflow - consolidate geospatial datasets into one table",
		Long: `geoflow walks a directory of GeoJSON, JSON, CSV and XML files, parses each
into rows tagged with _source_file, and writes the union as one master table.

Configuration is layered: /etc/geoflow/config.yaml, ~/.geoflow/config.yaml,
./.geoflow.yaml, --config, GEOFLOW_* environment variables, then flags.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file (YAML)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(newRunCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newInspectCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "geoflow %s (%s)\n", version, commit)
		},
	}
}
