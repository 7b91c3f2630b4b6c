package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/logflow/geoflow/pkg/capability"
	"github.com/logflow/geoflow/pkg/config"
	"github.com/logflow/geoflow/pkg/consolidate"
	"github.com/logflow/geoflow/pkg/geometry"
	"github.com/logflow/geoflow/pkg/ingest/decoders"
	"github.com/logflow/geoflow/pkg/ingest/detect"
	"github.com/logflow/geoflow/pkg/output"
	"github.com/logflow/geoflow/pkg/storage/s3"
	"github.com/logflow/geoflow/pkg/telemetry"
	"github.com/logflow/geoflow/pkg/tui"
	"github.com/logflow/geoflow/pkg/watch"
)

// errRunFailed marks a run whose CSV was written but an optional artifact
// or upload failed.
var errRunFailed = errors.New("run finished with errors")

// runFlags are the run and watch flags. Only flags set on the command line
// override the loaded configuration.
type runFlags struct {
	dataDir           string
	outDir            string
	limit             int
	workers           int
	noGeometry        bool
	noXML             bool
	noColumnar        bool
	xlsx              bool
	compression       string
	metaFirst         bool
	expandObjectLists bool
	flatten           string
	csvDelimiter      string
	normalizeCoords   bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.dataDir, "data-dir", "data", "Directory to walk")
	fs.StringVar(&f.outDir, "out-dir", filepath.Join("data", "processed"), "Directory for the artifacts")
	fs.IntVar(&f.limit, "limit", 0, "Only process the first N files (0 = all)")
	fs.IntVar(&f.workers, "workers", 1, "Files parsed concurrently")
	fs.BoolVar(&f.noGeometry, "no-geometry", false, "Disable non-point centroids")
	fs.BoolVar(&f.noXML, "no-xml", false, "Disable XML parsing")
	fs.BoolVar(&f.noColumnar, "no-columnar", false, "Disable Parquet output")
	fs.BoolVar(&f.xlsx, "xlsx", false, "Also write an XLSX workbook")
	fs.StringVar(&f.compression, "compression", "snappy", "Parquet compression (none, snappy, gzip, zstd, lz4, brotli)")
	fs.BoolVar(&f.metaFirst, "meta-first", false, "Put _source_file, _root_key, _geom_type, _lon, _lat first")
	fs.BoolVar(&f.expandObjectLists, "expand-object-lists", false, "Parse JSON objects holding a list of objects")
	fs.StringVar(&f.flatten, "flatten", "text", "Nested values: text (JSON text) or expand (parent_child columns)")
	fs.StringVar(&f.csvDelimiter, "csv-delimiter", ",", `CSV delimiter: one character, "tab" or "auto"`)
	fs.BoolVar(&f.normalizeCoords, "normalize-coordinates", false, "Rename lat/lon style CSV headers to _lat/_lon")
}

// apply copies the flags the user set onto cfg.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	set := cmd.Flags().Changed
	if set("data-dir") {
		cfg.Input.DataDir = f.dataDir
	}
	if set("out-dir") {
		cfg.Output.Dir = f.outDir
	}
	if set("limit") {
		cfg.Input.Limit = f.limit
	}
	if set("workers") {
		cfg.Parse.Workers = f.workers
	}
	if set("no-geometry") {
		cfg.Capabilities.Geometry = !f.noGeometry
	}
	if set("no-xml") {
		cfg.Capabilities.XML = !f.noXML
	}
	if set("no-columnar") {
		cfg.Capabilities.Columnar = !f.noColumnar
	}
	if set("xlsx") {
		cfg.Output.XLSX = f.xlsx
	}
	if set("compression") {
		cfg.Output.Compression = f.compression
	}
	if set("meta-first") {
		cfg.Output.MetaColumnsFirst = f.metaFirst
	}
	if set("expand-object-lists") {
		cfg.Parse.ExpandObjectLists = f.expandObjectLists
	}
	if set("flatten") {
		cfg.Parse.Flatten = f.flatten
	}
	if set("csv-delimiter") {
		cfg.Parse.CSVDelimiter = f.csvDelimiter
	}
	if set("normalize-coordinates") {
		cfg.Parse.NormalizeCoordinates = f.normalizeCoords
	}
}

// loadConfig layers the config files, environment and flags.
func loadConfig(cmd *cobra.Command, flags *runFlags) (*config.Config, error) {
	m := config.NewManager()
	if err := m.Load(configFile); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := m.Get()
	if flags != nil {
		flags.apply(cmd, cfg)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newCapabilities resolves the optional capabilities for one run.
func newCapabilities(cfg *config.Config, logger *slog.Logger) *capability.Set {
	var (
		geom capability.Geometry
		xml  capability.XML
		col  capability.Columnar
	)
	if cfg.Capabilities.Geometry {
		geom = geometry.Planar{}
	}
	if cfg.Capabilities.XML {
		xml = decoders.MXJ{}
	}
	if cfg.Capabilities.Columnar {
		col = output.NewParquetWriter(cfg.SinkOptions())
	}
	return capability.NewSet(geom, xml, col, logger)
}

func consolidateOptions(cfg *config.Config) consolidate.Options {
	return consolidate.Options{
		DataDir:          cfg.Input.DataDir,
		OutDir:           cfg.Output.Dir,
		Basename:         cfg.Output.Basename,
		Limit:            cfg.Input.Limit,
		Workers:          cfg.Parse.Workers,
		XLSX:             cfg.Output.XLSX,
		MetaColumnsFirst: cfg.Output.MetaColumnsFirst,
		Decode:           cfg.DecodeOptions(),
	}
}

func newConsolidator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*consolidate.Consolidator, error) {
	caps := newCapabilities(cfg, logger)
	reg := decoders.Standard(caps, cfg.Parse.ExpandObjectLists)

	dispatcher := detect.NewDispatcher(reg.Decoders()...)
	logger.Debug("decoder chain", "formats", dispatcher.Formats())
	c := consolidate.New(consolidateOptions(cfg), caps, dispatcher).SetLogger(logger)

	if cfg.Storage.S3.Enabled() {
		client, err := s3.NewClient(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, err
		}
		c.SetUploader(client)
	}
	return c, nil
}

// runOnce performs one consolidation and prints its report.
func runOnce(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*consolidate.Summary, error) {
	c, err := newConsolidator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	finish := func() {}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bar := tui.FileProgress(out, countFiles(cfg))
		c.SetProgress(func(string) { bar.Add(1) })
		finish = func() { bar.Finish() }
	}

	sum, err := c.Run(ctx)
	finish()
	if err != nil {
		return sum, err
	}
	tui.PrintSummary(out, sum)
	if sum.Failed {
		return sum, errRunFailed
	}
	return sum, nil
}

// countFiles sizes the progress bar; -1 gives an open-ended spinner.
func countFiles(cfg *config.Config) int {
	n := 0
	err := filepath.WalkDir(cfg.Input.DataDir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && d.Type().IsRegular() {
			n++
		}
		return nil
	})
	if err != nil {
		return -1
	}
	if cfg.Input.Limit > 0 && n > cfg.Input.Limit {
		n = cfg.Input.Limit
	}
	return n
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// setup loads the config and starts logging and tracing.
func setup(ctx context.Context, cmd *cobra.Command, flags *runFlags) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := loadConfig(cmd, flags)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := setupLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)

	cfg.Telemetry.ServiceVersion = version
	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup := func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}
	return cfg, logger, cleanup, nil
}

func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consolidate the data directory once",
		Long: `Walk the data directory, parse every supported file and write the master
table to <out-dir>/master_dataset.csv (plus .parquet and .xlsx when enabled).

Examples:
  geoflow run --data-dir data --out-dir data/processed
  geoflow run --workers 4 --xlsx --meta-first
  geoflow run --no-geometry --no-columnar`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, logger, cleanup, err := setup(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			tui.PrintHeader(cmd.OutOrStdout(), version)
			_, err = runOnce(ctx, cfg, logger, cmd.OutOrStdout())
			return err
		},
	}
	flags.register(cmd)
	return cmd
}

func newWatchCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Consolidate, then re-run when the data directory changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			cfg, logger, cleanup, err := setup(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			tui.PrintHeader(out, version)
			if _, err := runOnce(ctx, cfg, logger, out); err != nil && !errors.Is(err, errRunFailed) {
				return err
			}

			outputs := consolidateOptions(cfg).Outputs(".csv", ".parquet", ".xlsx")
			w, err := watch.NewWatcher(cfg.Input.DataDir, cfg.Watch.Debounce, outputs...)
			if err != nil {
				return err
			}
			w.SetLogger(logger)
			w.OnChange = func(ctx context.Context, paths []string) error {
				logger.Info("re-running", "changed", len(paths))
				_, err := runOnce(ctx, cfg, logger, out)
				if errors.Is(err, errRunFailed) {
					return nil
				}
				return err
			}

			logger.Info("watching", "data_dir", cfg.Input.DataDir, "debounce", cfg.Watch.Debounce)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
