// Package consolidate runs the walk, parse and write pipeline and merges
// every parsed file into one master table.
package consolidate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/geoflow/pkg/capability"
	gferrors "github.com/logflow/geoflow/pkg/errors"
	"github.com/logflow/geoflow/pkg/ingest/core"
	"github.com/logflow/geoflow/pkg/ingest/detect"
	"github.com/logflow/geoflow/pkg/ingest/sources"
	"github.com/logflow/geoflow/pkg/output"
	"github.com/logflow/geoflow/pkg/table"
	"github.com/logflow/geoflow/pkg/telemetry"
)

// Options configures a run.
type Options struct {
	DataDir  string
	OutDir   string
	Basename string

	// Limit keeps only the first N walked files; 0 means all.
	Limit int

	// Workers is the number of files parsed concurrently.
	Workers int

	XLSX             bool
	MetaColumnsFirst bool

	Decode core.DecodeOptions
}

// DefaultOptions returns sequential defaults writing to data/processed.
func DefaultOptions() Options {
	return Options{
		DataDir:  "data",
		OutDir:   filepath.Join("data", "processed"),
		Basename: "master_dataset",
		Workers:  1,
		Decode:   core.DefaultDecodeOptions(),
	}
}

// Outputs returns OutDir followed by the artifact path for each extension.
// The artifact paths matter when OutDir is DataDir itself.
func (o Options) Outputs(exts ...string) []string {
	paths := []string{o.OutDir}
	for _, ext := range exts {
		paths = append(paths, filepath.Join(o.OutDir, o.Basename+ext))
	}
	return paths
}

// Uploader ships written artifacts somewhere durable.
type Uploader interface {
	UploadAll(ctx context.Context, runID string, paths []string) ([]string, error)
}

// runAnnotated is implemented by columnar writers that record the run id.
type runAnnotated interface {
	ForRun(runID string) capability.Columnar
}

// Consolidator walks a directory, parses every file it can and writes the
// merged table.
type Consolidator struct {
	opts       Options
	caps       *capability.Set
	dispatcher *detect.Dispatcher
	logger     *slog.Logger
	tracer     trace.Tracer
	uploader   Uploader
	progress   func(path string)
}

// New creates a consolidator. caps must be the set the dispatcher's
// decoders were built with.
func New(opts Options, caps *capability.Set, dispatcher *detect.Dispatcher) *Consolidator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Basename == "" {
		opts.Basename = DefaultOptions().Basename
	}
	if opts.Decode.Separator == "" {
		opts.Decode.Separator = "_"
	}
	return &Consolidator{
		opts:       opts,
		caps:       caps,
		dispatcher: dispatcher,
		logger:     slog.New(slog.DiscardHandler),
		tracer:     telemetry.Tracer(),
	}
}

// SetLogger sets the logger.
func (c *Consolidator) SetLogger(l *slog.Logger) *Consolidator {
	if l != nil {
		c.logger = l
	}
	return c
}

// SetTracer overrides the global tracer.
func (c *Consolidator) SetTracer(t trace.Tracer) *Consolidator {
	if t != nil {
		c.tracer = t
	}
	return c
}

// SetUploader enables artifact upload after the writes.
func (c *Consolidator) SetUploader(u Uploader) *Consolidator {
	c.uploader = u
	return c
}

// SetProgress registers a callback invoked once per finished file. With
// more than one worker it is called concurrently.
func (c *Consolidator) SetProgress(fn func(path string)) *Consolidator {
	c.progress = fn
	return c
}

// Options returns the effective options.
func (c *Consolidator) Options() Options {
	return c.opts
}

// fileResult is the outcome of one file, stored in its walk-index slot.
type fileResult struct {
	path      string
	format    core.Format
	table     *table.Table
	rowErrors []core.RowError
	degraded  bool
	err       error
}

// Run performs one consolidation. A non-nil error is fatal (the data dir
// is inaccessible, the CSV could not be written, or ctx was canceled);
// everything else is counted in the summary.
func (c *Consolidator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	sum := newSummary(uuid.NewString(), c.opts.DataDir)

	ctx, span := c.tracer.Start(ctx, "geoflow.run", trace.WithAttributes(
		telemetry.Attr("geoflow.run_id", sum.RunID),
		telemetry.Attr("geoflow.data_dir", c.opts.DataDir),
		telemetry.Attr("geoflow.workers", c.opts.Workers),
	))
	defer span.End()
	defer func() { sum.Duration = time.Since(start) }()

	walker, err := sources.NewWalker(c.opts.DataDir, c.ownOutputs()...)
	if err != nil {
		telemetry.Fail(span, err)
		return sum, err
	}

	listing := walker.Collect(c.opts.Limit)
	for _, werr := range listing.Errors {
		c.logger.Warn("skipping unreadable entry", "error", werr)
		sum.skipFile(pathOf(werr), werr)
	}
	sum.FilesSeen = len(listing.Files)
	c.logger.Info("consolidating", "run_id", sum.RunID, "data_dir", c.opts.DataDir, "files", len(listing.Files))

	results, err := c.parseAll(ctx, listing.Files)
	if err != nil {
		telemetry.Fail(span, err)
		return sum, err
	}

	master := c.merge(results, sum)
	if c.opts.MetaColumnsFirst {
		master.PinColumns(table.MetaColumns)
	}
	sum.RowsEmitted = master.Len()
	sum.Columns = master.Columns()

	if err := c.write(ctx, master, sum); err != nil {
		telemetry.Fail(span, err)
		return sum, err
	}
	c.upload(ctx, sum)

	sum.Notices = c.caps.Notices()
	span.SetAttributes(
		telemetry.Attr("geoflow.files_parsed", sum.FilesParsed),
		telemetry.Attr("geoflow.rows", sum.RowsEmitted),
		telemetry.Attr("geoflow.columns", len(sum.Columns)),
	)
	c.logger.Info("consolidation complete",
		"run_id", sum.RunID,
		"files", sum.FilesParsed,
		"skipped", sum.SkippedFiles(),
		"rows", sum.RowsEmitted,
		"columns", len(sum.Columns),
		"duration", time.Since(start).Round(time.Millisecond))
	return sum, nil
}

// parseAll parses files with at most Workers in flight. Only cancellation
// stops the group; per-file failures land in the result slots.
func (c *Consolidator) parseAll(ctx context.Context, files []string) ([]*fileResult, error) {
	results := make([]*fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)

	for i, path := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			results[i] = c.parseFile(gctx, path)
			if c.progress != nil {
				c.progress(path)
			}
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return nil, gferrors.Wrap(err, gferrors.CodeCanceled, "run canceled")
	}
	if err := ctx.Err(); err != nil {
		return nil, gferrors.Wrap(err, gferrors.CodeCanceled, "run canceled")
	}
	return results, nil
}

func (c *Consolidator) parseFile(ctx context.Context, path string) *fileResult {
	ctx, span := c.tracer.Start(ctx, "geoflow.file", trace.WithAttributes(telemetry.Attr("file.path", path)))
	defer span.End()

	res := &fileResult{path: path}
	fail := func(err error) *fileResult {
		res.err = err
		span.SetAttributes(telemetry.Attr("geoflow.skip_reason", gferrors.GetCode(err).Reason()))
		return res
	}

	src, err := sources.NewFileSource(path)
	if err != nil {
		return fail(gferrors.FileUnreadable(path, err))
	}
	doc, err := core.Load(ctx, src)
	if err != nil {
		return fail(gferrors.FileUnreadable(path, err))
	}

	dec, err := c.dispatcher.Dispatch(doc)
	if err != nil {
		return fail(err)
	}
	res.format = dec.Format()
	span.SetAttributes(telemetry.Attr("file.format", res.format.String()))

	out, err := dec.Decode(ctx, doc, c.opts.Decode)
	if err != nil {
		if ctx.Err() != nil {
			return fail(gferrors.Wrap(ctx.Err(), gferrors.CodeCanceled, "decode canceled"))
		}
		if gferrors.GetCode(err) == gferrors.CodeUnknown {
			err = gferrors.ParseError(path, res.format.String(), err)
		}
		return fail(err)
	}

	t := table.New()
	for _, rec := range out.Records {
		rec.Set(table.ColSourceFile, path)
		t.Append(rec)
	}
	res.table = t
	res.rowErrors = out.RowErrors
	res.degraded = out.Degraded

	span.SetAttributes(
		telemetry.Attr("file.rows", t.Len()),
		telemetry.Attr("file.row_errors", len(out.RowErrors)),
	)
	return res
}

// merge appends the per-file tables in walk order.
func (c *Consolidator) merge(results []*fileResult, sum *Summary) *table.Table {
	master := table.New()
	for _, r := range results {
		if r == nil {
			continue
		}
		if r.err != nil {
			c.logger.Warn("skipping file", "path", r.path, "code", gferrors.GetCode(r.err), "error", r.err)
			sum.skipFile(r.path, r.err)
			continue
		}

		for _, re := range r.rowErrors {
			c.logger.Warn("skipping row", "path", r.path, "row", re.RowNumber, "error", re.Error)
			sum.skipRow(r.path, re)
		}
		if r.degraded {
			sum.Degraded = append(sum.Degraded, r.path)
		}

		c.logger.Debug("parsed file", "path", r.path, "format", r.format, "rows", r.table.Len())
		sum.FilesParsed++
		sum.Formats[r.format.String()]++
		master.AppendTable(r.table)
	}
	return master
}

func (c *Consolidator) artifactPath(ext string) string {
	return filepath.Join(c.opts.OutDir, c.opts.Basename+ext)
}

// ownOutputs lists the paths a run writes, so the walk never reads back a
// previous master.
func (c *Consolidator) ownOutputs() []string {
	exts := []string{".csv", ".xlsx"}
	if ext := c.caps.Columnar.Ext(); ext != "" {
		exts = append(exts, ext)
	}
	return c.opts.Outputs(exts...)
}

// write emits the CSV, then the optional artifacts. Only a CSV failure is
// returned; optional failures set sum.Failed.
func (c *Consolidator) write(ctx context.Context, master *table.Table, sum *Summary) error {
	csvPath := c.artifactPath(".csv")
	res, err := output.WriteCSV(ctx, master, csvPath)
	if err != nil {
		return gferrors.WriteFailed(csvPath, err)
	}
	sum.Artifacts = append(sum.Artifacts, res)
	c.logger.Info("wrote artifact", "format", res.Format, "path", res.Path, "rows", res.RowsWritten)

	if len(sum.Columns) == 0 {
		c.logger.Warn("no rows parsed, skipping optional artifacts")
		return nil
	}

	if c.caps.Available(capability.NameColumnar) {
		c.writeColumnar(ctx, master, sum)
	} else {
		c.caps.Unavailable(capability.NameColumnar, "only the CSV artifact is written")
	}

	if c.opts.XLSX {
		xlsxPath := c.artifactPath(".xlsx")
		res, err := output.WriteXLSX(ctx, master, xlsxPath)
		if err != nil {
			c.optionalFailed(sum, gferrors.WriteFailed(xlsxPath, err))
		} else {
			sum.Artifacts = append(sum.Artifacts, res)
			c.logger.Info("wrote artifact", "format", res.Format, "path", res.Path, "rows", res.RowsWritten)
		}
	}
	return nil
}

func (c *Consolidator) writeColumnar(ctx context.Context, master *table.Table, sum *Summary) {
	col := c.caps.Columnar
	if ra, ok := col.(runAnnotated); ok {
		col = ra.ForRun(sum.RunID)
	}

	path := c.artifactPath(col.Ext())
	start := time.Now()
	if err := col.WriteColumnar(ctx, master, path); err != nil {
		c.optionalFailed(sum, gferrors.WriteFailed(path, err))
		return
	}

	res := &core.SinkResult{
		Path:        path,
		Format:      strings.TrimPrefix(col.Ext(), "."),
		RowsWritten: int64(master.Len()),
		Duration:    time.Since(start),
	}
	if info, err := os.Stat(path); err == nil {
		res.BytesWritten = info.Size()
	}
	sum.Artifacts = append(sum.Artifacts, res)
	c.logger.Info("wrote artifact", "format", res.Format, "path", res.Path, "rows", res.RowsWritten)
}

func (c *Consolidator) optionalFailed(sum *Summary, err *gferrors.Error) {
	path, _ := err.Context["path"].(string)
	c.logger.Error("artifact failed", "path", path, "error", err)
	sum.Failed = true
	sum.Diagnostics = append(sum.Diagnostics, Diagnostic{Path: path, Code: err.Code, Message: err.Error()})
}

func (c *Consolidator) upload(ctx context.Context, sum *Summary) {
	if c.uploader == nil || len(sum.Artifacts) == 0 {
		return
	}
	paths := make([]string, len(sum.Artifacts))
	for i, a := range sum.Artifacts {
		paths[i] = a.Path
	}

	keys, err := c.uploader.UploadAll(ctx, sum.RunID, paths)
	sum.Uploaded = keys
	for _, k := range keys {
		c.logger.Info("uploaded artifact", "key", k)
	}
	if err != nil {
		sum.Failed = true
		var multi *gferrors.MultiError
		errs := []error{err}
		if errors.As(err, &multi) {
			errs = multi.Errors
		}
		for _, e := range errs {
			c.logger.Error("upload failed", "error", e)
			sum.Diagnostics = append(sum.Diagnostics, Diagnostic{Code: gferrors.GetCode(e), Message: e.Error()})
		}
	}
}

func pathOf(err error) string {
	var gfErr *gferrors.Error
	if errors.As(err, &gfErr) {
		if p, ok := gfErr.Context["path"].(string); ok {
			return p
		}
	}
	return ""
}
