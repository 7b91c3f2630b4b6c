package consolidate

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/logflow/geoflow/pkg/capability"
	gferrors "github.com/logflow/geoflow/pkg/errors"
	"github.com/logflow/geoflow/pkg/geometry"
	"github.com/logflow/geoflow/pkg/ingest/core"
	"github.com/logflow/geoflow/pkg/ingest/decoders"
	"github.com/logflow/geoflow/pkg/ingest/detect"
	"github.com/logflow/geoflow/pkg/output"
)

const twoPoints = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"name":"a"},"geometry":{"type":"Point","coordinates":[103.8,1.29]}},
	{"type":"Feature","properties":{"name":"b"},"geometry":{"type":"Point","coordinates":[103.9,1.35]}}
]}`

const polygon = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"zone":"park"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}}
]}`

func allCaps() *capability.Set {
	return capability.NewSet(geometry.Planar{}, decoders.MXJ{}, output.NewParquetWriter(core.DefaultSinkOptions()), nil)
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func newTestConsolidator(t *testing.T, dataDir string, caps *capability.Set, mutate func(*Options)) *Consolidator {
	t.Helper()
	opts := DefaultOptions()
	opts.DataDir = dataDir
	opts.OutDir = filepath.Join(t.TempDir(), "out")
	if mutate != nil {
		mutate(&opts)
	}
	reg := decoders.Standard(caps, false)
	return New(opts, caps, detect.NewDispatcher(reg.Decoders()...))
}

// readMaster returns the header and a column -> values view of the CSV.
func readMaster(t *testing.T, sum *Summary) ([]string, []map[string]string) {
	t.Helper()
	a := sum.Artifact("csv")
	require.NotNil(t, a)

	f, err := os.Open(a.Path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			row[col] = rec[i]
		}
		rows = append(rows, row)
	}
	return header, rows
}

func TestRun_FeatureCollectionAndMalformedJSON(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"points.geojson": twoPoints,
		"broken.json":    `{"type": "FeatureCollection", "features": [`,
	})
	sum, err := newTestConsolidator(t, dir, allCaps(), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.FilesSeen)
	assert.Equal(t, 1, sum.FilesParsed)
	assert.Equal(t, 2, sum.RowsEmitted)
	assert.Equal(t, map[string]int{"parse_error": 1}, sum.Skipped)
	require.Len(t, sum.Diagnostics, 1)
	assert.Equal(t, filepath.Join(dir, "broken.json"), sum.Diagnostics[0].Path)
	assert.Equal(t, gferrors.CodeParseFailed, sum.Diagnostics[0].Code)

	header, rows := readMaster(t, sum)
	assert.Equal(t, []string{"name", "_source_file", "_geom_type", "_lon", "_lat"}, header)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, filepath.Join(dir, "points.geojson"), row["_source_file"])
		assert.Equal(t, "Point", row["_geom_type"])
	}
	assert.Equal(t, "103.8", rows[0]["_lon"])
	assert.Equal(t, "1.29", rows[0]["_lat"])
}

func TestRun_CSVRowsAndColumnUnion(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.csv":     "id,name\n1,x\n2,y\n3,z\n",
		"b.json":    `[{"id":4,"extra":true}]`,
		"notes.txt": "not data",
		"sub/c.csv": "name\nw\n",
	})
	sum, err := newTestConsolidator(t, dir, allCaps(), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, sum.FilesParsed)
	assert.Equal(t, 1, sum.Skipped["unsupported"])
	assert.Equal(t, 5, sum.RowsEmitted)
	assert.Equal(t, []string{"id", "name", "_source_file", "extra"}, sum.Columns)
	assert.Equal(t, map[string]int{"csv": 2, "json-array": 1}, sum.Formats)

	_, rows := readMaster(t, sum)
	require.Len(t, rows, 5)
	for i := 0; i < 3; i++ {
		assert.Equal(t, filepath.Join(dir, "a.csv"), rows[i]["_source_file"])
		assert.Empty(t, rows[i]["extra"])
	}
	assert.Equal(t, "4", rows[3]["id"])
	assert.Equal(t, "true", rows[3]["extra"])
	assert.Equal(t, filepath.Join(dir, "sub", "c.csv"), rows[4]["_source_file"])
	assert.Empty(t, rows[4]["id"])
}

func TestRun_RowErrorsAreCounted(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.csv": "id,name\n1,x\n2\n3,z\n",
	})
	sum, err := newTestConsolidator(t, dir, allCaps(), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.RowsEmitted)
	assert.Equal(t, 1, sum.RowsSkipped)
	assert.Zero(t, sum.SkippedFiles())
	require.Len(t, sum.Diagnostics, 1)
	assert.Equal(t, gferrors.CodeRowShape, sum.Diagnostics[0].Code)
}

func TestRun_GeometryDisabled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"zones.geojson": polygon})
	caps := capability.NewSet(nil, decoders.MXJ{}, nil, nil)

	sum, err := newTestConsolidator(t, dir, caps, nil).Run(context.Background())
	require.NoError(t, err)

	_, rows := readMaster(t, sum)
	require.Len(t, rows, 1)
	assert.Equal(t, "park", rows[0]["zone"])
	assert.Equal(t, "Polygon", rows[0]["_geom_type"])
	assert.Empty(t, rows[0]["_lon"])
	assert.Empty(t, rows[0]["_lat"])

	assert.Equal(t, []string{filepath.Join(dir, "zones.geojson")}, sum.Degraded)
	require.Len(t, sum.Notices, 2)
	assert.Contains(t, sum.Notices[0], capability.NameGeometry)
	assert.Contains(t, sum.Notices[1], capability.NameColumnar)
}

func TestRun_PolygonCentroid(t *testing.T) {
	dir := writeFiles(t, map[string]string{"zones.geojson": polygon})
	sum, err := newTestConsolidator(t, dir, allCaps(), nil).Run(context.Background())
	require.NoError(t, err)

	_, rows := readMaster(t, sum)
	require.Len(t, rows, 1)
	lon, err := strconv.ParseFloat(rows[0]["_lon"], 64)
	require.NoError(t, err)
	lat, err := strconv.ParseFloat(rows[0]["_lat"], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, lon, 1e-9)
	assert.InDelta(t, 0.5, lat, 1e-9)
	assert.Empty(t, sum.Degraded)
}

func TestRun_WalkOrderWithWorkers(t *testing.T) {
	files := make(map[string]string)
	for i := 0; i < 24; i++ {
		files[fmt.Sprintf("part_%02d.csv", i)] = fmt.Sprintf("id\n%d\n%d\n", 2*i, 2*i+1)
	}
	dir := writeFiles(t, files)

	var done atomic.Int64
	c := newTestConsolidator(t, dir, allCaps(), func(o *Options) { o.Workers = 6 }).
		SetProgress(func(string) { done.Add(1) })
	sum, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(24), done.Load())
	_, rows := readMaster(t, sum)
	require.Len(t, rows, 48)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprint(i), row["id"])
		assert.Equal(t, filepath.Join(dir, fmt.Sprintf("part_%02d.csv", i/2)), row["_source_file"])
	}
}

func TestRun_Artifacts(t *testing.T) {
	dir := writeFiles(t, map[string]string{"points.geojson": twoPoints})

	t.Run("columnar enabled", func(t *testing.T) {
		c := newTestConsolidator(t, dir, allCaps(), func(o *Options) { o.XLSX = true })
		sum, err := c.Run(context.Background())
		require.NoError(t, err)

		require.Len(t, sum.Artifacts, 3)
		assert.Equal(t, []string{"csv", "parquet", "xlsx"},
			[]string{sum.Artifacts[0].Format, sum.Artifacts[1].Format, sum.Artifacts[2].Format})
		for _, a := range sum.Artifacts {
			assert.FileExists(t, a.Path)
			assert.Equal(t, int64(2), a.RowsWritten)
		}
		assert.Equal(t, filepath.Join(c.Options().OutDir, "master_dataset.parquet"), sum.Artifact("parquet").Path)
		assert.False(t, sum.Failed)
	})

	t.Run("columnar disabled", func(t *testing.T) {
		caps := capability.NewSet(geometry.Planar{}, decoders.MXJ{}, nil, nil)
		c := newTestConsolidator(t, dir, caps, nil)
		sum, err := c.Run(context.Background())
		require.NoError(t, err)

		require.Len(t, sum.Artifacts, 1)
		assert.Nil(t, sum.Artifact("parquet"))
		assert.NoFileExists(t, filepath.Join(c.Options().OutDir, "master_dataset.parquet"))
		assert.Len(t, sum.Notices, 1)
	})
}

func TestRun_EmptyDirectory(t *testing.T) {
	sum, err := newTestConsolidator(t, t.TempDir(), allCaps(), nil).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, sum.RowsEmitted)
	require.Len(t, sum.Artifacts, 1)
	header, rows := readMaster(t, sum)
	assert.Empty(t, header)
	assert.Empty(t, rows)
}

func TestRun_RepeatedRunsSkipOwnOutput(t *testing.T) {
	for name, outDir := range map[string]func(dataDir string) string{
		"out dir under data dir": func(d string) string { return filepath.Join(d, "processed") },
		"out dir is data dir":    func(d string) string { return d },
	} {
		t.Run(name, func(t *testing.T) {
			dir := writeFiles(t, map[string]string{"a.csv": "id\n1\n2\n"})
			c := newTestConsolidator(t, dir, allCaps(), func(o *Options) {
				o.OutDir = outDir(dir)
				o.XLSX = true
			})

			for run := 1; run <= 3; run++ {
				sum, err := c.Run(context.Background())
				require.NoError(t, err)
				assert.Equal(t, 1, sum.FilesSeen, "run %d", run)
				assert.Equal(t, 1, sum.FilesParsed, "run %d", run)
				assert.Zero(t, sum.SkippedFiles(), "run %d", run)
				assert.Equal(t, 2, sum.RowsEmitted, "run %d", run)
				require.Len(t, sum.Artifacts, 3)
			}
		})
	}
}

func TestRun_MetaColumnsFirst(t *testing.T) {
	dir := writeFiles(t, map[string]string{"points.geojson": twoPoints})
	c := newTestConsolidator(t, dir, allCaps(), func(o *Options) { o.MetaColumnsFirst = true })
	sum, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"_source_file", "_geom_type", "_lon", "_lat", "name"}, sum.Columns)
}

func TestRun_Limit(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.csv": "id\n1\n",
		"b.csv": "id\n2\n",
		"c.csv": "id\n3\n",
	})
	sum, err := newTestConsolidator(t, dir, allCaps(), func(o *Options) { o.Limit = 2 }).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.FilesSeen)
	assert.Equal(t, 2, sum.RowsEmitted)
}

func TestRun_MissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")
	_, err := newTestConsolidator(t, missing, allCaps(), nil).Run(context.Background())

	require.Error(t, err)
	assert.True(t, gferrors.IsCode(err, gferrors.CodeAccessDenied))
	assert.True(t, gferrors.IsFatal(err))
}

func TestRun_Canceled(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.csv": "id\n1\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestConsolidator(t, dir, allCaps(), nil).Run(ctx)
	require.Error(t, err)
	assert.True(t, gferrors.IsCode(err, gferrors.CodeCanceled))
}

type fakeUploader struct {
	paths []string
	err   error
}

func (f *fakeUploader) UploadAll(_ context.Context, runID string, paths []string) ([]string, error) {
	f.paths = paths
	if f.err != nil {
		return nil, f.err
	}
	keys := make([]string, len(paths))
	for i, p := range paths {
		keys[i] = runID + "/" + filepath.Base(p)
	}
	return keys, nil
}

func TestRun_Upload(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.csv": "id\n1\n"})

	up := &fakeUploader{}
	sum, err := newTestConsolidator(t, dir, allCaps(), nil).SetUploader(up).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, up.paths, 2)
	assert.Equal(t, []string{sum.RunID + "/master_dataset.csv", sum.RunID + "/master_dataset.parquet"}, sum.Uploaded)
	assert.False(t, sum.Failed)

	failing := &fakeUploader{err: gferrors.UploadFailed("k", errors.New("denied"))}
	sum, err = newTestConsolidator(t, dir, allCaps(), nil).SetUploader(failing).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Failed)
	require.NotEmpty(t, sum.Diagnostics)
	assert.Equal(t, gferrors.CodeUploadFailed, sum.Diagnostics[len(sum.Diagnostics)-1].Code)
}

func TestRun_Spans(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.csv":  "id\n1\n",
		"b.json": `[{"id":2}]`,
	})
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())

	c := newTestConsolidator(t, dir, allCaps(), nil).SetTracer(tp.Tracer("test"))
	_, err := c.Run(context.Background())
	require.NoError(t, err)

	names := map[string]int{}
	for _, s := range sr.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, map[string]int{"geoflow.run": 1, "geoflow.file": 2}, names)
}
