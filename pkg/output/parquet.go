package output

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/logflow/geoflow/pkg/capability"
	"github.com/logflow/geoflow/pkg/ingest/core"
	"github.com/logflow/geoflow/pkg/table"
)

// Version is recorded in artifact metadata.
const Version = "0.3.0"

// ParquetWriter is the columnar capability. Column types are inferred from
// the table: bool, int64, float64 or string, all nullable.
type ParquetWriter struct {
	opts  core.SinkOptions
	alloc memory.Allocator
}

// NewParquetWriter creates a Parquet writer.
func NewParquetWriter(opts core.SinkOptions) *ParquetWriter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = core.DefaultSinkOptions().BatchSize
	}
	return &ParquetWriter{opts: opts, alloc: memory.NewGoAllocator()}
}

// Ext implements capability.Columnar.
func (w *ParquetWriter) Ext() string {
	return ".parquet"
}

// WithMetadata returns a copy of the writer with extra footer metadata.
func (w *ParquetWriter) WithMetadata(meta map[string]string) *ParquetWriter {
	merged := make(map[string]string, len(w.opts.Metadata)+len(meta))
	for k, v := range w.opts.Metadata {
		merged[k] = v
	}
	for k, v := range meta {
		merged[k] = v
	}
	opts := w.opts
	opts.Metadata = merged
	return &ParquetWriter{opts: opts, alloc: w.alloc}
}

// ForRun tags the artifact footer with a run id.
func (w *ParquetWriter) ForRun(runID string) capability.Columnar {
	return w.WithMetadata(map[string]string{"run_id": runID})
}

// WriteColumnar implements capability.Columnar.
func (w *ParquetWriter) WriteColumnar(ctx context.Context, t *table.Table, path string) error {
	if len(t.Columns()) == 0 {
		return fmt.Errorf("table has no columns")
	}
	schema := w.schema(t)

	_, err := writeAtomic(path, "parquet", int64(t.Len()), func(out io.Writer) error {
		writerProps := parquet.NewWriterProperties(
			parquet.WithCompression(codec(w.opts.Compression)),
			parquet.WithDictionaryDefault(true),
			parquet.WithCreatedBy("geoflow "+Version),
		)
		arrowProps := pqarrow.NewArrowWriterProperties(pqarrow.WithStoreSchema())

		fw, err := pqarrow.NewFileWriter(schema, out, writerProps, arrowProps)
		if err != nil {
			return fmt.Errorf("failed to create Parquet writer: %w", err)
		}

		if err := w.writeBatches(ctx, fw, schema, t); err != nil {
			fw.Close()
			return err
		}
		return fw.Close()
	})
	return err
}

func (w *ParquetWriter) schema(t *table.Table) *arrow.Schema {
	columns := t.Columns()
	fields := make([]arrow.Field, len(columns))
	for i, col := range columns {
		fields[i] = arrow.Field{Name: col, Type: InferType(t, col), Nullable: true}
	}

	keys := []string{"geoflow.version", "geoflow.created_at", "geoflow.columns"}
	values := []string{Version, time.Now().UTC().Format(time.RFC3339), strconv.Itoa(len(columns))}
	for k, v := range w.opts.Metadata {
		keys = append(keys, "geoflow."+k)
		values = append(values, v)
	}
	meta := arrow.NewMetadata(keys, values)
	return arrow.NewSchema(fields, &meta)
}

func (w *ParquetWriter) writeBatches(ctx context.Context, fw *pqarrow.FileWriter, schema *arrow.Schema, t *table.Table) error {
	rb := array.NewRecordBuilder(w.alloc, schema)
	defer rb.Release()

	rows := t.Rows()
	for start := 0; start < len(rows); start += w.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+w.opts.BatchSize, len(rows))

		for i, field := range schema.Fields() {
			appendColumn(rb.Field(i), field, rows[start:end])
		}

		rec := rb.NewRecord()
		err := fw.Write(rec)
		rec.Release()
		if err != nil {
			return fmt.Errorf("failed to write batch: %w", err)
		}
	}
	return nil
}

func appendColumn(b array.Builder, field arrow.Field, rows []*table.Record) {
	for _, row := range rows {
		v, _ := row.Get(field.Name)
		if v == nil {
			b.AppendNull()
			continue
		}
		switch bb := b.(type) {
		case *array.BooleanBuilder:
			bb.Append(v.(bool))
		case *array.Int64Builder:
			bb.Append(toInt64(v))
		case *array.Float64Builder:
			bb.Append(toFloat64(v))
		case *array.StringBuilder:
			bb.Append(table.FormatValue(v))
		}
	}
}

// InferType picks the narrowest Arrow type that holds every non-null value
// of a column. Columns with only nulls are strings.
func InferType(t *table.Table, col string) arrow.DataType {
	var sawBool, sawInt, sawFloat, sawOther bool
	for _, row := range t.Rows() {
		v, _ := row.Get(col)
		switch v.(type) {
		case nil:
		case bool:
			sawBool = true
		case int64, int:
			sawInt = true
		case float64:
			sawFloat = true
		default:
			sawOther = true
		}
	}

	switch {
	case sawOther:
		return arrow.BinaryTypes.String
	case sawBool && !sawInt && !sawFloat:
		return arrow.FixedWidthTypes.Boolean
	case sawBool:
		return arrow.BinaryTypes.String
	case sawFloat:
		return arrow.PrimitiveTypes.Float64
	case sawInt:
		return arrow.PrimitiveTypes.Int64
	default:
		return arrow.BinaryTypes.String
	}
}

func toInt64(v table.Value) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case int:
		return int64(x)
	}
	return 0
}

func toFloat64(v table.Value) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	}
	return 0
}

func codec(c core.Compression) compress.Compression {
	switch c {
	case core.CompressionSnappy:
		return compress.Codecs.Snappy
	case core.CompressionGzip:
		return compress.Codecs.Gzip
	case core.CompressionLZ4:
		return compress.Codecs.Lz4
	case core.CompressionZstd:
		return compress.Codecs.Zstd
	case core.CompressionBrotli:
		return compress.Codecs.Brotli
	default:
		return compress.Codecs.Uncompressed
	}
}
