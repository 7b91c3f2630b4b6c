package core

import (
	"time"
)

// SinkOptions configures artifact writers.
type SinkOptions struct {
	// Compression algorithm for columnar output.
	Compression Compression

	// BatchSize is the number of rows per record batch.
	BatchSize int

	// Metadata to include in output footers.
	Metadata map[string]string
}

// DefaultSinkOptions returns sensible defaults.
func DefaultSinkOptions() SinkOptions {
	return SinkOptions{
		Compression: CompressionSnappy,
		BatchSize:   8192,
	}
}

// SinkResult contains the outcome of writing one artifact.
type SinkResult struct {
	Path         string
	Format       string
	RowsWritten  int64
	BytesWritten int64
	Duration     time.Duration
}

// Compression represents compression algorithms.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionSnappy
	CompressionGzip
	CompressionLZ4
	CompressionZstd
	CompressionBrotli
)

func (c Compression) String() string {
	names := []string{"none", "snappy", "gzip", "lz4", "zstd", "brotli"}
	if int(c) < len(names) {
		return names[c]
	}
	return "unknown"
}

// ParseCompression parses a compression string.
func ParseCompression(s string) Compression {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "lz4":
		return CompressionLZ4
	case "zstd":
		return CompressionZstd
	case "brotli":
		return CompressionBrotli
	case "none", "":
		return CompressionNone
	default:
		return CompressionSnappy
	}
}
