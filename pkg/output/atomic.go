// Package output writes the master table to its artifacts: CSV always,
// Parquet and XLSX on request. Every artifact is written to a temp file in
// the target directory and renamed into place only on success.
package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/logflow/geoflow/pkg/ingest/core"
)

// writeAtomic streams write into a temp file next to path, then renames it.
// A failed write leaves no partial file behind.
func writeAtomic(path, format string, rows int64, write func(w io.Writer) error) (*core.SinkResult, error) {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tmp.Name()

	// Close is hidden so writers that close their sink leave tmp to us.
	if err := write(struct{ io.Writer }{tmp}); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to rename temp file to final path: %w", err)
	}

	var size int64
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	return &core.SinkResult{
		Path:         path,
		Format:       format,
		RowsWritten:  rows,
		BytesWritten: size,
		Duration:     time.Since(start),
	}, nil
}
