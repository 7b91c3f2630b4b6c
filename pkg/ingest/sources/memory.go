package sources

import (
	"bytes"
	"context"
	"io"
)

// MemorySource provides data from memory (for testing).
type MemorySource struct {
	path string
	data []byte
}

// NewMemorySource creates a source from bytes. path is reported as the
// source location, so its extension drives dispatch.
func NewMemorySource(path string, data []byte) *MemorySource {
	return &MemorySource{path: path, data: data}
}

func (m *MemorySource) Location() string { return m.path }
func (m *MemorySource) Size() int64      { return int64(len(m.data)) }

// Open returns a reader for the data.
func (m *MemorySource) Open(ctx context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.data)), nil
}
