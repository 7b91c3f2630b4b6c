// Package sources provides Source implementations and the directory walker.
package sources

import (
	"context"
	"io"
	"os"
)

// FileSource implements core.Source for local files.
type FileSource struct {
	path string
	size int64
}

// NewFileSource creates a new file source.
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{path: path, size: info.Size()}, nil
}

func (f *FileSource) Location() string { return f.path }
func (f *FileSource) Size() int64      { return f.size }

// Open returns a reader for the file.
func (f *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return os.Open(f.path)
}
