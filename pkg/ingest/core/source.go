// Package core provides the contracts shared by the walker, dispatcher and
// decoders.
package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// Format represents a dispatched file format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatGeoJSON
	FormatJSONArray
	FormatJSONObjectList
	FormatCSV
	FormatXML
)

func (f Format) String() string {
	names := []string{"unknown", "geojson", "json-array", "json-object-list", "csv", "xml"}
	if int(f) < len(names) {
		return names[f]
	}
	return "unknown"
}

// Source represents one input file.
type Source interface {
	// Location returns the path reported in _source_file.
	Location() string

	// Size returns the size in bytes, or -1 if unknown.
	Size() int64

	// Open returns a reader for the source content.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Document is a source with its content loaded. Sniffing and decoding
// share the same bytes so each file is read once.
type Document struct {
	Source Source
	Data   []byte
}

// Load reads the whole source into a Document.
func Load(ctx context.Context, src Source) (*Document, error) {
	r, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.Location(), err)
	}
	return &Document{Source: src, Data: data}, nil
}

// Path returns the source location.
func (d *Document) Path() string {
	return d.Source.Location()
}

// Ext returns the lower-cased file extension, including the dot.
func (d *Document) Ext() string {
	return strings.ToLower(filepath.Ext(d.Source.Location()))
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Body returns the content with a UTF-8 BOM removed.
func (d *Document) Body() []byte {
	return bytes.TrimPrefix(d.Data, utf8BOM)
}

// FirstByte returns the first non-whitespace byte after any BOM, or 0.
func (d *Document) FirstByte() byte {
	content := bytes.TrimLeft(d.Body(), " \t\r\n")
	if len(content) == 0 {
		return 0
	}
	return content[0]
}
