package core

import (
	"context"

	"github.com/logflow/geoflow/pkg/table"
)

// Decoder turns a loaded document into ordered records.
type Decoder interface {
	// Format returns the format this decoder handles.
	Format() Format

	// Match reports whether the decoder claims the document.
	Match(doc *Document) bool

	// Decode parses the document. A returned error means the whole file is
	// skipped; row-level problems go into Result.RowErrors.
	Decode(ctx context.Context, doc *Document, opts DecodeOptions) (*Result, error)
}

// FlattenMode controls how nested JSON values become columns.
type FlattenMode uint8

const (
	// FlattenText serializes nested objects and arrays to JSON text.
	FlattenText FlattenMode = iota
	// FlattenExpand expands nested objects into parent_child columns.
	FlattenExpand
)

func (m FlattenMode) String() string {
	if m == FlattenExpand {
		return "expand"
	}
	return "text"
}

// ParseFlattenMode parses a flatten mode name; unknown names mean text.
func ParseFlattenMode(s string) FlattenMode {
	if s == "expand" {
		return FlattenExpand
	}
	return FlattenText
}

// DecodeOptions configures decoding behavior.
type DecodeOptions struct {
	// Flatten selects nested-value handling for JSON and XML.
	Flatten FlattenMode

	// Separator joins nested keys in FlattenExpand mode.
	Separator string

	// Delimiter is the CSV field delimiter.
	Delimiter rune

	// NormalizeCoordinates renames common lat/lon CSV headers to _lat/_lon.
	NormalizeCoordinates bool
}

// DefaultDecodeOptions returns sensible defaults.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{
		Flatten:   FlattenText,
		Separator: "_",
		Delimiter: ',',
	}
}

// Result is the outcome of decoding one document.
type Result struct {
	Records   []*table.Record
	RowErrors []RowError

	// Degraded is set when a capability was missing and some values
	// (for example centroids) were left null.
	Degraded bool
}

// RowError represents an error in a specific row.
type RowError struct {
	RowNumber int64
	Error     error
}
