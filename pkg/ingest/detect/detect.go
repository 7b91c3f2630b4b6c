// Package detect classifies loaded documents and routes them to a decoder.
package detect

import (
	"fmt"

	gferrors "github.com/logflow/geoflow/pkg/errors"
	"github.com/logflow/geoflow/pkg/ingest/core"
)

// Dispatcher is an ordered chain of decoders. The first decoder whose
// Match accepts a document handles it.
type Dispatcher struct {
	chain []core.Decoder
}

// NewDispatcher creates a dispatcher that tries decoders in the given order.
func NewDispatcher(chain ...core.Decoder) *Dispatcher {
	return &Dispatcher{chain: chain}
}

// Formats returns the formats of the chain, in priority order.
func (d *Dispatcher) Formats() []core.Format {
	formats := make([]core.Format, len(d.chain))
	for i, dec := range d.chain {
		formats[i] = dec.Format()
	}
	return formats
}

// Dispatch returns the decoder for doc. When nothing matches, the error is
// a ParseError for .json/.geojson files that are not valid JSON, and
// Unsupported otherwise. Neither is fatal to a run.
func (d *Dispatcher) Dispatch(doc *core.Document) (core.Decoder, error) {
	for _, dec := range d.chain {
		if dec.Match(doc) {
			return dec, nil
		}
	}

	switch ext := doc.Ext(); ext {
	case ".json", ".geojson":
		shape := JSONShape(doc.Body())
		if shape == ShapeInvalid {
			return nil, gferrors.ParseError(doc.Path(), "json", fmt.Errorf("document is not valid JSON"))
		}
		return nil, gferrors.Unsupported(doc.Path(), fmt.Sprintf("top-level %s is neither a FeatureCollection nor an array", shape))
	case "":
		return nil, gferrors.Unsupported(doc.Path(), "no file extension")
	default:
		return nil, gferrors.Unsupported(doc.Path(), fmt.Sprintf("no decoder for %s files", ext))
	}
}
