// Package decoders turns loaded documents into ordered records, one decoder
// per supported format.
package decoders

import (
	"sync"

	"github.com/logflow/geoflow/pkg/capability"
	"github.com/logflow/geoflow/pkg/ingest/core"
)

// Registry holds decoders in priority order.
type Registry struct {
	mu       sync.RWMutex
	decoders []core.Decoder
}

// NewRegistry creates an empty decoder registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Standard returns the default chain: GeoJSON, JSON array, the optional
// object-list decoder, CSV and XML.
func Standard(caps *capability.Set, objectLists bool) *Registry {
	r := NewRegistry()
	r.Register(NewGeoJSONDecoder(caps))
	r.Register(NewJSONArrayDecoder())
	if objectLists {
		r.Register(NewJSONObjectListDecoder())
	}
	r.Register(NewCSVDecoder())
	r.Register(NewXMLDecoder(caps))
	return r
}

// Register appends a decoder, or replaces the one already registered for
// its format while keeping that position.
func (r *Registry) Register(decoder core.Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, d := range r.decoders {
		if d.Format() == decoder.Format() {
			r.decoders[i] = decoder
			return
		}
	}
	r.decoders = append(r.decoders, decoder)
}

// Decoders returns the registered decoders in priority order.
func (r *Registry) Decoders() []core.Decoder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.Decoder, len(r.decoders))
	copy(out, r.decoders)
	return out
}
