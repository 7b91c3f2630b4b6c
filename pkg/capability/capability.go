// Package capability models the optional features of a run: geometry
// centroids, XML structuring and columnar output. Each is resolved once at
// startup and queried per use, so parsing code never checks for libraries
// itself.
package capability

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	gferrors "github.com/logflow/geoflow/pkg/errors"
	"github.com/logflow/geoflow/pkg/table"
)

// Capability names, used in notices and summaries.
const (
	NameGeometry = "geometry"
	NameXML      = "xml"
	NameColumnar = "columnar"
)

// ErrUnavailable is returned by disabled capabilities.
var ErrUnavailable = errors.New("capability unavailable")

// Geometry computes a representative point for a raw GeoJSON geometry.
type Geometry interface {
	Centroid(geometry []byte) (lon, lat float64, err error)
}

// XML converts an XML document into a nested map.
type XML interface {
	Structure(doc []byte) (map[string]any, error)
}

// Columnar writes a table in a columnar binary format.
type Columnar interface {
	// Ext is the file extension of the artifact, including the dot.
	Ext() string
	WriteColumnar(ctx context.Context, t *table.Table, path string) error
}

// Set is the resolved capability set for one run.
type Set struct {
	Geometry Geometry
	XML      XML
	Columnar Columnar

	logger  *slog.Logger
	mu      sync.Mutex
	noticed map[string]bool
	notices []string
}

// NewSet builds a capability set. Nil members are replaced by their
// unavailable variants.
func NewSet(geom Geometry, xml XML, col Columnar, logger *slog.Logger) *Set {
	if geom == nil {
		geom = NoGeometry{}
	}
	if xml == nil {
		xml = NoXML{}
	}
	if col == nil {
		col = NoColumnar{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Set{
		Geometry: geom,
		XML:      xml,
		Columnar: col,
		logger:   logger,
		noticed:  make(map[string]bool),
	}
}

// Available reports whether the named capability is enabled.
func (s *Set) Available(name string) bool {
	switch name {
	case NameGeometry:
		_, off := s.Geometry.(NoGeometry)
		return !off
	case NameXML:
		_, off := s.XML.(NoXML)
		return !off
	case NameColumnar:
		_, off := s.Columnar.(NoColumnar)
		return !off
	}
	return false
}

// Unavailable records a one-time notice for a disabled capability and
// returns the matching coded error.
func (s *Set) Unavailable(name, effect string) error {
	s.mu.Lock()
	first := !s.noticed[name]
	if first {
		s.noticed[name] = true
		s.notices = append(s.notices, name+": "+effect)
	}
	s.mu.Unlock()

	if first {
		s.logger.Warn("capability unavailable", "capability", name, "effect", effect)
	}
	return gferrors.CapabilityUnavailable(name)
}

// Notices returns the capability notices raised so far.
func (s *Set) Notices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.notices))
	copy(out, s.notices)
	return out
}

// NoGeometry is the degraded geometry capability.
type NoGeometry struct{}

func (NoGeometry) Centroid([]byte) (float64, float64, error) { return 0, 0, ErrUnavailable }

// NoXML is the degraded XML capability.
type NoXML struct{}

func (NoXML) Structure([]byte) (map[string]any, error) { return nil, ErrUnavailable }

// NoColumnar is the degraded columnar capability.
type NoColumnar struct{}

func (NoColumnar) Ext() string { return "" }

func (NoColumnar) WriteColumnar(context.Context, *table.Table, string) error {
	return ErrUnavailable
}
