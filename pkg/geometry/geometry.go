// Package geometry extracts _geom_type, _lon and _lat from GeoJSON
// geometries.
//
// Points are read directly. Every other type goes through the geometry
// capability, whose orb-backed implementation (Planar) uses:
//
//   - LineString, MultiPoint: arithmetic mean of the vertices
//   - Polygon, MultiPolygon: area-weighted planar centroid, holes subtracted
//   - MultiLineString: length-weighted planar centroid
//   - GeometryCollection: centroid of the highest-dimension members
package geometry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/logflow/geoflow/pkg/capability"
	"github.com/logflow/geoflow/pkg/table"
)

// GeoJSON geometry type names.
const (
	TypePoint              = "Point"
	TypeMultiPoint         = "MultiPoint"
	TypeLineString         = "LineString"
	TypeMultiLineString    = "MultiLineString"
	TypePolygon            = "Polygon"
	TypeMultiPolygon       = "MultiPolygon"
	TypeGeometryCollection = "GeometryCollection"
)

var knownTypes = map[string]bool{
	TypePoint:              true,
	TypeMultiPoint:         true,
	TypeLineString:         true,
	TypeMultiLineString:    true,
	TypePolygon:            true,
	TypeMultiPolygon:       true,
	TypeGeometryCollection: true,
}

var errEmpty = errors.New("geometry has no coordinates")

// Result is the extracted geometry summary for one feature.
// Type is empty when the geometry is absent or malformed.
type Result struct {
	Type     string
	Lon, Lat *float64

	// Degraded is set when the centroid was skipped because the
	// geometry capability is disabled.
	Degraded bool
}

// Apply writes the geometry columns onto rec. Absent values become nulls.
func (r Result) Apply(rec *table.Record) {
	if r.Type == "" {
		rec.Set(table.ColGeomType, nil)
	} else {
		rec.Set(table.ColGeomType, r.Type)
	}
	rec.Set(table.ColLon, floatValue(r.Lon))
	rec.Set(table.ColLat, floatValue(r.Lat))
}

func floatValue(f *float64) table.Value {
	if f == nil {
		return nil
	}
	return *f
}

type geometryHead struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Extract summarizes a raw GeoJSON geometry. A nil, null, empty or
// malformed geometry yields the zero Result.
func Extract(raw []byte, geom capability.Geometry) Result {
	if len(raw) == 0 || string(raw) == "null" {
		return Result{}
	}

	var head geometryHead
	if err := json.Unmarshal(raw, &head); err != nil || !knownTypes[head.Type] {
		return Result{}
	}

	if head.Type == TypePoint {
		lon, lat, err := pointCoordinates(head.Coordinates)
		if err != nil {
			return Result{}
		}
		return Result{Type: head.Type, Lon: &lon, Lat: &lat}
	}

	// Empty geometries are treated as missing whether or not centroids
	// are available.
	if !hasVertex(raw) {
		return Result{}
	}

	lon, lat, err := geom.Centroid(raw)
	switch {
	case errors.Is(err, capability.ErrUnavailable):
		return Result{Type: head.Type, Degraded: true}
	case err != nil:
		return Result{}
	}
	return Result{Type: head.Type, Lon: &lon, Lat: &lat}
}

type geometryBody struct {
	Coordinates json.RawMessage   `json:"coordinates"`
	Geometries  []json.RawMessage `json:"geometries"`
}

// hasVertex reports whether a geometry holds at least one number in its
// coordinates, or in those of any collection member.
func hasVertex(raw []byte) bool {
	var body geometryBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return false
	}
	for _, member := range body.Geometries {
		if hasVertex(member) {
			return true
		}
	}
	if len(body.Coordinates) == 0 {
		return false
	}
	var coords any
	if err := json.Unmarshal(body.Coordinates, &coords); err != nil {
		return false
	}
	return hasNumber(coords)
}

func hasNumber(v any) bool {
	switch x := v.(type) {
	case float64:
		return true
	case []any:
		for _, item := range x {
			if hasNumber(item) {
				return true
			}
		}
	}
	return false
}

func pointCoordinates(raw json.RawMessage) (float64, float64, error) {
	var coords []float64
	if err := json.Unmarshal(raw, &coords); err != nil {
		return 0, 0, err
	}
	if len(coords) < 2 {
		return 0, 0, fmt.Errorf("point needs 2 coordinates, got %d", len(coords))
	}
	if !finite(coords[0]) || !finite(coords[1]) {
		return 0, 0, fmt.Errorf("point coordinates are not finite")
	}
	return coords[0], coords[1], nil
}

// Planar is the orb-backed geometry capability.
type Planar struct{}

// Centroid implements capability.Geometry.
func (Planar) Centroid(raw []byte) (float64, float64, error) {
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return 0, 0, err
	}

	geom := g.Geometry()
	if geom == nil || vertexCount(geom) == 0 {
		return 0, 0, errEmpty
	}

	var c orb.Point
	switch v := geom.(type) {
	case orb.Point:
		c = v
	case orb.LineString:
		c = vertexMean(v)
	case orb.MultiPoint:
		c = vertexMean(v)
	default:
		c, _ = planar.CentroidArea(geom)
	}

	if !finite(c.Lon()) || !finite(c.Lat()) {
		return 0, 0, fmt.Errorf("centroid is not finite")
	}
	return c.Lon(), c.Lat(), nil
}

func vertexMean(points []orb.Point) orb.Point {
	var sx, sy float64
	for _, p := range points {
		sx += p[0]
		sy += p[1]
	}
	n := float64(len(points))
	return orb.Point{sx / n, sy / n}
}

func vertexCount(g orb.Geometry) int {
	switch v := g.(type) {
	case orb.Point:
		return 1
	case orb.MultiPoint:
		return len(v)
	case orb.LineString:
		return len(v)
	case orb.Ring:
		return len(v)
	case orb.MultiLineString:
		n := 0
		for _, ls := range v {
			n += len(ls)
		}
		return n
	case orb.Polygon:
		n := 0
		for _, r := range v {
			n += len(r)
		}
		return n
	case orb.MultiPolygon:
		n := 0
		for _, p := range v {
			n += vertexCount(p)
		}
		return n
	case orb.Collection:
		n := 0
		for _, m := range v {
			n += vertexCount(m)
		}
		return n
	default:
		return 0
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
