package decoders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/logflow/geoflow/pkg/capability"
	gferrors "github.com/logflow/geoflow/pkg/errors"
	"github.com/logflow/geoflow/pkg/geometry"
	"github.com/logflow/geoflow/pkg/ingest/core"
	"github.com/logflow/geoflow/pkg/ingest/detect"
	"github.com/logflow/geoflow/pkg/table"
)

// GeoJSONDecoder decodes FeatureCollections. Each feature becomes one row of
// flattened properties followed by _source_file, _geom_type, _lon and _lat.
type GeoJSONDecoder struct {
	caps *capability.Set
}

// NewGeoJSONDecoder creates a GeoJSON decoder backed by the run's
// geometry capability.
func NewGeoJSONDecoder(caps *capability.Set) *GeoJSONDecoder {
	return &GeoJSONDecoder{caps: caps}
}

// Format implements core.Decoder.
func (d *GeoJSONDecoder) Format() core.Format {
	return core.FormatGeoJSON
}

// Match implements core.Decoder.
func (d *GeoJSONDecoder) Match(doc *core.Document) bool {
	switch doc.Ext() {
	case ".geojson", ".json":
		return doc.FirstByte() == '{' && detect.IsFeatureCollection(doc.Body())
	}
	return false
}

type featureCollection struct {
	Features json.RawMessage `json:"features"`
}

type feature struct {
	Properties json.RawMessage `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// Decode implements core.Decoder.
func (d *GeoJSONDecoder) Decode(ctx context.Context, doc *core.Document, opts core.DecodeOptions) (*core.Result, error) {
	var fc featureCollection
	if err := json.Unmarshal(doc.Body(), &fc); err != nil {
		return nil, gferrors.ParseError(doc.Path(), d.Format().String(), err)
	}

	var raw []json.RawMessage
	if bytes.HasPrefix(bytes.TrimSpace(fc.Features), []byte("[")) {
		if err := json.Unmarshal(fc.Features, &raw); err != nil {
			return nil, gferrors.ParseError(doc.Path(), d.Format().String(), err)
		}
	} else {
		return nil, gferrors.ParseError(doc.Path(), d.Format().String(), fmt.Errorf("features is not an array"))
	}

	res := &core.Result{Records: make([]*table.Record, 0, len(raw))}
	for i, item := range raw {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, gferrors.Canceled("decode " + doc.Path())
		}

		rec, degraded, err := d.decodeFeature(item, doc.Path(), opts)
		if err != nil {
			res.RowErrors = append(res.RowErrors, core.RowError{
				RowNumber: int64(i + 1),
				Error:     gferrors.Wrapf(err, gferrors.CodeRowShape, "feature %d skipped", i+1).WithContext("path", doc.Path()),
			})
			continue
		}
		if degraded && !res.Degraded {
			res.Degraded = true
			d.caps.Unavailable(capability.NameGeometry, "centroids of non-point geometries are left null")
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func (d *GeoJSONDecoder) decodeFeature(raw json.RawMessage, path string, opts core.DecodeOptions) (*table.Record, bool, error) {
	var f feature
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false, fmt.Errorf("feature is null")
	}
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, false, fmt.Errorf("feature is not an object: %w", err)
	}

	var props *object
	if len(f.Properties) > 0 && string(f.Properties) != "null" {
		v, err := readDocument(f.Properties)
		if err != nil {
			return nil, false, err
		}
		obj, ok := v.(*object)
		if !ok {
			return nil, false, fmt.Errorf("properties is not an object")
		}
		props = obj
	}

	rec := flatten(props, opts)
	rec.Set(table.ColSourceFile, path)

	g := geometry.Extract(f.Geometry, d.caps.Geometry)
	g.Apply(rec)
	return rec, g.Degraded, nil
}
