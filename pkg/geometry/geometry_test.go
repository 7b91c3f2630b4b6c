package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/geoflow/pkg/capability"
	"github.com/logflow/geoflow/pkg/table"
)

const delta = 1e-9

func TestExtract_PointIsExact(t *testing.T) {
	r := Extract([]byte(`{"type":"Point","coordinates":[103.7686,1.2937]}`), Planar{})

	require.NotNil(t, r.Lon)
	require.NotNil(t, r.Lat)
	assert.Equal(t, TypePoint, r.Type)
	assert.Equal(t, 103.7686, *r.Lon)
	assert.Equal(t, 1.2937, *r.Lat)
}

func TestExtract_PointWithoutCapability(t *testing.T) {
	r := Extract([]byte(`{"type":"Point","coordinates":[1,2,30]}`), capability.NoGeometry{})

	require.NotNil(t, r.Lon)
	assert.Equal(t, 1.0, *r.Lon)
	assert.Equal(t, 2.0, *r.Lat)
	assert.False(t, r.Degraded)
}

func TestExtract_UnitSquare(t *testing.T) {
	raw := `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`
	r := Extract([]byte(raw), Planar{})

	require.NotNil(t, r.Lon)
	assert.Equal(t, TypePolygon, r.Type)
	assert.InDelta(t, 0.5, *r.Lon, delta)
	assert.InDelta(t, 0.5, *r.Lat, delta)
}

func TestExtract_ConcavePolygon(t *testing.T) {
	// L shape: a 2x1 bar plus a 1x1 block on top of its left half.
	raw := `{"type":"Polygon","coordinates":[[[0,0],[2,0],[2,1],[1,1],[1,2],[0,2],[0,0]]]}`
	r := Extract([]byte(raw), Planar{})

	require.NotNil(t, r.Lon)
	assert.InDelta(t, 5.0/6.0, *r.Lon, delta)
	assert.InDelta(t, 5.0/6.0, *r.Lat, delta)
}

func TestExtract_PolygonWithHole(t *testing.T) {
	raw := `{"type":"Polygon","coordinates":[
		[[0,0],[4,0],[4,4],[0,4],[0,0]],
		[[1,1],[1,2],[2,2],[2,1],[1,1]]
	]}`
	r := Extract([]byte(raw), Planar{})

	// (16*2 - 1*1.5) / 15
	require.NotNil(t, r.Lon)
	assert.InDelta(t, 30.5/15, *r.Lon, delta)
	assert.InDelta(t, 30.5/15, *r.Lat, delta)
}

func TestExtract_MultiPolygon(t *testing.T) {
	raw := `{"type":"MultiPolygon","coordinates":[
		[[[0,0],[1,0],[1,1],[0,1],[0,0]]],
		[[[2,0],[3,0],[3,1],[2,1],[2,0]]]
	]}`
	r := Extract([]byte(raw), Planar{})

	require.NotNil(t, r.Lon)
	assert.InDelta(t, 1.5, *r.Lon, delta)
	assert.InDelta(t, 0.5, *r.Lat, delta)
}

func TestExtract_LineStringUsesVertexMean(t *testing.T) {
	raw := `{"type":"LineString","coordinates":[[0,0],[10,0],[10,10]]}`
	r := Extract([]byte(raw), Planar{})

	require.NotNil(t, r.Lon)
	assert.InDelta(t, 20.0/3.0, *r.Lon, delta)
	assert.InDelta(t, 10.0/3.0, *r.Lat, delta)
}

func TestExtract_MultiPoint(t *testing.T) {
	raw := `{"type":"MultiPoint","coordinates":[[0,0],[2,4]]}`
	r := Extract([]byte(raw), Planar{})

	require.NotNil(t, r.Lon)
	assert.InDelta(t, 1.0, *r.Lon, delta)
	assert.InDelta(t, 2.0, *r.Lat, delta)
}

func TestExtract_MultiLineString(t *testing.T) {
	raw := `{"type":"MultiLineString","coordinates":[[[0,0],[2,0]],[[0,2],[2,2]]]}`
	r := Extract([]byte(raw), Planar{})

	require.NotNil(t, r.Lon)
	assert.InDelta(t, 1.0, *r.Lon, delta)
	assert.InDelta(t, 1.0, *r.Lat, delta)
}

func TestExtract_GeometryCollection(t *testing.T) {
	raw := `{"type":"GeometryCollection","geometries":[
		{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
	]}`
	r := Extract([]byte(raw), Planar{})

	assert.Equal(t, TypeGeometryCollection, r.Type)
	require.NotNil(t, r.Lon)
	assert.InDelta(t, 0.5, *r.Lon, delta)
	assert.InDelta(t, 0.5, *r.Lat, delta)
}

func TestExtract_DegradedPolygon(t *testing.T) {
	raw := `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,1],[0,0]]]}`
	r := Extract([]byte(raw), capability.NoGeometry{})

	assert.Equal(t, TypePolygon, r.Type)
	assert.Nil(t, r.Lon)
	assert.Nil(t, r.Lat)
	assert.True(t, r.Degraded)
}

func TestExtract_MissingOrMalformed(t *testing.T) {
	cases := map[string]string{
		"absent":        ``,
		"null":          `null`,
		"not json":      `{"type":`,
		"unknown type":  `{"type":"Circle","coordinates":[0,0]}`,
		"short point":   `{"type":"Point","coordinates":[1]}`,
		"bad coords":    `{"type":"Polygon","coordinates":"nope"}`,
		"empty coords":  `{"type":"LineString","coordinates":[]}`,
		"empty polygon": `{"type":"Polygon","coordinates":[]}`,
		"empty rings":   `{"type":"MultiPolygon","coordinates":[[[]]]}`,
		"empty members": `{"type":"GeometryCollection","geometries":[{"type":"Polygon","coordinates":[]}]}`,
	}
	// Empty and malformed geometries read the same with centroids on or off.
	for capName, geom := range map[string]capability.Geometry{
		"planar":      Planar{},
		"no geometry": capability.NoGeometry{},
	} {
		for name, raw := range cases {
			t.Run(capName+"/"+name, func(t *testing.T) {
				r := Extract([]byte(raw), geom)
				assert.Equal(t, Result{}, r)
			})
		}
	}
}

func TestResult_Apply(t *testing.T) {
	lon, lat := 1.5, -2.5
	rec := table.NewRecord()
	Result{Type: TypePoint, Lon: &lon, Lat: &lat}.Apply(rec)

	assert.Equal(t, []string{table.ColGeomType, table.ColLon, table.ColLat}, rec.Keys())
	v, _ := rec.Get(table.ColLon)
	assert.Equal(t, 1.5, v)

	empty := table.NewRecord()
	Result{}.Apply(empty)
	v, ok := empty.Get(table.ColGeomType)
	assert.True(t, ok)
	assert.Nil(t, v)
}
