package detect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/geoflow/pkg/capability"
	gferrors "github.com/logflow/geoflow/pkg/errors"
	"github.com/logflow/geoflow/pkg/geometry"
	"github.com/logflow/geoflow/pkg/ingest/core"
	"github.com/logflow/geoflow/pkg/ingest/decoders"
	"github.com/logflow/geoflow/pkg/ingest/detect"
	"github.com/logflow/geoflow/pkg/ingest/sources"
)

func document(path, content string) *core.Document {
	return &core.Document{
		Source: sources.NewMemorySource(path, []byte(content)),
		Data:   []byte(content),
	}
}

func dispatcher(objectLists bool) *detect.Dispatcher {
	caps := capability.NewSet(geometry.Planar{}, decoders.MXJ{}, nil, nil)
	return detect.NewDispatcher(decoders.Standard(caps, objectLists).Decoders()...)
}

func TestDispatch_Routes(t *testing.T) {
	d := dispatcher(false)
	tests := []struct {
		path    string
		content string
		want    core.Format
	}{
		{"a.geojson", `{"type":"FeatureCollection","features":[]}`, core.FormatGeoJSON},
		{"a.json", `{"type":"FeatureCollection","features":[]}`, core.FormatGeoJSON},
		{"a.json", "\ufeff [ {\"a\":1} ]", core.FormatJSONArray},
		{"A.CSV", "a,b\n1,2\n", core.FormatCSV},
		{"a.xml", "<r><i/><i/></r>", core.FormatXML},
	}
	for _, tt := range tests {
		t.Run(tt.path+"/"+tt.want.String(), func(t *testing.T) {
			dec, err := d.Dispatch(document(tt.path, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, dec.Format())
		})
	}
}

func TestDispatch_Skips(t *testing.T) {
	d := dispatcher(false)

	_, err := d.Dispatch(document("notes.txt", "hello"))
	assert.True(t, gferrors.IsCode(err, gferrors.CodeUnsupported))

	_, err = d.Dispatch(document("README", "hello"))
	assert.True(t, gferrors.IsCode(err, gferrors.CodeUnsupported))

	_, err = d.Dispatch(document("obj.json", `{"items":[{"a":1}]}`))
	assert.True(t, gferrors.IsCode(err, gferrors.CodeUnsupported))

	_, err = d.Dispatch(document("bad.json", `{"type":`))
	assert.True(t, gferrors.IsCode(err, gferrors.CodeParseFailed))

	_, err = d.Dispatch(document("bad.geojson", "broken"))
	assert.True(t, gferrors.IsCode(err, gferrors.CodeParseFailed))
}

func TestDispatch_ObjectListsOptIn(t *testing.T) {
	dec, err := dispatcher(true).Dispatch(document("obj.json", `{"items":[{"a":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, core.FormatJSONObjectList, dec.Format())

	// FeatureCollections still win.
	dec, err = dispatcher(true).Dispatch(document("fc.json", `{"type":"FeatureCollection","features":[{"type":"Feature"}]}`))
	require.NoError(t, err)
	assert.Equal(t, core.FormatGeoJSON, dec.Format())
}

func TestDispatcher_Formats(t *testing.T) {
	assert.Equal(t,
		[]core.Format{core.FormatGeoJSON, core.FormatJSONArray, core.FormatCSV, core.FormatXML},
		dispatcher(false).Formats())
}

func TestJSONShape(t *testing.T) {
	assert.Equal(t, detect.ShapeObject, detect.JSONShape([]byte(` {"a":1}`)))
	assert.Equal(t, detect.ShapeArray, detect.JSONShape([]byte(`[]`)))
	assert.Equal(t, detect.ShapeScalar, detect.JSONShape([]byte(`"x"`)))
	assert.Equal(t, detect.ShapeInvalid, detect.JSONShape([]byte(`[1,`)))
	assert.Equal(t, detect.ShapeInvalid, detect.JSONShape(nil))
}

func TestDelimiter(t *testing.T) {
	assert.Equal(t, ',', detect.Delimiter([]byte("a,b,c\n1,2,3\n")))
	assert.Equal(t, ';', detect.Delimiter([]byte("a;b\n1;2\n3;4")))
	assert.Equal(t, '\t', detect.Delimiter([]byte("a\tb\n\"x,y\"\t2\n")))
	assert.Equal(t, '|', detect.Delimiter([]byte("a|b|c\n1|2|3\n")))
	assert.Equal(t, ',', detect.Delimiter([]byte("single\n")))
}

func TestDetectEncoding(t *testing.T) {
	assert.Equal(t, detect.EncodingUnknown, detect.DetectEncoding(nil))
	assert.Equal(t, detect.EncodingASCII, detect.DetectEncoding([]byte("abc")))
	assert.Equal(t, detect.EncodingUTF8, detect.DetectEncoding([]byte("São")))
	assert.Equal(t, detect.EncodingUTF8BOM, detect.DetectEncoding([]byte("\xef\xbb\xbfa")))
	assert.Equal(t, detect.EncodingUTF16LE, detect.DetectEncoding([]byte("\xff\xfea\x00")))
	assert.Equal(t, detect.EncodingUTF16BE, detect.DetectEncoding([]byte("\xfe\xff\x00a")))
	assert.Equal(t, detect.EncodingLatin1, detect.DetectEncoding([]byte("S\xe3o")))

	assert.Equal(t, "São", string(detect.Latin1ToUTF8([]byte("S\xe3o"))))
}
