package decoders

import (
	"context"
	"encoding/json"
	"fmt"

	gferrors "github.com/logflow/geoflow/pkg/errors"
	"github.com/logflow/geoflow/pkg/ingest/core"
	"github.com/logflow/geoflow/pkg/table"
)

// JSONArrayDecoder decodes a top-level array of objects, one row per element.
type JSONArrayDecoder struct{}

// NewJSONArrayDecoder creates a JSON array decoder.
func NewJSONArrayDecoder() *JSONArrayDecoder {
	return &JSONArrayDecoder{}
}

// Format implements core.Decoder.
func (d *JSONArrayDecoder) Format() core.Format {
	return core.FormatJSONArray
}

// Match implements core.Decoder.
func (d *JSONArrayDecoder) Match(doc *core.Document) bool {
	return doc.Ext() == ".json" && doc.FirstByte() == '['
}

// Decode implements core.Decoder. Any element that is not an object fails
// the whole file.
func (d *JSONArrayDecoder) Decode(ctx context.Context, doc *core.Document, opts core.DecodeOptions) (*core.Result, error) {
	fail := func(err error) (*core.Result, error) {
		return nil, gferrors.ParseError(doc.Path(), d.Format().String(), err)
	}

	dec := newJSONDecoder(doc.Body())
	tok, err := dec.Token()
	if err != nil {
		return fail(err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fail(fmt.Errorf("top-level value is not an array"))
	}

	res := &core.Result{}
	for i := 0; dec.More(); i++ {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, gferrors.Canceled("decode " + doc.Path())
		}

		v, err := readValue(dec)
		if err != nil {
			return fail(err)
		}
		obj, ok := v.(*object)
		if !ok {
			return fail(fmt.Errorf("element %d is %s, not an object", i, kindOf(v)))
		}
		res.Records = append(res.Records, flatten(obj, opts))
	}

	if _, err := dec.Token(); err != nil {
		return fail(err)
	}
	if err := expectEOF(dec); err != nil {
		return fail(err)
	}
	return res, nil
}

// JSONObjectListDecoder decodes a top-level object holding a list of
// objects under one of its keys. Rows are tagged with that key in _root_key.
type JSONObjectListDecoder struct{}

// NewJSONObjectListDecoder creates an object-list decoder.
func NewJSONObjectListDecoder() *JSONObjectListDecoder {
	return &JSONObjectListDecoder{}
}

// Format implements core.Decoder.
func (d *JSONObjectListDecoder) Format() core.Format {
	return core.FormatJSONObjectList
}

// Match implements core.Decoder.
func (d *JSONObjectListDecoder) Match(doc *core.Document) bool {
	if doc.Ext() != ".json" || doc.FirstByte() != '{' {
		return false
	}
	v, err := readDocument(doc.Body())
	if err != nil {
		return false
	}
	obj, ok := v.(*object)
	if !ok {
		return false
	}
	key, _ := objectList(obj)
	return key != ""
}

// objectList returns the first key, in document order, whose value is a
// non-empty list starting with an object.
func objectList(obj *object) (string, []any) {
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		list, ok := pair.Value.([]any)
		if !ok || len(list) == 0 {
			continue
		}
		if _, ok := list[0].(*object); ok {
			return pair.Key, list
		}
	}
	return "", nil
}

// Decode implements core.Decoder. Non-object items after the first are row
// errors.
func (d *JSONObjectListDecoder) Decode(ctx context.Context, doc *core.Document, opts core.DecodeOptions) (*core.Result, error) {
	v, err := readDocument(doc.Body())
	if err != nil {
		return nil, gferrors.ParseError(doc.Path(), d.Format().String(), err)
	}
	obj, ok := v.(*object)
	if !ok {
		return nil, gferrors.ParseError(doc.Path(), d.Format().String(), fmt.Errorf("top-level value is not an object"))
	}
	key, list := objectList(obj)
	if key == "" {
		return nil, gferrors.ParseError(doc.Path(), d.Format().String(), fmt.Errorf("no key holds a list of objects"))
	}

	res := &core.Result{Records: make([]*table.Record, 0, len(list))}
	for i, item := range list {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, gferrors.Canceled("decode " + doc.Path())
		}

		itemObj, ok := item.(*object)
		if !ok {
			res.RowErrors = append(res.RowErrors, core.RowError{
				RowNumber: int64(i + 1),
				Error: gferrors.New(gferrors.CodeRowShape, fmt.Sprintf("%s item is %s, not an object", key, kindOf(item))).
					WithContext("path", doc.Path()).
					WithContext("row", i+1),
			})
			continue
		}
		rec := flatten(itemObj, opts)
		rec.Set(table.ColSourceFile, doc.Path())
		rec.Set(table.ColRootKey, key)
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case *object:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	default:
		return "a number"
	}
}
