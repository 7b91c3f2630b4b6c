package decoders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/logflow/geoflow/pkg/ingest/core"
	"github.com/logflow/geoflow/pkg/table"
)

// object is a JSON object that remembers its key order.
type object = orderedmap.OrderedMap[string, any]

func newObject() *object {
	return orderedmap.New[string, any]()
}

// newJSONDecoder returns a decoder that keeps integers exact.
func newJSONDecoder(data []byte) *json.Decoder {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec
}

// readDocument parses a whole JSON document and rejects trailing content.
func readDocument(data []byte) (any, error) {
	dec := newJSONDecoder(data)
	v, err := readValue(dec)
	if err != nil {
		return nil, err
	}
	if err := expectEOF(dec); err != nil {
		return nil, err
	}
	return v, nil
}

func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return fmt.Errorf("unexpected content after top-level value at offset %d", dec.InputOffset())
		}
		return err
	}
	return nil
}

// readValue reads one JSON value from the token stream. Objects come back
// as *object, arrays as []any, numbers as int64 or float64.
func readValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := newObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T", kt)
				}
				v, err := readValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				v, err := readValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %q", t)
	case json.Number:
		return numberValue(t), nil
	default:
		// string, bool or nil
		return t, nil
	}
}

// numberValue keeps integers that fit in int64 and falls back to float64.
func numberValue(n json.Number) table.Value {
	if i, err := strconv.ParseInt(string(n), 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(string(n), 64); err == nil {
		return f
	}
	return string(n)
}

// sortedObject converts an unordered map tree into objects with sorted keys.
func sortedObject(m map[string]any) *object {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	obj := newObject()
	for _, k := range keys {
		obj.Set(k, sortedValue(m[k]))
	}
	return obj
}

func sortedValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return sortedObject(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = sortedValue(item)
		}
		return out
	default:
		return v
	}
}

// flatten turns an object into a record of scalar columns.
func flatten(obj *object, opts core.DecodeOptions) *table.Record {
	rec := table.NewRecord()
	if obj == nil {
		return rec
	}
	flattenInto(rec, "", obj, opts)
	return rec
}

func flattenInto(rec *table.Record, prefix string, obj *object, opts core.DecodeOptions) {
	for pair := obj.Oldest(); pair != nil; pair = pair.Next() {
		key := pair.Key
		if prefix != "" {
			key = prefix + opts.Separator + key
		}

		if nested, ok := pair.Value.(*object); ok && opts.Flatten == core.FlattenExpand {
			flattenInto(rec, key, nested, opts)
			continue
		}
		rec.Set(key, scalar(pair.Value))
	}
}

// scalar serializes nested values to compact JSON text.
func scalar(v any) table.Value {
	switch v.(type) {
	case *object, []any:
		return compactJSON(v)
	default:
		return v
	}
}

func compactJSON(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}
