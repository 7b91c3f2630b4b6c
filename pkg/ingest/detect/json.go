package detect

import (
	"bytes"
	"encoding/json"
)

// Shape is the kind of a JSON document's top-level value.
type Shape uint8

const (
	ShapeInvalid Shape = iota
	ShapeObject
	ShapeArray
	ShapeScalar
)

func (s Shape) String() string {
	switch s {
	case ShapeObject:
		return "object"
	case ShapeArray:
		return "array"
	case ShapeScalar:
		return "scalar"
	}
	return "invalid"
}

// JSONShape validates body and reports its top-level kind.
func JSONShape(body []byte) Shape {
	if !json.Valid(body) {
		return ShapeInvalid
	}
	content := bytes.TrimLeft(body, " \t\r\n")
	switch content[0] {
	case '{':
		return ShapeObject
	case '[':
		return ShapeArray
	}
	return ShapeScalar
}

// IsFeatureCollection reports whether body is an object whose "type" is
// "FeatureCollection".
func IsFeatureCollection(body []byte) bool {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return false
	}
	return head.Type == "FeatureCollection"
}
