package decoders

import (
	"context"
	"errors"
	"sort"

	"github.com/clbanning/mxj/v2"

	"github.com/logflow/geoflow/pkg/capability"
	gferrors "github.com/logflow/geoflow/pkg/errors"
	"github.com/logflow/geoflow/pkg/ingest/core"
)

// MXJ is the XML capability backed by clbanning/mxj. Attributes become
// "-name" keys and element text with attributes becomes "#text".
type MXJ struct{}

// Structure implements capability.XML.
func (MXJ) Structure(doc []byte) (map[string]any, error) {
	m, err := mxj.NewMapXml(doc)
	if err != nil {
		return nil, err
	}
	return map[string]any(m), nil
}

// XMLDecoder turns the first run of repeated sibling elements into rows.
type XMLDecoder struct {
	caps *capability.Set
}

// NewXMLDecoder creates an XML decoder backed by the run's XML capability.
func NewXMLDecoder(caps *capability.Set) *XMLDecoder {
	return &XMLDecoder{caps: caps}
}

// Format implements core.Decoder.
func (d *XMLDecoder) Format() core.Format {
	return core.FormatXML
}

// Match implements core.Decoder.
func (d *XMLDecoder) Match(doc *core.Document) bool {
	return doc.Ext() == ".xml"
}

// Decode implements core.Decoder. Without the XML capability the file is
// reported unparsed with a CapabilityUnavailable error.
func (d *XMLDecoder) Decode(ctx context.Context, doc *core.Document, opts core.DecodeOptions) (*core.Result, error) {
	if !d.caps.Available(capability.NameXML) {
		return nil, d.unavailable(doc)
	}

	m, err := d.caps.XML.Structure(doc.Body())
	if errors.Is(err, capability.ErrUnavailable) {
		return nil, d.unavailable(doc)
	}
	if err != nil {
		return nil, gferrors.ParseError(doc.Path(), d.Format().String(), err)
	}

	list := elementList(m)
	if list == nil {
		why := "no repeated elements"
		if hasList(m) {
			why = "no repeated element with child structure"
		}
		return nil, gferrors.ParseError(doc.Path(), d.Format().String(), errors.New(why))
	}

	res := &core.Result{}
	for i, item := range list {
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, gferrors.Canceled("decode " + doc.Path())
		}

		elem, ok := item.(map[string]any)
		if !ok {
			res.RowErrors = append(res.RowErrors, core.RowError{
				RowNumber: int64(i + 1),
				Error: gferrors.New(gferrors.CodeRowShape, "repeated element has no structure").
					WithContext("path", doc.Path()).
					WithContext("row", i+1),
			})
			continue
		}
		res.Records = append(res.Records, flatten(sortedObject(elem), opts))
	}
	return res, nil
}

func (d *XMLDecoder) unavailable(doc *core.Document) error {
	err := d.caps.Unavailable(capability.NameXML, "xml files are reported unparsed")
	if e, ok := err.(*gferrors.Error); ok {
		return e.WithContext("path", doc.Path())
	}
	return err
}

// elementList finds the first list whose first item is an element map,
// searching depth first with keys in sorted order.
func elementList(v any) []any {
	switch x := v.(type) {
	case []any:
		if len(x) > 0 {
			if _, ok := x[0].(map[string]any); ok {
				return x
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if list := elementList(x[k]); list != nil {
				return list
			}
		}
	}
	return nil
}

// hasList reports whether any list appears in v, such as repeated
// text-only elements.
func hasList(v any) bool {
	switch x := v.(type) {
	case []any:
		return true
	case map[string]any:
		for _, child := range x {
			if hasList(child) {
				return true
			}
		}
	}
	return false
}
