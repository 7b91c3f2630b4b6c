package decoders

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	gferrors "github.com/logflow/geoflow/pkg/errors"
	"github.com/logflow/geoflow/pkg/ingest/core"
	"github.com/logflow/geoflow/pkg/ingest/detect"
	"github.com/logflow/geoflow/pkg/table"
)

var (
	latitudeHeaders  = []string{"lat", "latitude", "y", "lat_deg"}
	longitudeHeaders = []string{"lon", "longitude", "x", "lon_deg"}
)

// CSVDecoder decodes delimited text. The first row is the header and every
// cell is kept as text; empty cells become null.
type CSVDecoder struct{}

// NewCSVDecoder creates a new CSV decoder.
func NewCSVDecoder() *CSVDecoder {
	return &CSVDecoder{}
}

// Format implements core.Decoder.
func (d *CSVDecoder) Format() core.Format {
	return core.FormatCSV
}

// Match implements core.Decoder.
func (d *CSVDecoder) Match(doc *core.Document) bool {
	return doc.Ext() == ".csv"
}

// Decode implements core.Decoder. Rows whose field count differs from the
// header are skipped as row errors.
func (d *CSVDecoder) Decode(ctx context.Context, doc *core.Document, opts core.DecodeOptions) (*core.Result, error) {
	body, err := utf8Body(doc)
	if err != nil {
		return nil, gferrors.ParseError(doc.Path(), d.Format().String(), err)
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = detect.Delimiter(body)
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, gferrors.ParseError(doc.Path(), d.Format().String(), fmt.Errorf("no header row"))
	}
	if err != nil {
		return nil, gferrors.ParseError(doc.Path(), d.Format().String(), err)
	}
	header = dedupeHeader(header)
	if opts.NormalizeCoordinates {
		normalizeCoordinates(header)
	}

	res := &core.Result{}
	for n := 0; ; n++ {
		if n%1024 == 0 && ctx.Err() != nil {
			return nil, gferrors.Canceled("decode " + doc.Path())
		}

		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, gferrors.ParseError(doc.Path(), d.Format().String(), err)
			}
			res.RowErrors = append(res.RowErrors, core.RowError{
				RowNumber: int64(pe.StartLine),
				Error:     gferrors.Wrap(err, gferrors.CodeRowShape, "malformed row").WithContext("path", doc.Path()),
			})
			continue
		}

		line, _ := r.FieldPos(0)
		if len(fields) != len(header) {
			res.RowErrors = append(res.RowErrors, core.RowError{
				RowNumber: int64(line),
				Error:     gferrors.RowShapeError(doc.Path(), line, len(header), len(fields)),
			})
			continue
		}

		rec := table.NewRecord()
		for i, name := range header {
			if fields[i] == "" {
				rec.Set(name, nil)
			} else {
				rec.Set(name, fields[i])
			}
		}
		res.Records = append(res.Records, rec)
	}
	return res, nil
}

// utf8Body returns the document text as UTF-8. Latin-1 input is
// re-encoded; UTF-16 is rejected.
func utf8Body(doc *core.Document) ([]byte, error) {
	switch enc := detect.DetectEncoding(doc.Data); enc {
	case detect.EncodingUTF16LE, detect.EncodingUTF16BE:
		return nil, fmt.Errorf("unsupported encoding %s", enc)
	case detect.EncodingLatin1:
		return detect.Latin1ToUTF8(doc.Data), nil
	default:
		return doc.Body(), nil
	}
}

// dedupeHeader names blank columns "Unnamed: i" and suffixes repeated
// names with .1, .2, ...
func dedupeHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, name := range header {
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if n, dup := seen[name]; dup {
			candidate := name
			for dup {
				n++
				candidate = name + "." + strconv.Itoa(n)
				_, dup = seen[candidate]
			}
			seen[name] = n
			name = candidate
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}

// normalizeCoordinates renames the first latitude-like and longitude-like
// headers to _lat and _lon in place.
func normalizeCoordinates(header []string) {
	rename := func(candidates []string, to string) {
		idx := make(map[string]int, len(header))
		for i, h := range header {
			idx[h] = i
		}
		if _, taken := idx[to]; taken {
			return
		}
		for _, c := range candidates {
			if i, ok := idx[c]; ok {
				header[i] = to
				return
			}
		}
	}
	rename(latitudeHeaders, table.ColLat)
	rename(longitudeHeaders, table.ColLon)
}
