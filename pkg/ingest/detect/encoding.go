package detect

import (
	"unicode/utf8"
)

// Encoding represents character encoding.
type Encoding uint8

const (
	EncodingUnknown Encoding = iota
	EncodingUTF8
	EncodingUTF8BOM
	EncodingUTF16LE
	EncodingUTF16BE
	EncodingLatin1
	EncodingASCII
)

func (e Encoding) String() string {
	names := []string{"unknown", "utf-8", "utf-8-bom", "utf-16le", "utf-16be", "latin-1", "ascii"}
	if int(e) < len(names) {
		return names[e]
	}
	return "unknown"
}

// DetectEncoding identifies the character encoding of a sample.
func DetectEncoding(sample []byte) Encoding {
	if len(sample) == 0 {
		return EncodingUnknown
	}

	if len(sample) >= 3 && sample[0] == 0xEF && sample[1] == 0xBB && sample[2] == 0xBF {
		return EncodingUTF8BOM
	}
	if len(sample) >= 2 {
		if sample[0] == 0xFF && sample[1] == 0xFE {
			return EncodingUTF16LE
		}
		if sample[0] == 0xFE && sample[1] == 0xFF {
			return EncodingUTF16BE
		}
	}

	if utf8.Valid(sample) {
		for _, b := range sample {
			if b > 127 {
				return EncodingUTF8
			}
		}
		return EncodingASCII
	}

	return EncodingLatin1
}

// Latin1ToUTF8 re-encodes ISO-8859-1 bytes as UTF-8.
func Latin1ToUTF8(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/8)
	for _, b := range data {
		out = utf8.AppendRune(out, rune(b))
	}
	return out
}
