package wirecodec

import (
	"bytes"
	"encoding/binary"
)

// Dialect identifies one of the three CAT wire dialects spec.md §4.1.3-§4.1.5
// describes.
type Dialect int

const (
	DialectUnknown Dialect = iota
	DialectA
	DialectB
	DialectC
)

func (d Dialect) String() string {
	switch d {
	case DialectA:
		return "A"
	case DialectB:
		return "B"
	case DialectC:
		return "C"
	default:
		return "unknown"
	}
}

// MaxProbeBytes bounds how long DetectDialect will wait for a ';' before
// giving up and falling back to dialect B, for a peer that opens with an
// uppercase byte but never sends a semicolon-terminated command.
const MaxProbeBytes = 256

// DetectDialect implements spec.md §4.1.6. peek is whatever has been read
// from the connection so far (grown across calls as more bytes arrive);
// ok is false when DetectDialect needs more bytes before it can decide.
func DetectDialect(peek []byte) (dialect Dialect, ok bool) {
	if len(peek) >= 8 {
		b := peek[4:8]
		if matchesHRDMagic(b) {
			return DialectC, true
		}
	}

	if len(peek) >= 4 && peek[0] < 0x80 {
		length := binary.LittleEndian.Uint32(peek[0:4])
		if length >= 1 && length <= 65535 {
			return DialectC, true // provisional per spec.md, but treated as a final selection
		}
	}

	firstNonWS := -1
	for i, c := range peek {
		if !isWhitespace(c) {
			firstNonWS = i
			break
		}
	}
	if firstNonWS == -1 {
		if len(peek) >= MaxProbeBytes {
			return DialectB, true
		}
		return DialectUnknown, false
	}

	c := peek[firstNonWS]
	if c >= 'A' && c <= 'Z' {
		if bytes.IndexByte(peek, ';') >= 0 {
			return DialectA, true
		}
		if len(peek) >= MaxProbeBytes {
			return DialectB, true
		}
		return DialectUnknown, false
	}

	return DialectB, true
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// matchesHRDMagic reports whether b (4 bytes) equals either HRD magic
// value in either byte order, per spec.md's "regardless of byte order".
func matchesHRDMagic(b []byte) bool {
	le := binary.LittleEndian.Uint32(b)
	be := binary.BigEndian.Uint32(b)
	for _, magic := range [...]uint32{0xCDAB3412, 0x1234ABCD} {
		if le == magic || be == magic {
			return true
		}
	}
	return false
}
