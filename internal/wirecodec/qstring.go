package wirecodec

import (
	"encoding/binary"
	"fmt"
	"math"

	"golang.org/x/text/encoding/unicode"
)

// nullStringLength is the QDataStream sentinel for a null QString.
const nullStringLength = 0xFFFFFFFF

var (
	utf16BEEncoder = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder()
	utf16BEDecoder = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
	utf16LEEncoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	utf16LEDecoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
)

// Reader is a cursor over a byte slice with the big-endian, length-prefixed
// primitives the decoder-app telemetry protocol uses (spec.md §4.1.1).
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("wirecodec: short read: need %d bytes, have %d", n, r.Remaining())
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// ReadQString decodes a Qt-style string: length:u32 (byte count of a
// UTF-16BE sequence), 0xFFFFFFFF meaning null (decoded empty, offset still
// advances by 4), 0 meaning empty. An odd byte count is tolerated: the
// trailing byte is dropped rather than treated as an error (spec.md §8).
func (r *Reader) ReadQString() (string, error) {
	length, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	if length == nullStringLength || length == 0 {
		return "", nil
	}
	raw, err := r.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	out, err := utf16BEDecoder.Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("wirecodec: invalid utf-16be string: %w", err)
	}
	return string(out), nil
}

// Writer builds a telemetry/command frame using the same primitive layout
// ReadX decodes.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

func (w *Writer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }

func (w *Writer) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

func (w *Writer) WriteFloat64(v float64) { w.WriteUint64(math.Float64bits(v)) }

func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteQString encodes s as UTF-16BE with a 4-byte length prefix. An empty
// string is written as length 0, not the null sentinel, matching
// spec.md's "length = 0 denotes empty" rule (this codec never emits a null
// QString on the wire).
func (w *Writer) WriteQString(s string) error {
	if s == "" {
		w.WriteUint32(0)
		return nil
	}
	enc, err := utf16BEEncoder.Bytes([]byte(s))
	if err != nil {
		return fmt.Errorf("wirecodec: cannot encode %q as utf-16be: %w", s, err)
	}
	w.WriteUint32(uint32(len(enc)))
	w.WriteBytes(enc)
	return nil
}
