package wirecodec

import (
	"encoding/binary"
	"fmt"
)

// HRD v5 binary framing constants (spec.md §4.1.5), little-endian.
const (
	DialectCMagic1 uint32 = 0x1234ABCD
	DialectCMagic2 uint32 = 0xABCD1234
)

const dialectCHeaderLen = 16 // total_len + magic1 + magic2 + checksum

// SplitDialectCFrame extracts one complete HRD v5 binary frame from buf.
// total_len includes itself (the whole frame, header through payload).
// ok is false when buf does not yet hold a complete frame.
func SplitDialectCFrame(buf []byte) (frame []byte, rest []byte, ok bool, err error) {
	if len(buf) < 4 {
		return nil, buf, false, nil
	}
	totalLen := binary.LittleEndian.Uint32(buf[0:4])
	if totalLen < dialectCHeaderLen {
		return nil, buf, false, fmt.Errorf("wirecodec: dialect C total_len %d shorter than header", totalLen)
	}
	if uint32(len(buf)) < totalLen {
		return nil, buf, false, nil
	}
	return buf[:totalLen], buf[totalLen:], true, nil
}

// DecodeDialectCFrame validates the magics and decodes the UTF-16LE,
// null-terminated command string from a complete frame (as returned by
// SplitDialectCFrame).
func DecodeDialectCFrame(frame []byte) (string, error) {
	if len(frame) < dialectCHeaderLen {
		return "", fmt.Errorf("wirecodec: dialect C frame too short (%d bytes)", len(frame))
	}
	magic1 := binary.LittleEndian.Uint32(frame[4:8])
	magic2 := binary.LittleEndian.Uint32(frame[8:12])
	if magic1 != DialectCMagic1 || magic2 != DialectCMagic2 {
		return "", fmt.Errorf("wirecodec: dialect C bad magics %#08x/%#08x", magic1, magic2)
	}
	// checksum (frame[12:16]) is always 0 per spec.md and is not verified.
	payload := frame[dialectCHeaderLen:]
	payload = trimUTF16LENullTerminator(payload)
	out, err := utf16LEDecoder.Bytes(payload)
	if err != nil {
		return "", fmt.Errorf("wirecodec: invalid utf-16le command: %w", err)
	}
	return string(out), nil
}

// trimUTF16LENullTerminator drops a trailing UTF-16LE NUL code unit
// (0x00 0x00), if present, from an otherwise un-prefixed string payload.
func trimUTF16LENullTerminator(b []byte) []byte {
	if len(b) >= 2 && b[len(b)-2] == 0 && b[len(b)-1] == 0 {
		return b[:len(b)-2]
	}
	return b
}

// EncodeDialectCFrame builds an HRD v5 binary frame carrying command as a
// null-terminated UTF-16LE string, echoing the fixed magics and a zero
// checksum per spec.md §4.1.5.
func EncodeDialectCFrame(command string) ([]byte, error) {
	enc, err := utf16LEEncoder.Bytes([]byte(command))
	if err != nil {
		return nil, fmt.Errorf("wirecodec: cannot encode %q as utf-16le: %w", command, err)
	}
	enc = append(enc, 0, 0) // null terminator

	totalLen := uint32(dialectCHeaderLen + len(enc))
	out := make([]byte, totalLen)
	binary.LittleEndian.PutUint32(out[0:4], totalLen)
	binary.LittleEndian.PutUint32(out[4:8], DialectCMagic1)
	binary.LittleEndian.PutUint32(out[8:12], DialectCMagic2)
	binary.LittleEndian.PutUint32(out[12:16], 0)
	copy(out[dialectCHeaderLen:], enc)
	return out, nil
}
