package catserver

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/SensorsIot/wsjt-x-MCP/internal/wirecodec"
)

// serveDialectC speaks the HRD v5 binary framing but otherwise shares
// dialect B's command grammar and semantics (spec.md §4.1.5).
func (s *Server) serveDialectC(index int, conn net.Conn, peeked []byte) {
	bc := newBufferedConn(conn, peeked)
	for {
		frame, err := readDialectCFrame(bc.r)
		if err != nil {
			return
		}
		command, err := wirecodec.DecodeDialectCFrame(frame)
		if err != nil {
			return
		}
		resp := s.handleDialectBCommand(index, command)
		if resp == "" {
			continue
		}
		out, err := wirecodec.EncodeDialectCFrame(resp)
		if err != nil {
			return
		}
		if _, err := conn.Write(out); err != nil {
			return
		}
	}
}

// readDialectCFrame reads total_len:u32 (little-endian, includes itself)
// then the remaining totalLen-4 bytes, returning the complete frame.
func readDialectCFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	totalLen := binary.LittleEndian.Uint32(lenBuf[:])
	if totalLen < 4 {
		return lenBuf[:], nil
	}
	frame := make([]byte, totalLen)
	copy(frame, lenBuf[:])
	if _, err := io.ReadFull(r, frame[4:]); err != nil {
		return nil, err
	}
	return frame, nil
}
