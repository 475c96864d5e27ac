package catserver

import (
	"net"
	"strconv"
	"strings"

	"github.com/SensorsIot/wsjt-x-MCP/internal/slicestore"
	"github.com/SensorsIot/wsjt-x-MCP/internal/wirecodec"
)

func (s *Server) serveDialectB(index int, conn net.Conn, peeked []byte) {
	bc := newBufferedConn(conn, peeked)
	for {
		line, err := bc.r.ReadString('\r')
		if err != nil {
			return
		}
		resp := s.handleDialectBCommand(index, strings.TrimSuffix(line, "\r"))
		if _, err := conn.Write(wirecodec.FormatDialectBResponse(resp)); err != nil {
			return
		}
	}
}

func (s *Server) handleDialectBCommand(index int, line string) string {
	cmd, err := wirecodec.ParseDialectBCommand(line)
	if err != nil {
		return wirecodec.DialectBErrorResponse
	}
	s.emitCommand(index, cmd.Verb+"."+cmd.Noun)

	sl, ok := s.sss.Snapshot(index)
	if !ok {
		return wirecodec.DialectBErrorResponse
	}

	switch {
	case cmd.Verb == "get" && cmd.Noun == "frequency":
		return strconv.FormatUint(sl.FrequencyHz, 10)

	case cmd.Verb == "set" && cmd.Noun == "frequency-hz":
		if len(cmd.Args) != 1 {
			return wirecodec.DialectBErrorResponse
		}
		hz, err := wirecodec.ParseFrequencyHz(cmd.Args[0])
		if err != nil {
			return wirecodec.DialectBErrorResponse
		}
		s.emit(Event{Kind: FrequencyChange, Index: index, FrequencyHz: hz})
		s.sss.ApplyPush(index, slicestore.Deltas{FrequencyHz: &hz})
		return ""

	case cmd.Verb == "set" && cmd.Noun == "frequencies-hz":
		rxHz, _, err := wirecodec.ParseFrequenciesHz(cmd.Args)
		if err != nil {
			return wirecodec.DialectBErrorResponse
		}
		s.emit(Event{Kind: FrequencyChange, Index: index, FrequencyHz: rxHz})
		s.sss.ApplyPush(index, slicestore.Deltas{FrequencyHz: &rxHz})
		return ""

	case cmd.Verb == "get" && cmd.Noun == "mode":
		return string(sl.Mode)

	case cmd.Verb == "set" && cmd.Noun == "dropdown mode":
		if len(cmd.Args) != 1 {
			return wirecodec.DialectBErrorResponse
		}
		mode := slicestore.Mode(strings.ToUpper(cmd.Args[0]))
		s.sss.ApplyPush(index, slicestore.Deltas{Mode: &mode})
		return ""

	case cmd.Verb == "get" && cmd.Noun == "button-select tx":
		if sl.Transmit {
			return "1"
		}
		return "0"

	case cmd.Verb == "set" && cmd.Noun == "button-select tx":
		if len(cmd.Args) != 1 {
			return wirecodec.DialectBErrorResponse
		}
		tx, err := wirecodec.ParseBoolFlag(cmd.Args[0])
		if err != nil {
			return wirecodec.DialectBErrorResponse
		}
		s.emit(Event{Kind: PTTChange, Index: index, TX: tx})
		s.sss.SetTx(index, tx)
		return ""

	case cmd.Verb == "get" && cmd.Noun == "radios":
		return "1"

	case cmd.Verb == "get" && cmd.Noun == "id":
		return "HRD-1"

	case cmd.Verb == "get" && cmd.Noun == "version":
		return "5.0"

	case cmd.Verb == "get" && cmd.Noun == "context":
		return ""

	default:
		return wirecodec.DialectBErrorResponse
	}
}
