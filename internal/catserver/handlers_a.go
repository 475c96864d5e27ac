package catserver

import (
	"net"
	"strconv"
	"strings"

	"github.com/SensorsIot/wsjt-x-MCP/internal/slicestore"
	"github.com/SensorsIot/wsjt-x-MCP/internal/wirecodec"
)

func (s *Server) serveDialectA(index int, conn net.Conn, peeked []byte) {
	bc := newBufferedConn(conn, peeked)
	for {
		frame, err := bc.r.ReadString(';')
		if err != nil {
			return
		}
		resp := s.handleDialectACommand(index, frame)
		if resp != "" {
			if _, err := conn.Write([]byte(resp)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleDialectACommand(index int, frame string) string {
	cmd, err := wirecodec.ParseDialectACommand(frame)
	if err != nil {
		return wirecodec.EmptyAck
	}
	s.emitCommand(index, cmd.Token)

	sl, ok := s.sss.Snapshot(index)
	if !ok {
		return wirecodec.EmptyAck
	}

	switch cmd.Token {
	case "FA", "FB":
		if cmd.IsQuery {
			return wirecodec.FormatFreqResponse(cmd.Token, sl.FrequencyHz)
		}
		hz, err := wirecodec.ParseFreqSet(cmd.Param)
		if err != nil {
			return wirecodec.EmptyAck
		}
		s.emit(Event{Kind: FrequencyChange, Index: index, FrequencyHz: hz})
		s.sss.ApplyPush(index, slicestore.Deltas{FrequencyHz: &hz})
		return wirecodec.EmptyAck

	case "IF":
		modeNum, _ := wirecodec.ModeNameToNumber(string(sl.Mode))
		return wirecodec.FormatIFResponse(sl.FrequencyHz, sl.Transmit, modeNum)

	case "MD":
		if cmd.IsQuery {
			n, err := wirecodec.ModeNameToNumber(string(sl.Mode))
			if err != nil {
				return wirecodec.EmptyAck
			}
			return "MD" + strconv.Itoa(n) + ";"
		}
		n, err := strconv.Atoi(strings.TrimSpace(cmd.Param))
		if err != nil {
			return wirecodec.EmptyAck
		}
		name, err := wirecodec.ModeNumberToName(n, string(sl.Mode))
		if err != nil {
			return wirecodec.EmptyAck
		}
		mode := slicestore.Mode(name)
		s.sss.ApplyPush(index, slicestore.Deltas{Mode: &mode})
		return wirecodec.EmptyAck

	case "TX":
		s.emit(Event{Kind: PTTChange, Index: index, TX: true})
		s.sss.SetTx(index, true)
		return wirecodec.EmptyAck

	case "RX":
		s.emit(Event{Kind: PTTChange, Index: index, TX: false})
		s.sss.SetTx(index, false)
		return wirecodec.EmptyAck

	case "TQ":
		if sl.Transmit {
			return "TQ1;"
		}
		return "TQ0;"

	case "ID":
		return wirecodec.RadioIDResponse

	default:
		// Recognized tokens with no modeled backing state (PS, AI, SP, FT,
		// FR, SM, RS, AG, NB, NR, RA, PA, RT, XT, AN, FL, FW, SH, SL, VX):
		// answered as a no-op rather than as malformed input.
		return wirecodec.EmptyAck
	}
}
