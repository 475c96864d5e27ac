package catserver

import (
	"log"
	"strings"
	"testing"

	"github.com/SensorsIot/wsjt-x-MCP/internal/slicestore"
)

func newTestServer(t *testing.T) (*Server, *slicestore.Store) {
	t.Helper()
	sss := slicestore.New()
	inUse := true
	freq := uint64(14074000)
	mode := slicestore.ModeUSB
	sss.ApplyPush(0, slicestore.Deltas{InUse: &inUse, FrequencyHz: &freq, Mode: &mode})
	return New(7809, sss, log.New(&strings.Builder{}, "", 0)), sss
}

func TestDialectAFrequencyQueryAndSet(t *testing.T) {
	s, sss := newTestServer(t)

	got := s.handleDialectACommand(0, "FA;")
	if got != "FA00014074000;" {
		t.Fatalf("got %q", got)
	}

	got = s.handleDialectACommand(0, "FA00014076000;")
	if got != "" {
		t.Fatalf("expected empty ack, got %q", got)
	}
	sl, _ := sss.Snapshot(0)
	if sl.FrequencyHz != 14076000 {
		t.Fatalf("frequency not updated: %+v", sl)
	}
}

func TestDialectAIDResponse(t *testing.T) {
	s, _ := newTestServer(t)
	if got := s.handleDialectACommand(0, "ID;"); got != "ID019;" {
		t.Fatalf("got %q", got)
	}
}

func TestDialectAModePreservesDataFlavor(t *testing.T) {
	s, sss := newTestServer(t)
	digu := slicestore.ModeDIGU
	sss.ApplyPush(0, slicestore.Deltas{Mode: &digu})

	got := s.handleDialectACommand(0, "MD2;")
	if got != "" {
		t.Fatalf("expected empty ack, got %q", got)
	}
	sl, _ := sss.Snapshot(0)
	if sl.Mode != slicestore.ModeDIGU {
		t.Fatalf("mode = %q, want DIGU (preserved)", sl.Mode)
	}
}

func TestDialectATXRXEnforcesSingleTransmitter(t *testing.T) {
	s, sss := newTestServer(t)
	inUse := true
	sss.ApplyPush(1, slicestore.Deltas{InUse: &inUse})
	sss.SetTx(1, true)

	s.handleDialectACommand(0, "TX;")
	sl0, _ := sss.Snapshot(0)
	sl1, _ := sss.Snapshot(1)
	if !sl0.Transmit {
		t.Fatalf("slice 0 should be transmitting")
	}
	if sl1.Transmit {
		t.Fatalf("slice 1 should have been cleared")
	}
}

func TestDialectAUnmodeledTokenIsNoOp(t *testing.T) {
	s, _ := newTestServer(t)
	if got := s.handleDialectACommand(0, "AG030;"); got != "" {
		t.Fatalf("got %q, want empty ack", got)
	}
}

func TestDialectBFrequencyQueryAndSet(t *testing.T) {
	s, sss := newTestServer(t)

	if got := s.handleDialectBCommand(0, "get frequency"); got != "14074000" {
		t.Fatalf("got %q", got)
	}

	if got := s.handleDialectBCommand(0, "set frequency-hz 14076000"); got != "" {
		t.Fatalf("got %q", got)
	}
	sl, _ := sss.Snapshot(0)
	if sl.FrequencyHz != 14076000 {
		t.Fatalf("frequency not updated: %+v", sl)
	}
}

func TestDialectBUnknownCommandReturnsError(t *testing.T) {
	s, _ := newTestServer(t)
	if got := s.handleDialectBCommand(0, "get bogus"); got != "ERROR" {
		t.Fatalf("got %q", got)
	}
}

func TestDialectBButtonSelectTx(t *testing.T) {
	s, sss := newTestServer(t)

	if got := s.handleDialectBCommand(0, "set button-select tx 1"); got != "" {
		t.Fatalf("got %q", got)
	}
	sl, _ := sss.Snapshot(0)
	if !sl.Transmit {
		t.Fatalf("expected transmit=true")
	}

	if got := s.handleDialectBCommand(0, "get button-select tx"); got != "1" {
		t.Fatalf("got %q", got)
	}
}
