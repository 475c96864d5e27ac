package slicestore

import (
	"testing"
	"time"
)

func freq(v uint64) *uint64 { return &v }
func mode(v Mode) *Mode     { return &v }
func boolp(v bool) *bool    { return &v }

func TestApplyPushEmitsAddedThenUpdated(t *testing.T) {
	s := New()
	events, unsub := s.Subscribe(8)
	defer unsub()

	s.ApplyPush(0, Deltas{
		FrequencyHz: freq(14074000),
		Mode:        mode(ModeUSB),
		InUse:       boolp(true),
	})

	first := recv(t, events)
	if first.Kind != SliceAdded || first.Index != 0 {
		t.Fatalf("first event = %+v, want slice-added", first)
	}
	second := recv(t, events)
	if second.Kind != SliceUpdated {
		t.Fatalf("second event = %+v, want slice-updated", second)
	}
	if second.State.FrequencyHz != 14074000 || second.State.Mode != ModeUSB {
		t.Fatalf("state = %+v", second.State)
	}
}

func TestApplyPushEmitsRemovedWithPriorState(t *testing.T) {
	s := New()
	s.ApplyPush(0, Deltas{FrequencyHz: freq(14074000), InUse: boolp(true)})

	events, unsub := s.Subscribe(8)
	defer unsub()

	s.ApplyPush(0, Deltas{InUse: boolp(false)})

	removed := recv(t, events)
	if removed.Kind != SliceRemoved {
		t.Fatalf("got %+v, want slice-removed", removed)
	}
	if removed.State.FrequencyHz != 14074000 {
		t.Fatalf("prior state lost: %+v", removed.State)
	}
	updated := recv(t, events)
	if updated.Kind != SliceUpdated || updated.State.InUse {
		t.Fatalf("got %+v", updated)
	}
}

func TestApplyPushDerivesDaxChannel(t *testing.T) {
	s := New()
	s.ApplyPush(2, Deltas{InUse: boolp(true)})
	sl, ok := s.Snapshot(2)
	if !ok {
		t.Fatalf("expected slice 2 to exist")
	}
	if sl.DaxChannel != 3 {
		t.Fatalf("dax channel = %d, want 3", sl.DaxChannel)
	}
}

func TestSetTxEnforcesSingleTransmitter(t *testing.T) {
	s := New()
	s.ApplyPush(0, Deltas{InUse: boolp(true)})
	s.ApplyPush(1, Deltas{InUse: boolp(true)})

	if !s.SetTx(0, true) {
		t.Fatalf("SetTx(0, true) failed")
	}
	if !s.SetTx(1, true) {
		t.Fatalf("SetTx(1, true) failed")
	}

	sl0, _ := s.Snapshot(0)
	sl1, _ := s.Snapshot(1)
	if sl0.Transmit {
		t.Fatalf("slice 0 still transmitting after slice 1 took over")
	}
	if !sl1.Transmit {
		t.Fatalf("slice 1 should be transmitting")
	}
}

func TestSetTxUnknownIndex(t *testing.T) {
	s := New()
	if s.SetTx(99, true) {
		t.Fatalf("expected false for unknown slice")
	}
}

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed unexpectedly")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return Event{}
	}
}
