package wirecodec

import "testing"

func TestDecodeInboundHeartbeat(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(Magic)
	w.WriteUint32(Schema)
	w.WriteUint32(TypeHeartbeat)
	if err := w.WriteQString("Slice-A"); err != nil {
		t.Fatal(err)
	}

	ev, err := DecodeInboundFrame(w.Bytes())
	if err != nil {
		t.Fatalf("DecodeInboundFrame: %v", err)
	}
	if ev.Heartbeat == nil || ev.Heartbeat.InstanceID != "Slice-A" {
		t.Fatalf("got %+v", ev)
	}
}

func TestDecodeInboundDecode(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(Magic)
	w.WriteUint32(Schema)
	w.WriteUint32(TypeDecode)
	_ = w.WriteQString("Slice-A")
	w.WriteBool(true)
	w.WriteUint32(123456)
	w.WriteInt32(-12)
	w.WriteFloat64(0.2)
	w.WriteUint32(1500)
	_ = w.WriteQString("FT8")
	_ = w.WriteQString("CQ K9ABC EN52")

	ev, err := DecodeInboundFrame(w.Bytes())
	if err != nil {
		t.Fatalf("DecodeInboundFrame: %v", err)
	}
	d := ev.Decode
	if d == nil {
		t.Fatalf("expected Decode event, got %+v", ev)
	}
	if d.InstanceID != "Slice-A" || !d.IsNew || d.SNRdB != -12 || d.Mode != "FT8" || d.Message != "CQ K9ABC EN52" {
		t.Fatalf("got %+v", d)
	}
}

func TestDecodeInboundBadMagic(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(0x11111111)
	w.WriteUint32(Schema)
	w.WriteUint32(TypeHeartbeat)
	_ = w.WriteQString("x")

	if _, err := DecodeInboundFrame(w.Bytes()); err == nil {
		t.Fatalf("expected bad-magic error")
	}
}

func TestDecodeInboundUnknownTypeIgnored(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(Magic)
	w.WriteUint32(Schema)
	w.WriteUint32(999)
	_ = w.WriteQString("x")

	ev, err := DecodeInboundFrame(w.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev != nil {
		t.Fatalf("expected nil event for unknown type, got %+v", ev)
	}
}

func TestEncodeReplySetsModifierBit(t *testing.T) {
	frame, err := EncodeReply(ReplyCommand{
		InstanceID: "Slice-A",
		TimeMs:     1000,
		SNRdB:      -5,
		DTSeconds:  0.1,
		DFHz:       1400,
		Mode:       "FT8",
		Message:    "K9ABC W1AW +05",
	})
	if err != nil {
		t.Fatalf("EncodeReply: %v", err)
	}
	// Last byte must be the modifier (0x02); second-to-last is low_confidence (0).
	if frame[len(frame)-1] != ReplyModifierArmTx {
		t.Fatalf("modifier byte = %#x, want %#x", frame[len(frame)-1], ReplyModifierArmTx)
	}
	if frame[len(frame)-2] != 0 {
		t.Fatalf("low_confidence byte = %#x, want 0", frame[len(frame)-2])
	}
}

func TestEncodeRigControlShortHeader(t *testing.T) {
	frame, err := EncodeRigControl(14074000, "USB")
	if err != nil {
		t.Fatalf("EncodeRigControl: %v", err)
	}
	r := NewReader(frame)
	magic, _ := r.ReadUint32()
	if magic != Magic {
		t.Fatalf("bad magic")
	}
	_, _ = r.ReadUint32() // schema
	typ, _ := r.ReadUint32()
	if typ != TypeRigControl {
		t.Fatalf("type = %d want %d", typ, TypeRigControl)
	}
	freq, err := r.ReadInt64()
	if err != nil || freq != 14074000 {
		t.Fatalf("freq = %d, err %v", freq, err)
	}
	mode, err := r.ReadQString()
	if err != nil || mode != "USB" {
		t.Fatalf("mode = %q, err %v", mode, err)
	}
}
