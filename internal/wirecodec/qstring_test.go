package wirecodec

import "testing"

func TestQStringRoundTrip(t *testing.T) {
	cases := []string{"", "FT8", "K9ABC", "JO21"}
	for _, s := range cases {
		w := NewWriter()
		if err := w.WriteQString(s); err != nil {
			t.Fatalf("WriteQString(%q): %v", s, err)
		}
		r := NewReader(w.Bytes())
		got, err := r.ReadQString()
		if err != nil {
			t.Fatalf("ReadQString(%q): %v", s, err)
		}
		if got != s {
			t.Fatalf("round trip: got %q want %q", got, s)
		}
	}
}

func TestReadQStringNullSentinel(t *testing.T) {
	w := NewWriter()
	w.WriteUint32(nullStringLength)
	r := NewReader(w.Bytes())
	got, err := r.ReadQString()
	if err != nil {
		t.Fatalf("ReadQString: %v", err)
	}
	if got != "" {
		t.Fatalf("null sentinel: got %q want empty", got)
	}
}

func TestReadQStringOddLengthTolerated(t *testing.T) {
	// "A" is encoded as the two bytes 0x00 0x41 in UTF-16BE; truncate to
	// one trailing byte and confirm the reader drops it instead of erroring.
	w := NewWriter()
	w.WriteUint32(1)
	w.WriteBytes([]byte{0x00})
	r := NewReader(w.Bytes())
	got, err := r.ReadQString()
	if err != nil {
		t.Fatalf("ReadQString with odd length: %v", err)
	}
	if got != "" {
		t.Fatalf("odd-length truncated string: got %q want empty", got)
	}
}

func TestReadUint32ShortRead(t *testing.T) {
	r := NewReader([]byte{0x00, 0x01})
	if _, err := r.ReadUint32(); err == nil {
		t.Fatalf("expected short-read error")
	}
}

func TestFloat64RoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteFloat64(0.3)
	r := NewReader(w.Bytes())
	got, err := r.ReadFloat64()
	if err != nil {
		t.Fatalf("ReadFloat64: %v", err)
	}
	if got != 0.3 {
		t.Fatalf("got %v want 0.3", got)
	}
}
