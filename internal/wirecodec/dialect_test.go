package wirecodec

import "testing"

func TestDialectASplitAndParse(t *testing.T) {
	frame, rest, ok := SplitDialectAFrame([]byte("FA;FB00014076000;"))
	if !ok {
		t.Fatalf("expected a complete frame")
	}
	if string(frame) != "FA;" {
		t.Fatalf("frame = %q", frame)
	}
	if string(rest) != "FB00014076000;" {
		t.Fatalf("rest = %q", rest)
	}

	cmd, err := ParseDialectACommand(string(frame))
	if err != nil {
		t.Fatalf("ParseDialectACommand: %v", err)
	}
	if cmd.Token != "FA" || !cmd.IsQuery {
		t.Fatalf("got %+v", cmd)
	}
}

func TestFormatFreqResponse(t *testing.T) {
	got := FormatFreqResponse("FA", 14074000)
	want := "FA00014074000;"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestFormatIFResponseWidth(t *testing.T) {
	got := FormatIFResponse(14074000, false, 2)
	want := "IF00014074000     +00000000020000  ;"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestModeNumberPreservesDataFlavor(t *testing.T) {
	name, err := ModeNumberToName(2, ModeDIGU)
	if err != nil {
		t.Fatalf("ModeNumberToName: %v", err)
	}
	if name != ModeDIGU {
		t.Fatalf("MD2 while DIGU: got %q want DIGU", name)
	}

	name, err = ModeNumberToName(2, ModeLSB)
	if err != nil {
		t.Fatalf("ModeNumberToName: %v", err)
	}
	if name != ModeUSB {
		t.Fatalf("MD2 while LSB: got %q want USB", name)
	}
}

func TestDialectBParseGetSet(t *testing.T) {
	cmd, err := ParseDialectBCommand("get frequency")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Verb != "get" || cmd.Noun != "frequency" {
		t.Fatalf("got %+v", cmd)
	}

	cmd, err = ParseDialectBCommand("set frequency-hz 14074000")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Verb != "set" || cmd.Noun != "frequency-hz" || len(cmd.Args) != 1 || cmd.Args[0] != "14074000" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestDialectBContextPrefixStripped(t *testing.T) {
	cmd, err := ParseDialectBCommand("[rig1] get mode")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Context != "rig1" || cmd.Verb != "get" || cmd.Noun != "mode" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestDialectBTwoWordNoun(t *testing.T) {
	cmd, err := ParseDialectBCommand("set dropdown mode DIGU")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Noun != "dropdown mode" || len(cmd.Args) != 1 || cmd.Args[0] != "DIGU" {
		t.Fatalf("got %+v", cmd)
	}
}

func TestDialectCFrameRoundTrip(t *testing.T) {
	encoded, err := EncodeDialectCFrame("get frequency")
	if err != nil {
		t.Fatalf("EncodeDialectCFrame: %v", err)
	}

	frame, rest, ok, err := SplitDialectCFrame(encoded)
	if err != nil {
		t.Fatalf("SplitDialectCFrame: %v", err)
	}
	if !ok {
		t.Fatalf("expected complete frame")
	}
	if len(rest) != 0 {
		t.Fatalf("unexpected trailing bytes: %d", len(rest))
	}

	got, err := DecodeDialectCFrame(frame)
	if err != nil {
		t.Fatalf("DecodeDialectCFrame: %v", err)
	}
	if got != "get frequency" {
		t.Fatalf("got %q", got)
	}
}

func TestDialectCFrameFromSpecExample(t *testing.T) {
	// spec.md §8 example 2: 16-byte header matching the fixed magics,
	// total_len 0x20 (32), followed by UTF-16LE "get frequency\0".
	header := []byte{
		0x20, 0x00, 0x00, 0x00,
		0xCD, 0xAB, 0x34, 0x12,
		0x34, 0x12, 0xCD, 0xAB,
		0x00, 0x00, 0x00, 0x00,
	}
	payload, err := utf16LEEncoder.Bytes([]byte("get frequency"))
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	payload = append(payload, 0, 0)
	frame := append(header, payload...)

	got, err := DecodeDialectCFrame(frame)
	if err != nil {
		t.Fatalf("DecodeDialectCFrame: %v", err)
	}
	if got != "get frequency" {
		t.Fatalf("got %q", got)
	}
}

func TestDetectDialectHRDBinary(t *testing.T) {
	peek := []byte{0x20, 0x00, 0x00, 0x00, 0xCD, 0xAB, 0x34, 0x12}
	d, ok := DetectDialect(peek)
	if !ok || d != DialectC {
		t.Fatalf("got %v, ok=%v want DialectC", d, ok)
	}
}

func TestDetectDialectKenwoodASCII(t *testing.T) {
	d, ok := DetectDialect([]byte("FA;"))
	if !ok || d != DialectA {
		t.Fatalf("got %v, ok=%v want DialectA", d, ok)
	}
}

func TestDetectDialectHRDText(t *testing.T) {
	d, ok := DetectDialect([]byte("get frequency\r"))
	if !ok || d != DialectB {
		t.Fatalf("got %v, ok=%v want DialectB", d, ok)
	}
}

func TestDetectDialectNeedsMoreBytes(t *testing.T) {
	// Uppercase start, no ';' yet, below the probe cap: must not decide.
	_, ok := DetectDialect([]byte("FA"))
	if ok {
		t.Fatalf("expected DetectDialect to ask for more bytes")
	}
}
