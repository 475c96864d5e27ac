// Package wirecodec implements the decoder-app telemetry frame (spec.md
// §4.1.1-§4.1.2) and the three CAT dialects (§4.1.3-§4.1.6). It is pure:
// encode/decode over byte buffers, no I/O, grounded on the teacher's
// decoder_wsjtx_udp.go (field order, QDataStream framing) generalized to
// the full inbound/outbound message set spec.md requires and to UTF-16BE
// strings instead of the teacher's UTF-8 shortcut.
package wirecodec

import "fmt"

// Magic and schema per spec.md §4.1.1 / §6.
const (
	Magic  uint32 = 0xADBCCBDA
	Schema uint32 = 2
)

// Inbound message types (decoder app -> us).
const (
	TypeHeartbeat = 0
	TypeStatus    = 1
	TypeDecode    = 2
	TypeClose     = 6
)

// Outbound message types (us -> decoder app).
const (
	TypeClear             = 3
	TypeReply             = 4
	TypeHaltTx            = 8
	TypeFreeText          = 9
	TypeLocation          = 11
	TypeRigControl        = 12
	TypeHighlightCallsign = 13
	TypeConfigure         = 15
)

// ReplyModifierArmTx is the modifier byte spec.md §4.1.2 requires on every
// outbound Reply: it arms the decoder app's own transmit sequencer. This is
// Open Question #2 in spec.md §9, frozen here per the spec's MUST.
const ReplyModifierArmTx = 0x02

// NoChangeU32 is the Configure sentinel meaning "leave this field as-is".
const NoChangeU32 uint32 = 0xFFFFFFFF

// Heartbeat is the inbound Type-0 message. spec.md says trailing fields are
// ignored, so only the header fields are kept.
type Heartbeat struct {
	InstanceID string
}

// Status is the inbound Type-1 message. Fields beyond DialFrequency are
// tolerated-but-unparsed per spec.md ("additional fields are tolerated;
// unknown tail is ignored") — we decode the ones this control plane acts
// on and stop.
type Status struct {
	InstanceID      string
	DialFrequencyHz uint64
}

// Decode is the inbound Type-2 message.
type Decode struct {
	InstanceID string
	IsNew      bool
	TimeMs     uint32
	SNRdB      int32
	DTSeconds  float64
	DFHz       uint32
	Mode       string
	Message    string
}

// Close is the inbound Type-6 message (no payload beyond the id).
type Close struct {
	InstanceID string
}

// InboundEvent is the sum type of the messages DecodeInboundFrame can
// produce. Exactly one field is non-nil.
type InboundEvent struct {
	Heartbeat *Heartbeat
	Status    *Status
	Decode    *Decode
	Close     *Close
}

// DecodeInboundFrame parses one UDP datagram into a typed event. Datagrams
// shorter than 12 bytes (magic+schema+type) are rejected per spec.md §8;
// magic mismatches are rejected per §4.1.1; unrecognized types return
// (nil, nil) — "silently ignored", not an error.
func DecodeInboundFrame(datagram []byte) (*InboundEvent, error) {
	if len(datagram) < 12 {
		return nil, fmt.Errorf("wirecodec: datagram too short (%d bytes)", len(datagram))
	}

	r := NewReader(datagram)

	magic, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if magic != Magic {
		return nil, fmt.Errorf("wirecodec: bad magic %#08x", magic)
	}

	if _, err := r.ReadUint32(); err != nil { // schema, not validated: tolerant of any sender schema
		return nil, err
	}

	msgType, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}

	id, err := r.ReadQString()
	if err != nil {
		return nil, err
	}

	switch msgType {
	case TypeHeartbeat:
		return &InboundEvent{Heartbeat: &Heartbeat{InstanceID: id}}, nil

	case TypeStatus:
		dial, err := r.ReadUint64()
		if err != nil {
			return nil, err
		}
		return &InboundEvent{Status: &Status{InstanceID: id, DialFrequencyHz: dial}}, nil

	case TypeDecode:
		isNew, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		timeMs, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		snr, err := r.ReadInt32()
		if err != nil {
			return nil, err
		}
		dt, err := r.ReadFloat64()
		if err != nil {
			return nil, err
		}
		df, err := r.ReadUint32()
		if err != nil {
			return nil, err
		}
		mode, err := r.ReadQString()
		if err != nil {
			return nil, err
		}
		message, err := r.ReadQString()
		if err != nil {
			return nil, err
		}
		// remaining flags (low_confidence, off_air, ...) are optional and ignored.
		return &InboundEvent{Decode: &Decode{
			InstanceID: id,
			IsNew:      isNew,
			TimeMs:     timeMs,
			SNRdB:      snr,
			DTSeconds:  dt,
			DFHz:       df,
			Mode:       mode,
			Message:    message,
		}}, nil

	case TypeClose:
		return &InboundEvent{Close: &Close{InstanceID: id}}, nil

	default:
		return nil, nil // recognized-but-uninteresting and unknown types are both silently ignored
	}
}

// writeHeader writes magic, schema, type and the id QString shared by
// every outbound message except RigControl (which uses the short header,
// see EncodeRigControl).
func writeHeader(w *Writer, msgType uint32, instanceID string) error {
	w.WriteUint32(Magic)
	w.WriteUint32(Schema)
	w.WriteUint32(msgType)
	return w.WriteQString(instanceID)
}

// ReplyCommand is the outbound Type-4 message.
type ReplyCommand struct {
	InstanceID string
	TimeMs     uint32
	SNRdB      int32
	DTSeconds  float64
	DFHz       uint32
	Mode       string
	Message    string
}

// EncodeReply builds a Type-4 frame. modifiers is always
// ReplyModifierArmTx per spec.md's MUST (Open Question #2).
func EncodeReply(c ReplyCommand) ([]byte, error) {
	w := NewWriter()
	if err := writeHeader(w, TypeReply, c.InstanceID); err != nil {
		return nil, err
	}
	w.WriteUint32(c.TimeMs)
	w.WriteInt32(c.SNRdB)
	w.WriteFloat64(c.DTSeconds)
	w.WriteUint32(c.DFHz)
	if err := w.WriteQString(c.Mode); err != nil {
		return nil, err
	}
	if err := w.WriteQString(c.Message); err != nil {
		return nil, err
	}
	w.WriteUint8(0)                   // low_confidence
	w.WriteUint8(ReplyModifierArmTx) // modifiers
	return w.Bytes(), nil
}

// EncodeHaltTx builds a Type-8 frame.
func EncodeHaltTx(instanceID string, autoOnly bool) ([]byte, error) {
	w := NewWriter()
	if err := writeHeader(w, TypeHaltTx, instanceID); err != nil {
		return nil, err
	}
	w.WriteBool(autoOnly)
	return w.Bytes(), nil
}

// EncodeFreeText builds a Type-9 frame.
func EncodeFreeText(instanceID, text string, send bool) ([]byte, error) {
	w := NewWriter()
	if err := writeHeader(w, TypeFreeText, instanceID); err != nil {
		return nil, err
	}
	if err := w.WriteQString(text); err != nil {
		return nil, err
	}
	w.WriteBool(send)
	return w.Bytes(), nil
}

// ConfigureCommand is the outbound Type-15 message. Every field is sent
// verbatim: an empty Mode, Submode, DXCall or DXGrid goes out as an empty
// string, and a zero FreqToleranceHz, TRPeriodSec or RxDFHz goes out as zero,
// not as "no change"; callers that want "no change" for a numeric field
// must set NoChangeU32 explicitly (spec.md §4.1.2).
type ConfigureCommand struct {
	InstanceID     string
	Mode           string
	FreqToleranceHz uint32
	Submode        string
	Fast           bool
	TRPeriodSec    uint32
	RxDFHz         uint32
	DXCall         string
	DXGrid         string
	Generate       bool
}

// EncodeConfigure builds a Type-15 frame.
func EncodeConfigure(c ConfigureCommand) ([]byte, error) {
	w := NewWriter()
	if err := writeHeader(w, TypeConfigure, c.InstanceID); err != nil {
		return nil, err
	}
	if err := w.WriteQString(c.Mode); err != nil {
		return nil, err
	}
	w.WriteUint32(c.FreqToleranceHz)
	if err := w.WriteQString(c.Submode); err != nil {
		return nil, err
	}
	w.WriteBool(c.Fast)
	w.WriteUint32(c.TRPeriodSec)
	w.WriteUint32(c.RxDFHz)
	if err := w.WriteQString(c.DXCall); err != nil {
		return nil, err
	}
	if err := w.WriteQString(c.DXGrid); err != nil {
		return nil, err
	}
	w.WriteBool(c.Generate)
	return w.Bytes(), nil
}

// ClearWindow selects the window EncodeClear clears.
type ClearWindow uint8

const (
	ClearWindowAll    ClearWindow = 0
	ClearWindowBand   ClearWindow = 1
	ClearWindowRxFreq ClearWindow = 2
)

// EncodeClear builds a Type-3 frame.
func EncodeClear(instanceID string, window ClearWindow) ([]byte, error) {
	w := NewWriter()
	if err := writeHeader(w, TypeClear, instanceID); err != nil {
		return nil, err
	}
	w.WriteUint8(uint8(window))
	return w.Bytes(), nil
}

// EncodeLocation builds a Type-11 frame.
func EncodeLocation(instanceID, grid string) ([]byte, error) {
	w := NewWriter()
	if err := writeHeader(w, TypeLocation, instanceID); err != nil {
		return nil, err
	}
	if err := w.WriteQString(grid); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// HighlightColor is one of the two colors in a Type-13 HighlightCallsign
// message.
type HighlightColor struct {
	A, R, G, B uint16
}

func (w *Writer) writeHighlightColor(c HighlightColor) {
	w.WriteUint8(1) // spec: 1
	w.WriteUint16Field(c.A)
	w.WriteUint16Field(c.R)
	w.WriteUint16Field(c.G)
	w.WriteUint16Field(c.B)
	w.WriteUint16Field(0) // pad
}

// WriteUint16Field writes a big-endian uint16, used only by the
// HighlightCallsign color fields (spec.md §4.1.2 type 13).
func (w *Writer) WriteUint16Field(v uint16) {
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

// EncodeHighlightCallsign builds a Type-13 frame.
func EncodeHighlightCallsign(instanceID, call string, background, foreground HighlightColor, highlightLast bool) ([]byte, error) {
	w := NewWriter()
	if err := writeHeader(w, TypeHighlightCallsign, instanceID); err != nil {
		return nil, err
	}
	if err := w.WriteQString(call); err != nil {
		return nil, err
	}
	w.writeHighlightColor(background)
	w.writeHighlightColor(foreground)
	w.WriteBool(highlightLast)
	return w.Bytes(), nil
}

// EncodeRigControl builds a Type-12 frame. It uses the short header (no id
// string): magic/schema/type only, then freq_hz:i64, mode:string.
func EncodeRigControl(freqHz int64, mode string) ([]byte, error) {
	w := NewWriter()
	w.WriteUint32(Magic)
	w.WriteUint32(Schema)
	w.WriteUint32(TypeRigControl)
	w.WriteInt64(freqHz)
	if err := w.WriteQString(mode); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}
