package wirecodec

import (
	"fmt"
	"strconv"
	"strings"
)

// DialectACommand is one parsed Kenwood-style ASCII request, e.g. "FA;"
// (query) or "FA00014074000;" (set).
type DialectACommand struct {
	Token   string // two-letter command, e.g. "FA", "MD", "TX"
	Param   string // text between the token and the terminating ';'
	IsQuery bool   // true when Param is empty
}

// dialectATokens is the recognized command vocabulary from spec.md §4.1.3.
// Anything outside this set is still split and returned to the caller;
// whether to answer it is a catserver policy decision, not a wirecodec one.
var dialectATokens = map[string]bool{
	"FA": true, "FB": true, "IF": true, "MD": true, "TX": true, "RX": true,
	"TQ": true, "ID": true, "PS": true, "AI": true, "SP": true, "FT": true,
	"FR": true, "SM": true, "RS": true, "AG": true, "NB": true, "NR": true,
	"RA": true, "PA": true, "RT": true, "XT": true, "AN": true, "FL": true,
	"FW": true, "SH": true, "SL": true, "VX": true,
}

// SplitDialectAFrame extracts the first ';'-terminated command from buf and
// returns it along with the unconsumed remainder. ok is false when buf has
// no complete command yet (caller should read more bytes).
func SplitDialectAFrame(buf []byte) (frame []byte, rest []byte, ok bool) {
	i := strings.IndexByte(string(buf), ';')
	if i < 0 {
		return nil, buf, false
	}
	return buf[:i+1], buf[i+1:], true
}

// ParseDialectACommand parses a single ';'-terminated frame (the
// terminator may or may not still be present).
func ParseDialectACommand(frame string) (DialectACommand, error) {
	frame = strings.TrimSuffix(strings.TrimSpace(frame), ";")
	if len(frame) < 2 {
		return DialectACommand{}, fmt.Errorf("wirecodec: dialect A frame too short: %q", frame)
	}
	token := strings.ToUpper(frame[:2])
	param := frame[2:]
	return DialectACommand{Token: token, Param: param, IsQuery: param == ""}, nil
}

// IsKnownDialectAToken reports whether token is in the recognized
// vocabulary of spec.md §4.1.3.
func IsKnownDialectAToken(token string) bool {
	return dialectATokens[strings.ToUpper(token)]
}

// FormatFreqResponse builds the reply to an FA/FB query: token + 11-digit
// zero-padded Hz + ';'.
func FormatFreqResponse(token string, freqHz uint64) string {
	return fmt.Sprintf("%s%011d;", token, freqHz)
}

// ParseFreqSet parses the 11-digit Hz parameter of an FA/FB set command.
func ParseFreqSet(param string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(param), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("wirecodec: bad frequency %q: %w", param, err)
	}
	return v, nil
}

// ModeName <-> Kenwood mode number, per spec.md §4.1.3. Mode 6 is overloaded
// (RTTY and, inbound only, accepted as an alias for DIGL) since dialect A
// has no dedicated data-mode-lower number; ModeNumberToName resolves it to
// RTTY, matching the spec's primary assignment.
const (
	ModeLSB  = "LSB"
	ModeUSB  = "USB"
	ModeCW   = "CW"
	ModeFM   = "FM"
	ModeAM   = "AM"
	ModeRTTY = "RTTY"
	ModeCWR  = "CWR"
	ModeDIGU = "DIGU"
	ModeDIGL = "DIGL"
)

var modeNumberToName = map[int]string{
	1: ModeLSB, 2: ModeUSB, 3: ModeCW, 4: ModeFM, 5: ModeAM,
	6: ModeRTTY, 7: ModeCWR, 9: ModeDIGU,
}

var modeNameToNumber = map[string]int{
	ModeLSB: 1, ModeUSB: 2, ModeCW: 3, ModeFM: 4, ModeAM: 5,
	ModeRTTY: 6, ModeCWR: 7, ModeDIGU: 9, ModeDIGL: 6,
}

// ModeNumberToName maps a Kenwood MD number to a mode name, given the
// currently-active mode (for data-flavor preservation: spec.md §4.1.3 and
// §4.4 — setting MD2 while current mode is DIGU leaves the mode DIGU, not
// USB; symmetrically for MD1/DIGL).
func ModeNumberToName(n int, currentMode string) (string, error) {
	switch n {
	case 2: // USB
		if currentMode == ModeDIGU {
			return ModeDIGU, nil
		}
		return ModeUSB, nil
	case 1: // LSB
		if currentMode == ModeDIGL {
			return ModeDIGL, nil
		}
		return ModeLSB, nil
	}
	name, ok := modeNumberToName[n]
	if !ok {
		return "", fmt.Errorf("wirecodec: unrecognized mode number %d", n)
	}
	return name, nil
}

// ModeNameToNumber maps an internal mode name back to its Kenwood MD number.
func ModeNameToNumber(name string) (int, error) {
	n, ok := modeNameToNumber[name]
	if !ok {
		return 0, fmt.Errorf("wirecodec: unrecognized mode name %q", name)
	}
	return n, nil
}

// FormatIFResponse builds the fixed-width IF status line spec.md §4.4 and
// §6 require byte-for-byte: "IF" + freq(11) + 5 spaces + "+00000000" +
// tx(1) + mode(1) + "0000  ;". tx is "1" while transmitting, "0" otherwise.
func FormatIFResponse(freqHz uint64, tx bool, modeNumber int) string {
	txDigit := "0"
	if tx {
		txDigit = "1"
	}
	return fmt.Sprintf("IF%011d     +00000000%s%d0000  ;", freqHz, txDigit, modeNumber)
}

// RadioIDResponse is the fixed reply to "ID;" (spec.md §6): implementations
// MUST answer with this so the decoder app recognizes a TS-2000-class rig.
const RadioIDResponse = "ID019;"

// EmptyAck is the negative/no-op acknowledgement for dialect A: an empty
// response, per spec.md §4.4 failure semantics and for successful set
// commands (which return nothing).
const EmptyAck = ""
