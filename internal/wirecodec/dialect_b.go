package wirecodec

import (
	"fmt"
	"strconv"
	"strings"
)

// DialectBCommand is one parsed HRD text request, e.g. "get frequency" or
// "set frequency-hz 14074000".
type DialectBCommand struct {
	Context string   // optional "[context]" prefix, stripped; empty if absent
	Verb    string   // "get" or "set"
	Noun    string   // "frequency", "dropdown mode", "button-select tx", ...
	Args    []string // remaining whitespace-separated tokens
}

// SplitDialectBFrame extracts the first '\r'-terminated line from buf.
func SplitDialectBFrame(buf []byte) (line []byte, rest []byte, ok bool) {
	i := strings.IndexByte(string(buf), '\r')
	if i < 0 {
		return nil, buf, false
	}
	return buf[:i], buf[i+1:], true
}

// ParseDialectBCommand parses one unframed line (no trailing '\r').
func ParseDialectBCommand(line string) (DialectBCommand, error) {
	var cmd DialectBCommand

	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "[") {
		if i := strings.IndexByte(line, ']'); i >= 0 {
			cmd.Context = line[1:i]
			line = strings.TrimSpace(line[i+1:])
		}
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return DialectBCommand{}, fmt.Errorf("wirecodec: dialect B line too short: %q", line)
	}

	cmd.Verb = strings.ToLower(fields[0])
	if cmd.Verb != "get" && cmd.Verb != "set" {
		return DialectBCommand{}, fmt.Errorf("wirecodec: unrecognized dialect B verb %q", fields[0])
	}

	// Nouns can be one or two words ("frequency" vs "dropdown mode" /
	// "button-select tx"); the noun is everything up to the first
	// argument that looks numeric or is a bare 0/1 flag. Since spec.md's
	// grammar is fixed and small, resolve nouns against a known table
	// instead of guessing word counts.
	rest := fields[1:]
	noun, args, err := splitDialectBNoun(rest)
	if err != nil {
		return DialectBCommand{}, err
	}
	cmd.Noun = noun
	cmd.Args = args
	return cmd, nil
}

// dialectBTwoWordNouns lists the two-word nouns of the command grammar
// from spec.md §4.1.4; every other noun is taken as a single word.
var dialectBTwoWordNouns = map[string]bool{
	"dropdown mode":     true,
	"button-select tx":  true,
}

func splitDialectBNoun(fields []string) (noun string, args []string, err error) {
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("wirecodec: dialect B command missing noun")
	}
	if len(fields) >= 2 {
		two := strings.ToLower(fields[0] + " " + fields[1])
		if dialectBTwoWordNouns[two] {
			return two, fields[2:], nil
		}
	}
	return strings.ToLower(fields[0]), fields[1:], nil
}

// FormatDialectBResponse is a thin wrapper so catserver never hand-builds
// '\r'-terminated lines itself.
func FormatDialectBResponse(body string) []byte {
	return []byte(body + "\r")
}

// DialectBErrorResponse is the negative acknowledgement for dialects B/C,
// per spec.md §4.4.
const DialectBErrorResponse = "ERROR"

// ParseFrequencyHz parses a "set frequency-hz <n>" argument.
func ParseFrequencyHz(arg string) (uint64, error) {
	v, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("wirecodec: bad frequency-hz %q: %w", arg, err)
	}
	return v, nil
}

// ParseFrequenciesHz parses a "set frequencies-hz <rx> <tx>" argument pair.
func ParseFrequenciesHz(args []string) (rxHz, txHz uint64, err error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("wirecodec: frequencies-hz wants 2 args, got %d", len(args))
	}
	rxHz, err = strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("wirecodec: bad rx frequency %q: %w", args[0], err)
	}
	txHz, err = strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("wirecodec: bad tx frequency %q: %w", args[1], err)
	}
	return rxHz, txHz, nil
}

// ParseBoolFlag parses a "0"/"1" argument such as "set button-select tx 1".
func ParseBoolFlag(arg string) (bool, error) {
	switch arg {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("wirecodec: bad boolean flag %q", arg)
	}
}
