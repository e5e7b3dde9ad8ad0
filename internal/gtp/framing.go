package gtp

import "strings"

// Framing says how the end of a reply is recognised.
type Framing int

const (
	// FrameBlankLine ends a reply at the first blank line after the sigil line.
	FrameBlankLine Framing = iota

	// FrameStream collects lines after the sigil until the stream closes or
	// the caller stops it. Stopping writes an empty line, after which the
	// engine terminates the reply with a blank line.
	FrameStream
)

func (f Framing) String() string {
	switch f {
	case FrameStream:
		return "stream"
	default:
		return "blank-line"
	}
}

// framings lists every command that does not follow the blank-line rule.
var framings = map[string]Framing{
	"kata-analyze":         FrameStream,
	"lz-analyze":           FrameStream,
	"analyze":              FrameStream,
	"kata-genmove_analyze": FrameStream,
	"lz-genmove_analyze":   FrameStream,
}

// FramingFor returns the framing rule for a command line or bare command name.
func FramingFor(command string) Framing {
	if f, ok := framings[CommandName(command)]; ok {
		return f
	}
	return FrameBlankLine
}

// CommandName returns the first word of a command line, skipping a numeric id.
func CommandName(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	if isDigits(fields[0]) && len(fields) > 1 {
		return fields[1]
	}
	return fields[0]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
