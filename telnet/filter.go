package telnet

// Op is the filter's decision for a single inbound byte.
type Op int

const (
	// OpDiscard drops the byte: it is part of a command sequence, or
	// NUL padding in filtering mode.
	OpDiscard Op = iota

	// OpForward passes the byte through to the serial side unchanged.
	OpForward

	// OpBreak consumed an IAC BRK command. The caller must pulse the
	// reset line before feeding further bytes.
	OpBreak
)

// String returns the string representation of the operation.
func (op Op) String() string {
	switch op {
	case OpDiscard:
		return "discard"
	case OpForward:
		return "forward"
	case OpBreak:
		return "break"
	default:
		return "unknown"
	}
}

// Filter strips TELNET command sequences from an inbound byte stream and
// recognizes the BRK command (RFC 854).
//
// The filter is a byte-at-a-time state machine with no internal
// buffering: Feed decides the fate of each byte as it arrives. An IAC
// opens a two-byte discard window covering the command byte and, for
// three-byte negotiations (WILL/WONT/DO/DONT), the option byte. A fresh
// IAC inside an open window restarts it, so malformed or interleaved
// sequences resynchronize on the newest IAC.
//
// BRK is recognized only in the byte position immediately after IAC and
// consumes the whole window. At the option position of a three-byte
// negotiation, byte 243 is an option code and is plainly discarded.
//
// Filter is not goroutine-safe. Each session owns exactly one filter and
// feeds it from a single goroutine.
type Filter struct {
	// discard counts command bytes still to swallow; 0 means normal
	// forwarding.
	discard int

	filterNUL bool
}

// NewFilter creates a Filter in the normal state.
//
// When filterNUL is true, NUL bytes outside command sequences are
// silently dropped. This matches clients that pad CR with NUL in line
// mode; a raw binary console should disable it.
func NewFilter(filterNUL bool) *Filter {
	return &Filter{filterNUL: filterNUL}
}

// Feed advances the state machine by one inbound byte and returns the
// operation to perform. The byte itself is never rewritten; OpForward
// means "write b to the serial transport as-is".
func (f *Filter) Feed(b byte) Op {
	// A new IAC always restarts the discard window, whatever the state.
	if b == IAC {
		f.discard = 2

		return OpDiscard
	}

	if f.discard > 0 {
		// BRK right after IAC short-circuits the rest of the window.
		if f.discard == 2 && b == BRK {
			f.discard = 0

			return OpBreak
		}

		f.discard--

		return OpDiscard
	}

	if f.filterNUL && b == NUL {
		return OpDiscard
	}

	return OpForward
}

// Reset returns the filter to the normal state. Sessions call it once at
// start so a window left open by a previous client cannot leak in.
func (f *Filter) Reset() {
	f.discard = 0
}

// Discarding reports whether the filter is inside a command discard
// window.
func (f *Filter) Discarding() bool {
	return f.discard > 0
}
