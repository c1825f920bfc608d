package telnet

import "github.com/arloliu/go-telbridge/internal/util"

// TELNET command bytes recognized by the bridge (RFC 854).
// These appear in the inbound client stream and must never reach the
// serial side.
const (
	// NUL is the zero byte. Clients in line mode commonly send it as
	// padding after CR; the NVT treats it as a no-op (RFC 854).
	NUL byte = 0

	// BRK is the Break command (RFC 854). The bridge repurposes it to
	// trigger a hardware reset pulse on the attached device.
	BRK byte = 243

	// WILL announces that the sender wants to begin performing the
	// option named by the following byte (RFC 855).
	WILL byte = 251

	// WONT announces refusal to perform the option named by the
	// following byte (RFC 855).
	WONT byte = 252

	// DO requests that the receiver begin performing the option named
	// by the following byte (RFC 855).
	DO byte = 253

	// DONT requests that the receiver stop performing the option named
	// by the following byte (RFC 855).
	DONT byte = 254

	// IAC (Interpret As Command) introduces every TELNET command
	// sequence (RFC 854). Data byte 255 cannot be carried; the relayed
	// stream is treated as console text, not binary.
	IAC byte = 255
)

// TELNET option codes used in the negotiation preamble.
const (
	// OptEcho is the ECHO option (RFC 857).
	OptEcho byte = 1

	// OptSuppressGoAhead is the SUPPRESS-GO-AHEAD option (RFC 858).
	OptSuppressGoAhead byte = 3

	// OptLinemode is the LINEMODE option (RFC 1184).
	OptLinemode byte = 34
)

// preamble is the fixed character-at-a-time announcement: WILL ECHO,
// WILL SUPPRESS-GO-AHEAD, WONT LINEMODE. Sent once per session, in one
// write, before any relayed data.
var preamble = []byte{
	IAC, WILL, OptEcho,
	IAC, WILL, OptSuppressGoAhead,
	IAC, WONT, OptLinemode,
}

// PreambleSize is the wire length of the negotiation preamble.
const PreambleSize = 9

// Preamble returns a copy of the negotiation preamble wire bytes.
func Preamble() []byte {
	return util.CloneSlice(preamble, 0)
}
