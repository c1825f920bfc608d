// Package telnet provides the minimal TELNET protocol surface needed by a
// character-at-a-time serial console bridge: the command and option byte
// constants, the fixed negotiation preamble, and the inbound control-byte
// filter.
//
// This is deliberately not a full TELNET implementation. The bridge
// announces its terminal mode once and never negotiates again, so no
// option state machine exists beyond discarding command sequences.
//
// # Negotiation Preamble
//
// Every session starts with a single write of nine bytes:
//
//   - IAC WILL ECHO (RFC 857): the server echoes, the client must not
//   - IAC WILL SUPPRESS-GO-AHEAD (RFC 858): full-duplex, no GA prompts
//   - IAC WONT LINEMODE (RFC 1184): disable client-side line editing
//
// Together these switch a conforming client into character-at-a-time
// mode, which is what a machine console on the serial side expects.
//
// # Inbound Filtering
//
// The client's replies to the preamble (and any later commands) arrive
// interleaved with keystrokes. Filter consumes the stream byte-by-byte,
// discarding IAC sequences and recognizing one out-of-band command:
// IAC BRK, which the bridge maps to a hardware reset pulse.
//
// All decisions are pure; the caller performs the side effects (serial
// writes and the reset pulse), keeping the state machine directly
// testable.
package telnet
