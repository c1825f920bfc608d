// Package bridge implements the TELNET to serial session engine that
// turns a retrocomputer's UART console into a network service.
//
// A Server owns a TCP listener and serves exactly one client at a time:
// accept, run the session to completion, return to accepting. Clients
// that connect while a session is active wait in the kernel backlog.
// Sessions share no state; each one starts with a fresh TELNET filter
// and a flushed serial input buffer.
//
// # Session Model
//
// A session begins by writing the TELNET option preamble (WILL ECHO,
// WILL SUPPRESS-GO-AHEAD, WONT LINEMODE) as a single write, which moves
// the client into character-at-a-time mode. After that the session is a
// byte relay: client bytes pass through the telnet.Filter before
// reaching the device, device bytes go to the client unmodified.
//
// The relay moves at most one byte per direction per iteration. Each
// direction has a pump goroutine that hands single bytes to the relay
// loop over an unbuffered channel, so at most one byte per direction is
// ever in flight and neither side can starve the other.
//
// An outbound byte the client cannot take yet is retried until it is
// delivered; it is never dropped and never duplicated. An orderly
// client disconnect ends the session cleanly and the server returns to
// listening. Transport errors end the session; they never take down the
// server.
//
// # Injected Capabilities
//
// The serial transport, the reset line pulsed on a TELNET BRK, and the
// status indicator are interfaces supplied through the Config. The
// engine never opens or closes the serial device itself; the uart
// package provides implementations backed by real hardware.
package bridge
