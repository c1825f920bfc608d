// Package uart provides the serial port transport and reset line
// implementations consumed by the bridge engine.
//
// Transport wraps a go.bug.st/serial port into the byte-at-a-time shape
// the relay loop expects: reads are bounded by a poll interval so the
// reading goroutine can observe shutdown, writes block until the driver
// accepts the byte, and Flush drops stale input at session start. The
// frame format is fixed at 8N1.
//
// Line turns the port's DTR or RTS modem control output into a reset
// pulse generator for the attached machine. Wiring either line to a
// retrocomputer's reset input lets a TELNET BRK command reboot it
// remotely.
package uart
