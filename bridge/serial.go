package bridge

// SerialTransport is the duplex byte channel to the attached device.
//
// The bridge engine treats the serial side as an injected capability; it
// never opens or closes the underlying device itself. The uart package
// provides an implementation backed by a real serial port.
//
// Implementations are accessed from at most two goroutines at a time,
// one reading and one writing, and must tolerate that split.
type SerialTransport interface {
	// ReadByte reads one byte from the device. ok reports whether a byte
	// was read; false with a nil error means the implementation's poll
	// interval elapsed with no data and the caller should try again.
	ReadByte() (b byte, ok bool, err error)

	// WriteByte writes one byte to the device, blocking until the byte
	// is accepted.
	WriteByte(b byte) error

	// Flush discards device input buffered before the current moment.
	// The engine calls it once per session, before relaying starts, so
	// a new client never receives output addressed to a previous one.
	Flush() error
}

// ResetLine is the control line wired to the attached device's reset
// input.
type ResetLine interface {
	// Pulse asserts the line, holds it for the implementation's
	// configured duration, and releases it. It blocks for the full
	// pulse and returns any hardware error.
	Pulse() error
}

// NopResetLine is a ResetLine that is not wired to any hardware.
// Pulse always succeeds without side effects. It is the default when no
// reset line is configured.
type NopResetLine struct{}

// Pulse implements the ResetLine interface.
func (NopResetLine) Pulse() error { return nil }
