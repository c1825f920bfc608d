package bridge

import (
	"errors"
	"net"
	"os"
	"strings"
)

var (
	// ErrConfigNil indicates that a nil Config was provided.
	ErrConfigNil = errors.New("bridge: config is nil")

	// ErrSerialNil indicates that no serial transport was configured.
	// The serial side is an injected capability; see WithSerialTransport.
	ErrSerialNil = errors.New("bridge: serial transport is not configured")

	// ErrWouldBlock indicates that a non-blocking send could not be
	// accepted by the client channel. The caller retries the same byte.
	ErrWouldBlock = errors.New("bridge: send would block")

	// ErrSessionClosed indicates that the session ended while an
	// operation was in flight.
	ErrSessionClosed = errors.New("bridge: session closed")

	// ErrServerClosed indicates that the server has been shut down.
	ErrServerClosed = errors.New("bridge: server closed")

	// ErrCloseTimeout indicates that Close gave up waiting for tasks to
	// terminate.
	ErrCloseTimeout = errors.New("bridge: close timeout")
)

var (
	// ErrInvalidTransition is returned when an attempt is made to move
	// the server state to a state not reachable from the current one.
	ErrInvalidTransition = errors.New("bridge: invalid state transition")
)

// isNetOpError reports whether err is a *net.OpError, which covers most
// failures on a listener or connection that is being torn down.
func isNetOpError(err error) bool {
	var netOpError *net.OpError

	return errors.As(err, &netOpError)
}

// isConnClosedError reports whether err is the expected error from I/O
// on a connection that has been closed locally during teardown.
func isConnClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// isConnResetError reports whether err is a TCP reset from the peer.
func isConnResetError(err error) bool {
	return strings.Contains(err.Error(), "connection reset by peer")
}

// isTimeoutError reports whether err is a deadline expiry rather than a
// transport fault.
func isTimeoutError(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
