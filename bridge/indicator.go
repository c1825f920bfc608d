package bridge

// StatusIndicator receives link and session status changes from the
// server. Implementations back it with whatever the deployment has: a
// panel LED, a GPIO pin, or a log line.
//
// Callbacks are invoked synchronously, LinkUp from Open and Close and
// SessionActive from the serve loop; keep implementations fast.
type StatusIndicator interface {
	// LinkUp is called with true when the listener is bound and ready,
	// and false when the server stops listening.
	LinkUp(up bool)

	// SessionActive is called with true when a client session starts and
	// false when it ends.
	SessionActive(active bool)
}

// NopIndicator is a StatusIndicator that ignores all status changes.
// It is the default when no indicator is configured.
type NopIndicator struct{}

// LinkUp implements the StatusIndicator interface.
func (NopIndicator) LinkUp(bool) {}

// SessionActive implements the StatusIndicator interface.
func (NopIndicator) SessionActive(bool) {}
