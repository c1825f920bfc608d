package bridge

import "sync/atomic"

// opState represents the lifecycle state of the server with respect to
// Open and Close.
type opState int32

const (
	// closedState indicates the server is fully closed.
	closedState opState = iota
	// closingState indicates a Close is in progress.
	closingState
	// openingState indicates an Open is in progress.
	openingState
	// openedState indicates the server is open and serving.
	openedState
)

// String returns a human-readable representation of the state.
func (s opState) String() string {
	switch s {
	case closedState:
		return "closed"
	case closingState:
		return "closing"
	case openingState:
		return "opening"
	case openedState:
		return "opened"
	default:
		return "unknown"
	}
}

// atomicOpState tracks the Open/Close lifecycle with atomic compare and
// swap transitions, so concurrent Open and Close calls settle into a
// single winner without locking.
type atomicOpState struct {
	state atomic.Int32
}

// Set unconditionally stores the given state.
func (a *atomicOpState) Set(state opState) {
	a.state.Store(int32(state))
}

// State returns the current state.
func (a *atomicOpState) State() opState {
	return opState(a.state.Load())
}

// IsClosed reports whether the state is closedState.
func (a *atomicOpState) IsClosed() bool {
	return a.State() == closedState
}

// IsOpened reports whether the state is openedState.
func (a *atomicOpState) IsOpened() bool {
	return a.State() == openedState
}

// ToOpening attempts the closed to opening transition.
func (a *atomicOpState) ToOpening() bool {
	return a.state.CompareAndSwap(int32(closedState), int32(openingState))
}

// ToOpened attempts the opening to opened transition.
func (a *atomicOpState) ToOpened() bool {
	return a.state.CompareAndSwap(int32(openingState), int32(openedState))
}

// ToClosing attempts the opened to closing transition.
func (a *atomicOpState) ToClosing() bool {
	return a.state.CompareAndSwap(int32(openedState), int32(closingState))
}

// ToClosed attempts the closing to closed transition.
func (a *atomicOpState) ToClosed() bool {
	return a.state.CompareAndSwap(int32(closingState), int32(closedState))
}
