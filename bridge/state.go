package bridge

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-telbridge/logger"
)

// ServerState represents the externally visible stage of the bridge
// lifecycle.
type ServerState uint32

// Bridge server states.
const (
	// StoppedState indicates that the server is not accepting clients.
	StoppedState ServerState = iota
	// ListeningState indicates that the listener is bound and waiting
	// for a client to connect.
	ListeningState
	// SessionState indicates that a client is connected and the relay
	// loop is running. At most one client is in this state at a time.
	SessionState
)

// IsStopped returns if the current state is stopped.
func (s ServerState) IsStopped() bool { return s == StoppedState }

// IsListening returns if the current state is listening.
func (s ServerState) IsListening() bool { return s == ListeningState }

// IsSession returns if the current state is session.
func (s ServerState) IsSession() bool { return s == SessionState }

// String returns string representation of the current state.
func (s ServerState) String() string {
	switch s {
	case StoppedState:
		return "stopped"
	case ListeningState:
		return "listening"
	case SessionState:
		return "session"
	default:
		return "unknown"
	}
}

// StateChangeHandler is a function type that represents a handler for
// server state changes.
//
// Note: the handler is invoked in blocking mode from the goroutine that
// performs the transition. Take care with long-running implementations.
type StateChangeHandler func(server *Server, prevState ServerState, newState ServerState)

// stateMgr manages the lifecycle state of a bridge server.
//
// It provides methods for managing state transitions and notifying
// listeners of state changes. The state transitions are thread safe in
// concurrent environments.
type stateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	server   *Server
	logger   logger.Logger
	handlers []StateChangeHandler
}

// newStateMgr creates a new stateMgr instance, initializing it to the
// StoppedState.
func newStateMgr(server *Server, handlers ...StateChangeHandler) *stateMgr {
	mgr := &stateMgr{
		server:   server,
		handlers: make([]StateChangeHandler, 0, len(handlers)),
	}

	mgr.handlers = append(mgr.handlers, handlers...)

	if server != nil {
		mgr.logger = server.logger
	} else {
		mgr.logger = logger.GetLogger()
	}

	mgr.state.Store(uint32(StoppedState))
	mgr.cond = sync.NewCond(&mgr.mu)

	return mgr
}

// State returns the current server state.
func (m *stateMgr) State() ServerState {
	return ServerState(m.state.Load())
}

// AddHandler adds one or more StateChangeHandler functions to be invoked
// on state changes.
func (m *stateMgr) AddHandler(handlers ...StateChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handlers...)
}

// WaitState waits for the server state to reach the specified state or
// until the context is done.
// It returns nil if the desired state is reached, or an error if the
// context is canceled or times out.
func (m *stateMgr) WaitState(ctx context.Context, state ServerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == state {
		return nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		m.cond.Broadcast()
	})
	defer stopFunc()

	for m.State() != state {
		select {
		case <-ctx.Done():
			m.logger.Debug("wait server state canceled", "cur_state", m.State(), "desired_state", state)
			return ctx.Err()
		default:
			m.cond.Wait()
		}
	}

	return nil
}

// ToStopped transitions the server state to StoppedState.
// This transition is allowed from any state and represents a shutdown of
// the listener.
func (m *stateMgr) ToStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()

	curState := m.State()

	if curState.IsStopped() {
		return // Already in StoppedState, no need to transition
	}

	// change state to stopped BEFORE all handlers finished
	m.setState(StoppedState)

	m.invokeHandlers(curState, StoppedState)
}

// ToListening transitions the server state to ListeningState.
//
// This transition is allowed from the StoppedState, after a successful
// listener bind, and from the SessionState, after the active session
// terminates. If the state is already ListeningState, the function is a
// no-op.
func (m *stateMgr) ToListening() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	curState := m.State()

	if curState.IsListening() {
		return nil // Already in ListeningState, no-op
	}

	m.invokeHandlers(curState, ListeningState)
	// change state after all handlers finished
	m.setState(ListeningState)

	return nil
}

// ToSession transitions the server state to SessionState.
//
// This transition is only allowed from the ListeningState and indicates
// that a client connection has been accepted.
// If the state is already SessionState, the function is a no-op.
//
// Returns nil on success, or ErrInvalidTransition if the current state
// is not ListeningState.
func (m *stateMgr) ToSession() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	curState := m.State()

	if curState.IsSession() {
		return nil // Already in SessionState, no-op
	}

	// Only allow transition from ListeningState
	if !curState.IsListening() {
		return ErrInvalidTransition
	}

	m.invokeHandlers(curState, SessionState)
	// change state after all handlers finished
	m.setState(SessionState)

	return nil
}

// setState atomically sets current state to the newState. It also
// broadcasts a signal to any waiting goroutines.
func (m *stateMgr) setState(newState ServerState) {
	m.state.Store(uint32(newState))
	m.cond.Broadcast()
}

// invokeHandlers invokes all registered StateChangeHandler functions with
// the previous and new states.
func (m *stateMgr) invokeHandlers(prevState ServerState, newState ServerState) {
	for _, handler := range m.handlers {
		if handler != nil {
			handler(m.server, prevState, newState)
		}
	}
}
