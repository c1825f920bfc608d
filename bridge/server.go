package bridge

import (
	"context"
	"errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-telbridge/internal/pool"
	"github.com/arloliu/go-telbridge/logger"
)

// ClientStats accumulates statistics for one remote host across all of
// its sessions. Fields can be used as the value of a prometheus
// CounterFunc.
type ClientStats struct {
	// SessionCount indicates the number of sessions from this host.
	SessionCount atomic.Uint64
	// BytesIn indicates the bytes relayed from this host to the device.
	BytesIn atomic.Uint64
	// BytesOut indicates the bytes relayed from the device to this host.
	BytesOut atomic.Uint64
	// LastSeen is the unix nanosecond timestamp of the host's most
	// recent session start or end.
	LastSeen atomic.Int64
}

// Server accepts TELNET clients on a TCP port and bridges them, one at a
// time, to the configured serial transport.
//
// The server owns the listener and the serve loop; the serial transport
// and reset line are injected capabilities that outlive individual
// sessions. While a session is active no further connections are
// accepted, so a second client waits in the kernel backlog until the
// first disconnects.
type Server struct {
	pctx      context.Context
	ctx       context.Context
	ctxCancel context.CancelFunc

	cfg    *Config
	logger logger.Logger

	opState  atomicOpState
	stateMgr *stateMgr
	taskMgr  *TaskManager

	listener      net.Listener
	listenerMutex sync.Mutex

	clientStats *xsync.MapOf[string, *ClientStats]

	shutdown atomic.Bool
	metrics  ServerMetrics
}

// NewServer creates a new bridge server with the given context and
// configuration.
//
// The configuration must carry a serial transport; see
// WithSerialTransport.
func NewServer(ctx context.Context, cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if cfg.serial == nil {
		return nil, ErrSerialNil
	}

	srv := &Server{
		pctx:        ctx,
		cfg:         cfg,
		logger:      cfg.logger,
		clientStats: xsync.NewMapOf[string, *ClientStats](),
		taskMgr:     NewTaskManager(ctx, cfg.logger),
	}

	srv.opState.Set(closedState)
	srv.createContext()
	srv.stateMgr = newStateMgr(srv)

	return srv, nil
}

// Open binds the listener and starts the serve loop. It returns as soon
// as the server is listening; sessions are reported through the state
// manager and the configured status indicator.
func (srv *Server) Open() error {
	if !srv.opState.ToOpening() {
		srv.logger.Warn("bridge: failed to set server to opening state",
			"opState", srv.opState.State().String())

		return nil
	}

	srv.shutdown.Store(false)
	srv.createContext()

	if err := srv.ensureListener(); err != nil {
		srv.opState.Set(closedState)

		return err
	}

	if err := srv.taskMgr.Start("serveLoop", srv.serveLoopTask); err != nil {
		_ = srv.closeListener()
		srv.opState.Set(closedState)

		return err
	}

	if !srv.opState.ToOpened() {
		srv.logger.Warn("bridge: failed to set server to opened state",
			"opState", srv.opState.State().String())
	}

	_ = srv.stateMgr.ToListening()
	srv.cfg.indicator.LinkUp(true)

	srv.logger.Info("bridge: listening", "address", srv.LocalAddr())

	return nil
}

// Close shuts the server down gracefully.
//
// It stops accepting clients, terminates any active session, closes the
// listener, and waits up to the configured close timeout for all tasks
// to terminate. The injected serial transport is left open; closing it
// is the owner's responsibility.
func (srv *Server) Close() error {
	if !srv.opState.ToClosing() {
		if srv.opState.IsClosed() {
			return nil
		}

		srv.logger.Warn("bridge: close called while not opened",
			"opState", srv.opState.State().String())

		return nil
	}

	srv.logger.Debug("bridge: start to close server")

	srv.shutdown.Store(true)
	srv.ctxCancel()
	_ = srv.closeListener()

	srv.taskMgr.Stop()

	done := make(chan struct{})
	go func() {
		srv.taskMgr.Wait()
		close(done)
	}()

	closeTimer := pool.GetTimer(srv.cfg.closeTimeout)
	defer pool.PutTimer(closeTimer)

	var err error

	select {
	case <-done:
	case <-closeTimer.C:
		srv.logger.Error("bridge: close server timeout",
			"timeout", srv.cfg.closeTimeout,
			"task_count", srv.taskMgr.TaskCount())

		err = ErrCloseTimeout
	}

	srv.stateMgr.ToStopped()
	srv.cfg.indicator.LinkUp(false)

	if !srv.opState.ToClosed() {
		srv.logger.Warn("bridge: failed to set server to closed state",
			"opState", srv.opState.State().String())
	}

	srv.logger.Info("bridge: server closed")

	return err
}

// State returns the current lifecycle state of the server.
func (srv *Server) State() ServerState {
	return srv.stateMgr.State()
}

// WaitState waits for the server state to reach the specified state or
// until the context is done.
func (srv *Server) WaitState(ctx context.Context, state ServerState) error {
	return srv.stateMgr.WaitState(ctx, state)
}

// OnStateChange adds one or more handlers invoked on every state
// transition.
func (srv *Server) OnStateChange(handlers ...StateChangeHandler) {
	srv.stateMgr.AddHandler(handlers...)
}

// GetLogger returns the logger associated with the server.
func (srv *Server) GetLogger() logger.Logger {
	return srv.logger
}

// GetMetrics returns the metrics associated with the server.
func (srv *Server) GetMetrics() *ServerMetrics {
	return &srv.metrics
}

// ClientStatsFor returns the accumulated statistics for a remote host,
// or nil when that host has never connected.
func (srv *Server) ClientStatsFor(host string) *ClientStats {
	stats, ok := srv.clientStats.Load(host)
	if !ok {
		return nil
	}

	return stats
}

// RangeClientStats calls fn for each remote host seen so far.
// fn returns false to stop the iteration.
func (srv *Server) RangeClientStats(fn func(host string, stats *ClientStats) bool) {
	srv.clientStats.Range(fn)
}

// LocalAddr returns the listener address, or nil when the server is not
// listening.
func (srv *Server) LocalAddr() net.Addr {
	srv.listenerMutex.Lock()
	defer srv.listenerMutex.Unlock()

	if srv.listener == nil {
		return nil
	}

	return srv.listener.Addr()
}

// --- Serve loop ---

func (srv *Server) createContext() {
	srv.ctx, srv.ctxCancel = context.WithCancel(srv.pctx)
}

// serveLoopTask accepts one client, runs its session to completion, and
// returns to accepting. It returns false to stop the loop on shutdown.
func (srv *Server) serveLoopTask() bool {
	conn := srv.acceptOne()
	if conn == nil {
		return !srv.shutdown.Load()
	}

	srv.runSession(conn)

	return !srv.shutdown.Load()
}

// acceptOne waits up to the accept timeout for a client connection.
// It returns nil when the deadline passed, the listener is gone, or the
// server is shutting down.
func (srv *Server) acceptOne() net.Conn {
	tcpListener := srv.getTCPListener()
	if tcpListener == nil {
		return nil
	}

	if srv.shutdown.Load() {
		return nil
	}

	conn, err := tcpListener.Accept()
	if err != nil {
		srv.handleAcceptError(err)

		return nil
	}

	return conn
}

// handleAcceptError filters the accept failures that are part of a
// normal shutdown or deadline expiry; everything else is logged.
func (srv *Server) handleAcceptError(err error) {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}

	if srv.shutdown.Load() {
		return
	}

	if !isNetOpError(err) {
		srv.logger.Error("bridge: accept failed", "error", err)
	}
}

// runSession services one accepted client from option preamble to
// teardown. It blocks until the session is over, which is what keeps the
// bridge single-session: the serve loop cannot accept while it is in
// here.
func (srv *Server) runSession(conn net.Conn) {
	channel := newClientChannel(conn, srv.cfg)
	remote := channel.remoteAddr()

	srv.logger.Info("bridge: client connected", "remote", remote)

	srv.metrics.incSessionCount()
	srv.metrics.setSessionGauge(true)
	srv.cfg.indicator.SessionActive(true)

	stats := srv.statsFor(remote)
	stats.SessionCount.Add(1)
	stats.LastSeen.Store(time.Now().UnixNano())

	if err := srv.stateMgr.ToSession(); err != nil {
		srv.logger.Warn("bridge: session state transition rejected", "error", err)
	}

	sess := newSession(srv.ctx, srv.cfg, channel, &srv.metrics)
	err := sess.run()

	stats.BytesIn.Add(sess.bytesIn)
	stats.BytesOut.Add(sess.bytesOut)
	stats.LastSeen.Store(time.Now().UnixNano())

	srv.metrics.setSessionGauge(false)
	srv.cfg.indicator.SessionActive(false)

	if !srv.shutdown.Load() {
		_ = srv.stateMgr.ToListening()
	}

	if err != nil {
		srv.logger.Error("bridge: session ended with error", "remote", remote, "error", err)
	} else {
		srv.logger.Info("bridge: session ended", "remote", remote)
	}
}

// statsFor returns the statistics entry for a remote address, keyed by
// host so reconnects from the same machine share one entry.
func (srv *Server) statsFor(remoteAddr string) *ClientStats {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	stats, _ := srv.clientStats.LoadOrCompute(host, func() *ClientStats {
		return &ClientStats{}
	})

	return stats
}

// --- Listener management ---

// ensureListener creates the TCP listener if one doesn't already exist.
func (srv *Server) ensureListener() error {
	srv.listenerMutex.Lock()
	defer srv.listenerMutex.Unlock()

	if srv.listener != nil {
		return nil
	}

	address := net.JoinHostPort(srv.cfg.host, strconv.Itoa(srv.cfg.port))

	var lc net.ListenConfig

	listener, err := lc.Listen(srv.ctx, "tcp", address)
	if err != nil {
		srv.logger.Error("bridge: failed to listen", "address", address, "error", err)

		return err
	}

	srv.listener = listener

	return nil
}

// getTCPListener retrieves the listener and sets the accept deadline.
func (srv *Server) getTCPListener() *net.TCPListener {
	srv.listenerMutex.Lock()
	defer srv.listenerMutex.Unlock()

	if srv.listener == nil {
		return nil
	}

	tcpListener, ok := srv.listener.(*net.TCPListener)
	if !ok {
		return nil
	}

	if err := tcpListener.SetDeadline(time.Now().Add(srv.cfg.acceptTimeout)); err != nil {
		srv.logger.Error("bridge: failed to set accept deadline", "error", err)

		return nil
	}

	return tcpListener
}

// closeListener closes the TCP listener.
func (srv *Server) closeListener() error {
	srv.listenerMutex.Lock()
	defer srv.listenerMutex.Unlock()

	if srv.listener != nil {
		err := srv.listener.Close()
		srv.listener = nil

		return err
	}

	return nil
}
