package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/arloliu/go-telbridge/logger"
	"github.com/arloliu/go-telbridge/telnet"
)

// readEvent carries one byte, or the error that ended a pump, from a
// pump goroutine to the relay loop.
type readEvent struct {
	b   byte
	err error
}

// session relays bytes between one TELNET client and the serial device.
//
// Each direction has a pump goroutine that blocks on its transport and
// hands single bytes to the relay loop over an unbuffered channel, so at
// most one byte per direction is ever in flight. The relay loop itself
// runs on the serve loop goroutine and moves at most one byte per
// direction per iteration, which keeps a chatty device from starving
// client input and vice versa.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg     *Config
	logger  logger.Logger
	channel *clientChannel
	serial  SerialTransport
	reset   ResetLine
	filter  *telnet.Filter
	metrics *ServerMetrics
	taskMgr *TaskManager

	clientCh chan readEvent
	serialCh chan readEvent

	// per-session relay counters, folded into the per-client statistics
	// by the server after the session ends.
	bytesIn  uint64 // client to device
	bytesOut uint64 // device to client

	err error // first fatal transport error; nil on orderly disconnect
}

func newSession(ctx context.Context, cfg *Config, channel *clientChannel, metrics *ServerMetrics) *session {
	s := &session{
		cfg:      cfg,
		channel:  channel,
		serial:   cfg.serial,
		reset:    cfg.reset,
		filter:   telnet.NewFilter(cfg.filterNUL),
		metrics:  metrics,
		clientCh: make(chan readEvent),
		serialCh: make(chan readEvent),
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.logger = cfg.logger.With("remote", channel.remoteAddr())
	s.taskMgr = NewTaskManager(s.ctx, s.logger)

	return s
}

// run drives the session to completion. It returns nil when the session
// ended with an orderly client disconnect or a server shutdown, and the
// terminating error otherwise.
func (s *session) run() error {
	defer s.teardown()

	// Drop device output that accumulated while no client was attached.
	if err := s.serial.Flush(); err != nil {
		s.err = fmt.Errorf("bridge: flush serial input: %w", err)
		s.metrics.incSessionErrCount()

		return s.err
	}

	// The option preamble must reach the client as a single write before
	// any relayed data.
	if err := s.channel.writeAll(telnet.Preamble(), s.cfg.preambleTimeout); err != nil {
		s.err = fmt.Errorf("bridge: send option preamble: %w", err)
		s.metrics.incSessionErrCount()

		return s.err
	}

	if err := s.taskMgr.StartPump("clientPump", s.clientPumpTask, nil); err != nil {
		s.err = err
		s.metrics.incSessionErrCount()

		return s.err
	}
	if err := s.taskMgr.StartPump("serialPump", s.serialPumpTask, nil); err != nil {
		s.err = err
		s.metrics.incSessionErrCount()

		return s.err
	}

	for s.relayIteration() {
	}

	if s.err != nil {
		s.metrics.incSessionErrCount()
	} else {
		s.metrics.incDisconnectCount()
	}

	return s.err
}

// teardown cancels the pumps, closes the client connection, and waits
// for all session tasks to terminate.
func (s *session) teardown() {
	s.cancel()
	s.taskMgr.Stop()
	_ = s.channel.close()
	s.taskMgr.Wait()
}

// relayIteration services at most one byte per direction without
// blocking, and when nothing moved, blocks until either side has data or
// the session is canceled. It returns false when the session is over.
func (s *session) relayIteration() bool {
	moved := false

	select {
	case ev := <-s.clientCh:
		if !s.handleClientEvent(ev) {
			return false
		}
		moved = true
	default:
	}

	select {
	case ev := <-s.serialCh:
		if !s.handleSerialEvent(ev) {
			return false
		}
		moved = true
	default:
	}

	if moved {
		return true
	}

	select {
	case <-s.ctx.Done():
		return false
	case ev := <-s.clientCh:
		return s.handleClientEvent(ev)
	case ev := <-s.serialCh:
		return s.handleSerialEvent(ev)
	}
}

// handleClientEvent runs one client byte through the TELNET filter and
// acts on the verdict. It returns false when the session is over.
func (s *session) handleClientEvent(ev readEvent) bool {
	if ev.err != nil {
		return s.handleClientError(ev.err)
	}

	switch s.filter.Feed(ev.b) {
	case telnet.OpForward:
		if err := s.serial.WriteByte(ev.b); err != nil {
			s.logger.Error("serial write failed", "error", err)
			s.err = err

			return false
		}

		s.bytesIn++
		s.metrics.incClientToSerialBytes()

	case telnet.OpBreak:
		s.metrics.incBreakCount()
		s.pulseReset()

	case telnet.OpDiscard:
		s.metrics.incFilteredByteCount()
	}

	return true
}

// handleClientError classifies the error that ended the client pump.
// An orderly disconnect and a local teardown leave s.err nil.
func (s *session) handleClientError(err error) bool {
	switch {
	case errors.Is(err, io.EOF):
		s.logger.Info("client disconnected")
	case isConnClosedError(err):
		// local teardown already in progress
	case isConnResetError(err):
		s.logger.Info("client connection reset")
	default:
		s.logger.Error("client read failed", "error", err)
		s.err = err
	}

	return false
}

// handleSerialEvent forwards one device byte to the client. It returns
// false when the session is over.
func (s *session) handleSerialEvent(ev readEvent) bool {
	if ev.err != nil {
		s.logger.Error("serial read failed", "error", ev.err)
		s.err = ev.err

		return false
	}

	if err := s.sendToClient(ev.b); err != nil {
		if !errors.Is(err, ErrSessionClosed) && !isConnClosedError(err) {
			s.logger.Error("client write failed", "error", err)
			s.err = err
		}

		return false
	}

	s.bytesOut++
	s.metrics.incSerialToClientBytes()

	return true
}

// sendToClient delivers one device byte to the client, retrying the same
// byte for as long as the channel reports would-block. The byte is never
// dropped and never duplicated; a retry only happens when the previous
// attempt delivered nothing.
func (s *session) sendToClient(b byte) error {
	for {
		err := s.channel.writeByteNoWait(b)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrWouldBlock) {
			return err
		}

		s.metrics.incSendRetryCount()

		select {
		case <-s.ctx.Done():
			return ErrSessionClosed
		default:
		}
	}
}

// pulseReset pulses the reset line once. A pulse failure does not end
// the session; the console may still be usable without reset control.
func (s *session) pulseReset() {
	s.logger.Info("break received, pulsing reset line")

	if err := s.reset.Pulse(); err != nil {
		s.metrics.incResetErrCount()
		s.logger.Warn("reset pulse failed", "error", err)
	}
}

// clientPumpTask reads one byte from the client and hands it to the
// relay loop. The read blocks until data arrives, the client
// disconnects, or teardown closes the connection.
func (s *session) clientPumpTask() bool {
	b, err := s.channel.readByte()

	select {
	case s.clientCh <- readEvent{b: b, err: err}:
	case <-s.ctx.Done():
		return false
	}

	return err == nil
}

// serialPumpTask reads one byte from the device and hands it to the
// relay loop. Device reads are bounded by the transport's poll interval
// so the pump can observe teardown.
func (s *session) serialPumpTask() bool {
	b, ok, err := s.serial.ReadByte()
	if err == nil && !ok {
		// poll interval elapsed with no data
		return true
	}

	select {
	case s.serialCh <- readEvent{b: b, err: err}:
	case <-s.ctx.Done():
		return false
	}

	return err == nil
}
