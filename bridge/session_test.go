package bridge

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-telbridge/telnet"
)

func TestSession_PreambleSentFirst(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial)
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)

	got := readExactly(t, remote, telnet.PreambleSize)
	assert.Equal(t, telnet.Preamble(), got)

	require.NoError(t, remote.Close())
	require.NoError(t, waitSessionEnd(t, errCh))
}

func TestSession_FlushDropsStaleDeviceBytes(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial)
	metrics := &ServerMetrics{}

	// Device output that accumulated before the client connected must not
	// reach the client.
	serial.feed([]byte("XYZ"))

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	serial.feed([]byte{'W'})
	got := readExactly(t, remote, 1)
	assert.Equal(t, byte('W'), got[0])

	require.NoError(t, remote.Close())
	require.NoError(t, waitSessionEnd(t, errCh))

	assert.Equal(t, 1, serial.flushes())
}

func TestSession_FlushError(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial)
	metrics := &ServerMetrics{}

	fault := errors.New("device gone")
	serial.failFlush(fault)

	_, errCh := startTestSession(t, cfg, metrics)

	err := waitSessionEnd(t, errCh)
	require.ErrorIs(t, err, fault)
	assert.Contains(t, err.Error(), "flush serial input")
	assert.Equal(t, uint64(1), metrics.SessionErrCount.Load())
}

func TestSession_PreambleTimeout(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial, WithPreambleTimeout(MinPreambleTimeout))
	metrics := &ServerMetrics{}

	// Never read the client side; the preamble write must give up.
	_, errCh := startTestSession(t, cfg, metrics)

	err := waitSessionEnd(t, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "option preamble")
	assert.Equal(t, uint64(1), metrics.SessionErrCount.Load())
}

func TestSession_RelayClientToDevice(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial)
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	mustWrite(t, remote, []byte("hello"))
	assert.Equal(t, []byte("hello"), serial.received(t, 5))

	require.NoError(t, remote.Close())
	require.NoError(t, waitSessionEnd(t, errCh))

	assert.Equal(t, uint64(5), metrics.ClientToSerialBytes.Load())
	assert.Equal(t, uint64(1), metrics.DisconnectCount.Load())
	assert.Equal(t, uint64(0), metrics.SessionErrCount.Load())
}

func TestSession_RelayDeviceToClient(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial)
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	serial.feed([]byte("OK>"))
	assert.Equal(t, []byte("OK>"), readExactly(t, remote, 3))

	require.NoError(t, remote.Close())
	require.NoError(t, waitSessionEnd(t, errCh))

	assert.Equal(t, uint64(3), metrics.SerialToClientBytes.Load())
}

func TestSession_RelayBothDirections(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial)
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	// A command goes out, a response comes back, repeatedly.
	for i := 0; i < 5; i++ {
		mustWrite(t, remote, []byte("AT\r"))
		assert.Equal(t, []byte("AT\r"), serial.received(t, 3))

		serial.feed([]byte("OK\r\n"))
		assert.Equal(t, []byte("OK\r\n"), readExactly(t, remote, 4))
	}

	require.NoError(t, remote.Close())
	require.NoError(t, waitSessionEnd(t, errCh))

	assert.Equal(t, uint64(15), metrics.ClientToSerialBytes.Load())
	assert.Equal(t, uint64(20), metrics.SerialToClientBytes.Load())
}

func TestSession_FilterStripsCommandsAndNUL(t *testing.T) {
	serial := newFakeSerial()
	reset := &fakeResetLine{}
	cfg := newTestConfig(t, serial, WithResetLine(reset))
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	// A negotiation reply, a NUL from CR NUL line endings, and a break
	// interleaved with data bytes.
	mustWrite(t, remote, []byte{
		telnet.IAC, telnet.WILL, telnet.OptEcho,
		'A',
		telnet.NUL,
		'B',
		telnet.IAC, telnet.BRK,
		'C',
	})

	assert.Equal(t, []byte("ABC"), serial.received(t, 3))

	require.NoError(t, remote.Close())
	require.NoError(t, waitSessionEnd(t, errCh))

	assert.Equal(t, uint64(3), metrics.ClientToSerialBytes.Load())
	assert.Equal(t, uint64(5), metrics.FilteredByteCount.Load())
	assert.Equal(t, uint64(1), metrics.BreakCount.Load())
	assert.Equal(t, 1, reset.pulseCount())
}

func TestSession_NULForwardedWhenFilteringDisabled(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial, WithNULFiltering(false))
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	mustWrite(t, remote, []byte{'A', telnet.NUL, 'B'})
	assert.Equal(t, []byte{'A', 0, 'B'}, serial.received(t, 3))

	require.NoError(t, remote.Close())
	require.NoError(t, waitSessionEnd(t, errCh))

	assert.Equal(t, uint64(0), metrics.FilteredByteCount.Load())
}

func TestSession_BreakPulsesResetLine(t *testing.T) {
	serial := newFakeSerial()
	reset := &fakeResetLine{}
	cfg := newTestConfig(t, serial, WithResetLine(reset))
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	mustWrite(t, remote, []byte{telnet.IAC, telnet.BRK})

	// The pulse happens on the relay goroutine before the next byte is
	// processed, so a trailing data byte orders the assertion.
	mustWrite(t, remote, []byte{'R'})
	serial.received(t, 1)

	assert.Equal(t, 1, reset.pulseCount())

	require.NoError(t, remote.Close())
	require.NoError(t, waitSessionEnd(t, errCh))

	assert.Equal(t, uint64(1), metrics.BreakCount.Load())
	assert.Equal(t, uint64(0), metrics.ResetErrCount.Load())
}

func TestSession_ResetPulseFailureKeepsSessionAlive(t *testing.T) {
	serial := newFakeSerial()
	reset := &fakeResetLine{}
	reset.fail(errors.New("gpio busy"))
	cfg := newTestConfig(t, serial, WithResetLine(reset))
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	mustWrite(t, remote, []byte{telnet.IAC, telnet.BRK, 'A'})

	// The session survives the failed pulse and keeps relaying.
	assert.Equal(t, []byte{'A'}, serial.received(t, 1))

	require.NoError(t, remote.Close())
	require.NoError(t, waitSessionEnd(t, errCh))

	assert.Equal(t, uint64(1), metrics.BreakCount.Load())
	assert.Equal(t, uint64(1), metrics.ResetErrCount.Load())
	assert.Equal(t, 1, reset.pulseCount())
	assert.Equal(t, uint64(0), metrics.SessionErrCount.Load())
}

func TestSession_SlowClientBackpressure(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial)
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	// Flood from the device while the client is not reading. Every byte
	// must still arrive exactly once and in order.
	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	serial.feed(payload)

	time.Sleep(50 * time.Millisecond)

	got := readExactly(t, remote, len(payload))
	assert.Equal(t, payload, got)

	require.NoError(t, remote.Close())
	require.NoError(t, waitSessionEnd(t, errCh))

	assert.Equal(t, uint64(len(payload)), metrics.SerialToClientBytes.Load())
	assert.Positive(t, metrics.SendRetryCount.Load())
}

func TestSession_ClientDisconnect(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial)
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	require.NoError(t, remote.Close())
	require.NoError(t, waitSessionEnd(t, errCh))

	assert.Equal(t, uint64(1), metrics.DisconnectCount.Load())
	assert.Equal(t, uint64(0), metrics.SessionErrCount.Load())
}

func TestSession_SerialReadError(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial)
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	fault := errors.New("uart gone")
	serial.failRead(fault)

	err := waitSessionEnd(t, errCh)
	require.ErrorIs(t, err, fault)
	assert.Equal(t, uint64(1), metrics.SessionErrCount.Load())
	assert.Equal(t, uint64(0), metrics.DisconnectCount.Load())
}

func TestSession_SerialWriteError(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial)
	metrics := &ServerMetrics{}

	remote, errCh := startTestSession(t, cfg, metrics)
	readExactly(t, remote, telnet.PreambleSize)

	fault := errors.New("uart gone")
	serial.failWrite(fault)

	mustWrite(t, remote, []byte{'A'})

	err := waitSessionEnd(t, errCh)
	require.ErrorIs(t, err, fault)
	assert.Equal(t, uint64(1), metrics.SessionErrCount.Load())
	assert.Equal(t, uint64(0), metrics.ClientToSerialBytes.Load())
}

func TestSession_ContextCancel(t *testing.T) {
	serial := newFakeSerial()
	cfg := newTestConfig(t, serial)
	metrics := &ServerMetrics{}

	local, remote := net.Pipe()
	t.Cleanup(func() {
		_ = local.Close()
		_ = remote.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := newSession(ctx, cfg, newClientChannel(local, cfg), metrics)

	errCh := make(chan error, 1)
	go func() {
		errCh <- sess.run()
	}()

	readExactly(t, remote, telnet.PreambleSize)

	// Parent cancellation, as on server shutdown, ends the session
	// without a session error.
	cancel()

	require.NoError(t, waitSessionEnd(t, errCh))
	assert.Equal(t, uint64(0), metrics.SessionErrCount.Load())
	assert.Equal(t, uint64(1), metrics.DisconnectCount.Load())
}
