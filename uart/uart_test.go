package uart

import (
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/arloliu/go-telbridge/logger"
)

func TestMain(m *testing.M) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var level logger.LogLevel
	switch logLevel {
	case "debug":
		level = logger.DebugLevel
	case "info":
		level = logger.InfoLevel
	case "warn":
		level = logger.WarnLevel
	case "error":
		level = logger.ErrorLevel
	case "fatal":
		level = logger.FatalLevel
	default:
		level = logger.InfoLevel
	}

	logger.SetLevel(level)

	os.Exit(m.Run())
}

type lineEvent struct {
	value bool
	at    time.Time
}

// fakePort implements portHandle in memory.
type fakePort struct {
	mu sync.Mutex

	device string
	mode   *serial.Mode

	readQueue []byte
	readErr   error

	written    []byte
	writeErr   error
	shortWrite bool

	readTimeouts []time.Duration
	timeoutErr   error

	dtrEvents   []lineEvent
	dtrErr      error
	dtrErrAfter int
	rtsEvents   []lineEvent
	rtsErr      error

	resetCount int
	resetErr   error

	closed bool
}

func (p *fakePort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timeoutErr != nil {
		return p.timeoutErr
	}

	p.readTimeouts = append(p.readTimeouts, timeout)

	return nil
}

func (p *fakePort) SetDTR(value bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dtrErr != nil && len(p.dtrEvents) >= p.dtrErrAfter {
		return p.dtrErr
	}

	p.dtrEvents = append(p.dtrEvents, lineEvent{value: value, at: time.Now()})

	return nil
}

func (p *fakePort) SetRTS(value bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rtsErr != nil {
		return p.rtsErr
	}

	p.rtsEvents = append(p.rtsEvents, lineEvent{value: value, at: time.Now()})

	return nil
}

func (p *fakePort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.shortWrite {
		return 0, nil
	}

	p.written = append(p.written, data...)

	return len(data), nil
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.readErr != nil {
		return 0, p.readErr
	}

	// an empty queue behaves like an expired read timeout
	if len(p.readQueue) == 0 {
		return 0, nil
	}

	n := copy(buf, p.readQueue[:1])
	p.readQueue = p.readQueue[1:]

	return n, nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resetErr != nil {
		return p.resetErr
	}

	p.resetCount++
	p.readQueue = nil

	return nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	return nil
}

func (p *fakePort) writtenBytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]byte(nil), p.written...)
}

func (p *fakePort) dtrSequence() []lineEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]lineEvent(nil), p.dtrEvents...)
}

func (p *fakePort) rtsSequence() []lineEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]lineEvent(nil), p.rtsEvents...)
}

// stubOpenPort replaces openPort with one returning the given fake for
// the duration of the test.
func stubOpenPort(t *testing.T, port *fakePort) {
	t.Helper()

	orig := openPort
	openPort = func(device string, mode *serial.Mode) (portHandle, error) {
		port.mu.Lock()
		port.device = device
		port.mode = mode
		port.mu.Unlock()

		return port, nil
	}

	t.Cleanup(func() { openPort = orig })
}

// stubOpenPortError replaces openPort with one that always fails.
func stubOpenPortError(t *testing.T, err error) {
	t.Helper()

	orig := openPort
	openPort = func(string, *serial.Mode) (portHandle, error) {
		return nil, err
	}

	t.Cleanup(func() { openPort = orig })
}

func mustOpen(t *testing.T, port *fakePort, opts ...Option) *Transport {
	t.Helper()

	stubOpenPort(t, port)

	transport, err := Open("/dev/ttyFAKE0", opts...)
	require.NoError(t, err)

	return transport
}

func TestOpen_Defaults(t *testing.T) {
	port := &fakePort{}
	transport := mustOpen(t, port)

	assert.Equal(t, "/dev/ttyFAKE0", transport.Device())
	assert.Equal(t, DefaultBaudRate, transport.BaudRate())

	// The frame format is fixed at 8N1.
	require.NotNil(t, port.mode)
	assert.Equal(t, DefaultBaudRate, port.mode.BaudRate)
	assert.Equal(t, 8, port.mode.DataBits)
	assert.Equal(t, serial.NoParity, port.mode.Parity)
	assert.Equal(t, serial.OneStopBit, port.mode.StopBits)

	require.Len(t, port.readTimeouts, 1)
	assert.Equal(t, DefaultPollInterval, port.readTimeouts[0])
}

func TestOpen_WithOptions(t *testing.T) {
	port := &fakePort{}
	transport := mustOpen(t, port,
		WithBaudRate(115200),
		WithPollInterval(10*time.Millisecond),
	)

	assert.Equal(t, 115200, transport.BaudRate())
	assert.Equal(t, 115200, port.mode.BaudRate)

	require.Len(t, port.readTimeouts, 1)
	assert.Equal(t, 10*time.Millisecond, port.readTimeouts[0])
}

func TestOpen_OptionValidation(t *testing.T) {
	stubOpenPort(t, &fakePort{})

	_, err := Open("/dev/ttyFAKE0", WithBaudRate(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baud rate")

	_, err = Open("/dev/ttyFAKE0", WithBaudRate(5000000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "baud rate")

	_, err = Open("/dev/ttyFAKE0", WithPollInterval(time.Microsecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll interval")

	_, err = Open("/dev/ttyFAKE0", WithPollInterval(2*time.Second))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll interval")

	_, err = Open("/dev/ttyFAKE0", WithLogger(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger")
}

func TestOpen_PortError(t *testing.T) {
	fault := errors.New("no such device")
	stubOpenPortError(t, fault)

	_, err := Open("/dev/ttyFAKE0")
	require.ErrorIs(t, err, fault)
	assert.Contains(t, err.Error(), "uart: open /dev/ttyFAKE0")
}

func TestOpen_SetReadTimeoutError(t *testing.T) {
	port := &fakePort{timeoutErr: errors.New("not supported")}
	stubOpenPort(t, port)

	_, err := Open("/dev/ttyFAKE0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set read timeout")

	// The half-opened port must not leak.
	assert.True(t, port.closed)
}

func TestTransport_ReadByte(t *testing.T) {
	port := &fakePort{readQueue: []byte{'A', 'B'}}
	transport := mustOpen(t, port)

	b, ok, err := transport.ReadByte()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte('A'), b)

	b, ok, err = transport.ReadByte()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byte('B'), b)

	// An exhausted queue reads like an expired poll interval.
	_, ok, err = transport.ReadByte()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransport_ReadByteError(t *testing.T) {
	port := &fakePort{readErr: errors.New("io fault")}
	transport := mustOpen(t, port)

	_, ok, err := transport.ReadByte()
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "uart: read /dev/ttyFAKE0")
}

func TestTransport_WriteByte(t *testing.T) {
	port := &fakePort{}
	transport := mustOpen(t, port)

	require.NoError(t, transport.WriteByte('z'))
	require.NoError(t, transport.WriteByte('!'))

	assert.Equal(t, []byte("z!"), port.writtenBytes())
}

func TestTransport_WriteByteError(t *testing.T) {
	port := &fakePort{writeErr: errors.New("io fault")}
	transport := mustOpen(t, port)

	err := transport.WriteByte('z')
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uart: write /dev/ttyFAKE0")
}

func TestTransport_WriteByteShort(t *testing.T) {
	port := &fakePort{shortWrite: true}
	transport := mustOpen(t, port)

	err := transport.WriteByte('z')
	require.ErrorIs(t, err, io.ErrShortWrite)
}

func TestTransport_Flush(t *testing.T) {
	port := &fakePort{readQueue: []byte("stale")}
	transport := mustOpen(t, port)

	require.NoError(t, transport.Flush())
	assert.Equal(t, 1, port.resetCount)

	_, ok, err := transport.ReadByte()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransport_FlushError(t *testing.T) {
	port := &fakePort{resetErr: errors.New("io fault")}
	transport := mustOpen(t, port)

	err := transport.Flush()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uart: flush /dev/ttyFAKE0")
}

func TestTransport_Close(t *testing.T) {
	port := &fakePort{}
	transport := mustOpen(t, port)

	require.NoError(t, transport.Close())
	assert.True(t, port.closed)
}

func TestIsPortClosed(t *testing.T) {
	assert.False(t, IsPortClosed(nil))
	assert.False(t, IsPortClosed(errors.New("some other fault")))
	assert.False(t, IsPortClosed(io.EOF))
}
