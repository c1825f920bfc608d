package uart

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/arloliu/go-telbridge/logger"
)

// allow tests to override external dependencies
var openPort = func(device string, mode *serial.Mode) (portHandle, error) { return serial.Open(device, mode) }

// Default values for a transport. The frame format is fixed at 8N1,
// which is what virtually every retrocomputer console speaks.
const (
	DefaultBaudRate = 9600

	// DefaultPollInterval bounds a single blocking read on the port, so
	// a reader can observe shutdown between polls. It trades off between
	// CPU usage and shutdown latency.
	DefaultPollInterval = 50 * time.Millisecond
)

// Range limits for transport tunables.
const (
	MinBaudRate = 50
	MaxBaudRate = 4000000

	MinPollInterval = 1 * time.Millisecond
	MaxPollInterval = 1 * time.Second
)

// portHandle is the subset of serial.Port the transport uses.
type portHandle interface {
	SetReadTimeout(timeout time.Duration) error
	SetDTR(bool) error
	SetRTS(bool) error
	Write([]byte) (int, error)
	Read([]byte) (int, error)
	ResetInputBuffer() error
	Close() error
}

type config struct {
	baudRate     int
	pollInterval time.Duration
	logger       logger.Logger
}

// Option is a functional option for configuring a Transport.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithBaudRate sets the line speed in bits per second. Must be in
// [MinBaudRate, MaxBaudRate].
func WithBaudRate(rate int) Option {
	return optFunc(func(cfg *config) error {
		if rate < MinBaudRate || rate > MaxBaudRate {
			return fmt.Errorf("uart: baud rate %d out of range [%d, %d]", rate, MinBaudRate, MaxBaudRate)
		}
		cfg.baudRate = rate

		return nil
	})
}

// WithPollInterval sets the bound on a single blocking read. Must be in
// [MinPollInterval, MaxPollInterval].
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < MinPollInterval || d > MaxPollInterval {
			return fmt.Errorf("uart: poll interval %v out of range [%v, %v]", d, MinPollInterval, MaxPollInterval)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithLogger sets the logger for the transport.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("uart: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// Transport is a byte-oriented serial port wrapper shaped for the
// bridge engine: single-byte polled reads, single-byte blocking writes,
// and an input flush.
//
// A Transport is accessed from at most two goroutines at a time, one
// reading and one writing. The underlying serial port permits that
// split; no single method is safe for concurrent use with itself.
type Transport struct {
	device string
	cfg    config
	port   portHandle
	logger logger.Logger
	rbuf   [1]byte
}

// Open opens the serial device with the given options and fixes the
// frame format at 8N1.
func Open(device string, opts ...Option) (*Transport, error) {
	cfg := config{
		baudRate:     DefaultBaudRate,
		pollInterval: DefaultPollInterval,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}

	mode := &serial.Mode{
		BaudRate: cfg.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := openPort(device, mode)
	if err != nil {
		return nil, fmt.Errorf("uart: open %s: %w", device, err)
	}

	if err := port.SetReadTimeout(cfg.pollInterval); err != nil {
		_ = port.Close()

		return nil, fmt.Errorf("uart: set read timeout on %s: %w", device, err)
	}

	cfg.logger.Info("uart: port opened", "device", device, "baud", cfg.baudRate)

	return &Transport{
		device: device,
		cfg:    cfg,
		port:   port,
		logger: cfg.logger,
	}, nil
}

// Device returns the device path the transport was opened with.
func (t *Transport) Device() string { return t.device }

// BaudRate returns the configured line speed.
func (t *Transport) BaudRate() int { return t.cfg.baudRate }

// ReadByte reads one byte from the device. ok reports whether a byte
// was read; false with a nil error means the poll interval elapsed with
// no data.
func (t *Transport) ReadByte() (byte, bool, error) {
	n, err := t.port.Read(t.rbuf[:])
	if err != nil {
		return 0, false, fmt.Errorf("uart: read %s: %w", t.device, err)
	}
	if n == 0 {
		// poll interval elapsed with no data
		return 0, false, nil
	}

	return t.rbuf[0], true, nil
}

// WriteByte writes one byte to the device, blocking until the driver
// accepts it.
func (t *Transport) WriteByte(b byte) error {
	buf := [1]byte{b}

	n, err := t.port.Write(buf[:])
	if err != nil {
		return fmt.Errorf("uart: write %s: %w", t.device, err)
	}
	if n != 1 {
		return fmt.Errorf("uart: write %s: %w", t.device, io.ErrShortWrite)
	}

	return nil
}

// Flush discards device input buffered before the current moment.
func (t *Transport) Flush() error {
	if err := t.port.ResetInputBuffer(); err != nil {
		return fmt.Errorf("uart: flush %s: %w", t.device, err)
	}

	return nil
}

// Close closes the underlying serial port.
func (t *Transport) Close() error {
	t.logger.Info("uart: port closed", "device", t.device)

	return t.port.Close()
}

// IsPortClosed reports whether err indicates the serial port was closed
// out from under the transport.
func IsPortClosed(err error) bool {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() == serial.PortClosed
	}

	return false
}
