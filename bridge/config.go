package bridge

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/arloliu/go-telbridge/logger"
)

// Default values for the bridge engine.
const (
	// DefaultPort is the standard TELNET port.
	DefaultPort = 23

	DefaultSendRetryInterval = 5 * time.Millisecond // per-attempt wait before a blocked outbound byte is retried
	DefaultPreambleTimeout   = 3 * time.Second      // write deadline for the option preamble
	DefaultAcceptTimeout     = 1 * time.Second      // Accept deadline per iteration
	DefaultCloseTimeout      = 3 * time.Second
)

// Range limits for tunable durations.
const (
	MinSendRetryInterval = 1 * time.Millisecond
	MaxSendRetryInterval = 1 * time.Second

	MinPreambleTimeout = 100 * time.Millisecond
	MaxPreambleTimeout = 30 * time.Second
)

// Config holds all configuration for a TELNET to serial bridge server.
type Config struct {
	host string
	port int

	// serial is the injected transport to the attached device.
	serial SerialTransport

	// reset is the injected line that pulses the attached device's reset
	// input when a TELNET BRK command arrives.
	reset ResetLine

	// indicator receives link and session status changes.
	indicator StatusIndicator

	// filterNUL: when true, NUL bytes outside command sequences are
	// dropped instead of forwarded to the device.
	filterNUL bool

	// sendRetryInterval bounds a single outbound send attempt toward the
	// client before it is reported as ErrWouldBlock and retried.
	sendRetryInterval time.Duration

	// TCP-level timeouts.
	preambleTimeout time.Duration
	acceptTimeout   time.Duration
	closeTimeout    time.Duration

	logger logger.Logger
}

// NewConfig creates a new bridge server configuration.
//
// host is the bind address; an empty host binds all interfaces.
// port is the TCP port. opts are functional options applied in order;
// see With* functions.
func NewConfig(host string, port int, opts ...Option) (*Config, error) {
	cfg := &Config{
		reset:             NopResetLine{},
		indicator:         NopIndicator{},
		filterNUL:         true,
		sendRetryInterval: DefaultSendRetryInterval,
		preambleTimeout:   DefaultPreambleTimeout,
		acceptTimeout:     DefaultAcceptTimeout,
		closeTimeout:      DefaultCloseTimeout,
		logger:            logger.GetLogger(),
	}

	if err := cfg.setHost(host); err != nil {
		return nil, err
	}
	if err := cfg.setPort(port); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (cfg *Config) setHost(host string) error {
	// an empty host binds all interfaces
	if host == "" {
		cfg.host = host
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		cfg.host = host
		return nil
	}

	host = strings.TrimPrefix(host, ".")
	host = strings.TrimSuffix(host, ".")
	if _, err := net.LookupHost(host); err == nil {
		cfg.host = host
		return nil
	}

	return fmt.Errorf("bridge: invalid host %q", host)
}

func (cfg *Config) setPort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("bridge: port %d out of range [0, 65535]", port)
	}
	cfg.port = port

	return nil
}

// --- Getters ---

// Host returns the configured bind address.
func (cfg *Config) Host() string { return cfg.host }

// Port returns the configured TCP port.
func (cfg *Config) Port() int { return cfg.port }

// Addr returns "host:port".
func (cfg *Config) Addr() string { return fmt.Sprintf("%s:%d", cfg.host, cfg.port) }

// SerialTransport returns the configured serial transport, or nil when
// none has been set.
func (cfg *Config) SerialTransport() SerialTransport { return cfg.serial }

// ResetLine returns the configured reset line.
func (cfg *Config) ResetLine() ResetLine { return cfg.reset }

// StatusIndicator returns the configured status indicator.
func (cfg *Config) StatusIndicator() StatusIndicator { return cfg.indicator }

// NULFiltering returns whether NUL bytes are dropped from the client
// stream.
func (cfg *Config) NULFiltering() bool { return cfg.filterNUL }

// SendRetryInterval returns the bound on a single outbound send attempt.
func (cfg *Config) SendRetryInterval() time.Duration { return cfg.sendRetryInterval }

// PreambleTimeout returns the write deadline for the option preamble.
func (cfg *Config) PreambleTimeout() time.Duration { return cfg.preambleTimeout }

// AcceptTimeout returns the per-iteration accept deadline.
func (cfg *Config) AcceptTimeout() time.Duration { return cfg.acceptTimeout }

// CloseTimeout returns how long Close waits for tasks to terminate.
func (cfg *Config) CloseTimeout() time.Duration { return cfg.closeTimeout }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithSerialTransport sets the serial transport to the attached device.
// The transport is required; NewServer fails without one.
func WithSerialTransport(st SerialTransport) Option {
	return optFunc(func(cfg *Config) error {
		if st == nil {
			return errors.New("bridge: serial transport must not be nil")
		}
		cfg.serial = st

		return nil
	})
}

// WithResetLine sets the line pulsed when a TELNET BRK command arrives.
// Defaults to NopResetLine, which acknowledges BRK without touching any
// hardware.
func WithResetLine(rl ResetLine) Option {
	return optFunc(func(cfg *Config) error {
		if rl == nil {
			return errors.New("bridge: reset line must not be nil")
		}
		cfg.reset = rl

		return nil
	})
}

// WithStatusIndicator sets the receiver for link and session status
// changes. Defaults to NopIndicator.
func WithStatusIndicator(ind StatusIndicator) Option {
	return optFunc(func(cfg *Config) error {
		if ind == nil {
			return errors.New("bridge: status indicator must not be nil")
		}
		cfg.indicator = ind

		return nil
	})
}

// WithNULFiltering enables or disables dropping of NUL bytes from the
// client stream. Many TELNET clients emit CR NUL for the Enter key; most
// serial consoles expect a bare CR. Enabled by default.
func WithNULFiltering(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.filterNUL = enabled

		return nil
	})
}

// WithSendRetryInterval sets the bound on a single outbound send attempt
// toward the client. A byte the kernel cannot accept within the interval
// is reported as would-block and retried. Must be in
// [MinSendRetryInterval, MaxSendRetryInterval].
func WithSendRetryInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinSendRetryInterval || d > MaxSendRetryInterval {
			return fmt.Errorf("bridge: send retry interval %v out of range [%v, %v]", d, MinSendRetryInterval, MaxSendRetryInterval)
		}
		cfg.sendRetryInterval = d

		return nil
	})
}

// WithPreambleTimeout sets the write deadline for the option preamble
// sent at session start. Must be in [MinPreambleTimeout, MaxPreambleTimeout].
func WithPreambleTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < MinPreambleTimeout || d > MaxPreambleTimeout {
			return fmt.Errorf("bridge: preamble timeout %v out of range [%v, %v]", d, MinPreambleTimeout, MaxPreambleTimeout)
		}
		cfg.preambleTimeout = d

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for tasks to terminate.
func WithCloseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("bridge: close timeout must be positive")
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithLogger sets the logger for the server.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("bridge: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
