package uart

import (
	"fmt"
	"sync"
	"time"

	"github.com/arloliu/go-telbridge/internal/pool"
)

// Reset pulse defaults. A hold of around 100ms is long enough for the
// reset circuits on 8-bit micros while staying well under what a user
// perceives as a stall.
const (
	DefaultHoldTime = 100 * time.Millisecond

	MinHoldTime = 10 * time.Millisecond
	MaxHoldTime = 1 * time.Second
)

// Line drives one modem control output (DTR or RTS) of a Transport as a
// reset line for the attached device. Pulse asserts the output, holds it
// for the configured time, and releases it.
//
// Pulse is safe for concurrent use; overlapping calls serialize so two
// pulses never merge into one long assert.
type Line struct {
	name     string
	set      func(bool) error
	holdTime time.Duration
	inverted bool
	mu       sync.Mutex
}

// LineOption is a functional option for configuring a Line.
type LineOption interface {
	apply(*Line) error
}

type lineOptFunc func(*Line) error

func (f lineOptFunc) apply(l *Line) error { return f(l) }

// WithHoldTime sets how long the line stays asserted during a pulse.
// Must be in [MinHoldTime, MaxHoldTime].
func WithHoldTime(d time.Duration) LineOption {
	return lineOptFunc(func(l *Line) error {
		if d < MinHoldTime || d > MaxHoldTime {
			return fmt.Errorf("uart: hold time %v out of range [%v, %v]", d, MinHoldTime, MaxHoldTime)
		}
		l.holdTime = d

		return nil
	})
}

// WithInvertedPolarity inverts the drive sense for reset circuits that
// idle asserted: a pulse then drives the output false, holds, and
// returns it to true.
func WithInvertedPolarity() LineOption {
	return lineOptFunc(func(l *Line) error {
		l.inverted = true

		return nil
	})
}

// NewDTRLine returns a Line that pulses the transport's DTR output.
func NewDTRLine(t *Transport, opts ...LineOption) (*Line, error) {
	return newLine("DTR", t.port.SetDTR, opts)
}

// NewRTSLine returns a Line that pulses the transport's RTS output.
func NewRTSLine(t *Transport, opts ...LineOption) (*Line, error) {
	return newLine("RTS", t.port.SetRTS, opts)
}

func newLine(name string, set func(bool) error, opts []LineOption) (*Line, error) {
	l := &Line{
		name:     name,
		set:      set,
		holdTime: DefaultHoldTime,
	}

	for _, opt := range opts {
		if err := opt.apply(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

// Name returns which control output the line drives.
func (l *Line) Name() string { return l.name }

// HoldTime returns how long the line stays asserted during a pulse.
func (l *Line) HoldTime() time.Duration { return l.holdTime }

// Pulse asserts the line, holds it for the configured time, and
// releases it. It blocks for the full pulse.
func (l *Line) Pulse() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.set(!l.inverted); err != nil {
		return fmt.Errorf("uart: assert %s: %w", l.name, err)
	}

	timer := pool.GetTimer(l.holdTime)
	<-timer.C
	pool.PutTimer(timer)

	if err := l.set(l.inverted); err != nil {
		return fmt.Errorf("uart: release %s: %w", l.name, err)
	}

	return nil
}
