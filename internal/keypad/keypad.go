// Package keypad scans a row/column key matrix and latches key presses into a
// single-slot, read-once buffer.
//
// Rows are outputs held high and columns are inputs with pull-ups. A pressed
// key shorts its row to its column, so driving that row low pulls the column
// low. Scan drives each row low in turn and samples every column.
//
// This package has no hardware or wall-clock dependencies of its own: pins
// come from a gpio.Bus and time from a Clock.
package keypad

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/keypad-scanner/internal/gpio"
)

var (
	// ErrInvalidLayout is returned by New for a layout with no rows, no
	// columns, or a key table that does not match the pins.
	ErrInvalidLayout = errors.New("keypad: invalid layout")

	// ErrNilScanner is returned by the blocking waits on a nil *Scanner.
	ErrNilScanner = errors.New("keypad: nil scanner")

	// ErrTimeout is returned by WaitForKeyTimeout when no key arrives in time.
	ErrTimeout = errors.New("keypad: timed out waiting for key")
)

// Scanner tracks one keypad. It is not safe for concurrent use.
type Scanner struct {
	bus     gpio.Bus
	rowPins []int
	colPins []int
	keys    []rune // row-major, len(rowPins)*len(colPins)

	clock        Clock
	pollInterval time.Duration

	// last is the key seen by the previous scan pass, for edge detection.
	last   rune
	lastOK bool

	// pending is the buffered, unread key.
	pending   rune
	pendingOK bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithClock sets the clock used by WaitForKeyTimeout.
func WithClock(c Clock) Option {
	return func(s *Scanner) { s.clock = c }
}

// WithPollInterval makes the blocking waits sleep for d between scan passes
// instead of spinning.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scanner) { s.pollInterval = d }
}

// New validates layout, copies it, and configures the pins: every row as an
// output driven high, every column as an input with pull-up.
func New(bus gpio.Bus, layout Layout, opts ...Option) (*Scanner, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	s := &Scanner{
		bus:     bus,
		rowPins: append([]int(nil), layout.RowPins...),
		colPins: append([]int(nil), layout.ColPins...),
		keys:    layout.flatten(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = NewSystemClock()
	}

	for _, p := range s.rowPins {
		if err := bus.ConfigureOutput(p, gpio.High); err != nil {
			return nil, fmt.Errorf("configure row pin %d: %w", p, err)
		}
	}
	for _, p := range s.colPins {
		if err := bus.ConfigureInputPullUp(p); err != nil {
			return nil, fmt.Errorf("configure column pin %d: %w", p, err)
		}
	}
	return s, nil
}

// Scan samples the whole matrix once and updates the buffer.
//
// If several keys are active, the one in the highest row wins, then the
// highest column within that row. A key is buffered only on the edge where
// it first appears; holding it does nothing further, and releasing it does
// not clear an unread buffered key.
//
// On a bus error the pass is abandoned, the active row is returned high and
// the scanner state is left as it was. A failure to return the row high is
// joined into the returned error.
func (s *Scanner) Scan() error {
	if s == nil {
		return nil
	}

	key, found, err := s.sweep()
	if err != nil {
		return err
	}

	if key == s.last && found == s.lastOK {
		return nil
	}
	s.last, s.lastOK = key, found
	if found {
		s.pending, s.pendingOK = key, true
	}
	return nil
}

// sweep drives each row low in turn and returns the last active crossing.
func (s *Scanner) sweep() (rune, bool, error) {
	var (
		key   rune
		found bool
	)
	cols := len(s.colPins)
	for r, rp := range s.rowPins {
		if err := s.bus.Write(rp, gpio.Low); err != nil {
			return 0, false, errors.Join(
				fmt.Errorf("drive row %d (pin %d): %w", r, rp, err),
				s.restoreRow(r, rp))
		}
		for c, cp := range s.colPins {
			level, err := s.bus.Read(cp)
			if err != nil {
				return 0, false, errors.Join(
					fmt.Errorf("read column %d (pin %d): %w", c, cp, err),
					s.restoreRow(r, rp))
			}
			if level == gpio.Low {
				key, found = s.keys[r*cols+c], true
			}
		}
		if err := s.bus.Write(rp, gpio.High); err != nil {
			return 0, false, fmt.Errorf("release row %d (pin %d): %w", r, rp, err)
		}
	}
	return key, found, nil
}

// restoreRow returns an abandoned row to idle high.
func (s *Scanner) restoreRow(r, pin int) error {
	if err := s.bus.Write(pin, gpio.High); err != nil {
		return fmt.Errorf("restore row %d (pin %d): %w", r, pin, err)
	}
	return nil
}

// Pending reports whether a key press is waiting to be consumed.
func (s *Scanner) Pending() bool {
	if s == nil {
		return false
	}
	return s.pendingOK
}

// Consume returns the buffered key and empties the buffer, so each press is
// delivered once. ok is false if nothing was buffered.
func (s *Scanner) Consume() (key rune, ok bool) {
	if s == nil {
		return 0, false
	}
	key, ok = s.pending, s.pendingOK
	s.pending, s.pendingOK = 0, false
	return key, ok
}

// Flush discards any buffered key. A key still held down is not buffered
// again until it is released and pressed anew.
func (s *Scanner) Flush() {
	if s == nil {
		return
	}
	s.pending, s.pendingOK = 0, false
}

// WaitForKey scans until a key press is buffered and returns it.
// It blocks until then; a bus error ends the wait.
func (s *Scanner) WaitForKey() (rune, error) {
	if s == nil {
		return 0, ErrNilScanner
	}
	for !s.Pending() {
		if err := s.Scan(); err != nil {
			return 0, err
		}
		if !s.Pending() {
			s.pause()
		}
	}
	key, _ := s.Consume()
	return key, nil
}

// WaitForKeyTimeout is WaitForKey with a deadline. It keeps scanning while
// no key is buffered and no more than timeout has elapsed on the clock, then
// returns the buffered key or ErrTimeout. The timeout is taken in whole
// milliseconds; elapsed time is measured across counter wraparound.
func (s *Scanner) WaitForKeyTimeout(timeout time.Duration) (rune, error) {
	if s == nil {
		return 0, ErrNilScanner
	}
	limit := durationMillis(timeout)
	start := s.clock.Millis()

	for !s.Pending() && elapsed(start, s.clock.Millis()) <= limit {
		if err := s.Scan(); err != nil {
			return 0, err
		}
		if !s.Pending() {
			s.pause()
		}
	}

	key, ok := s.Consume()
	if !ok {
		return 0, ErrTimeout
	}
	return key, nil
}

func (s *Scanner) pause() {
	if s.pollInterval > 0 {
		time.Sleep(s.pollInterval)
	}
}

// Rows returns the number of rows.
func (s *Scanner) Rows() int { return len(s.rowPins) }

// Cols returns the number of columns.
func (s *Scanner) Cols() int { return len(s.colPins) }
