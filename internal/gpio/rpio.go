//go:build linux

package gpio

import (
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"
)

// maxRpioPin is the highest GPIO number on the BCM283x controller.
const maxRpioPin = 53

// RpioBus drives pins through memory-mapped BCM283x registers
// (/dev/gpiomem, falling back to /dev/mem).
type RpioBus struct {
	open bool
}

// NewRpioBus maps the GPIO register block.
func NewRpioBus() (*RpioBus, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open gpio memory: %w", err)
	}
	return &RpioBus{open: true}, nil
}

func (b *RpioBus) pin(pin int) (rpio.Pin, error) {
	if !b.open {
		return 0, fmt.Errorf("pin %d: bus closed", pin)
	}
	if pin < 0 || pin > maxRpioPin {
		return 0, fmt.Errorf("pin %d: out of range 0..%d", pin, maxRpioPin)
	}
	return rpio.Pin(pin), nil
}

// ConfigureOutput sets pin to output mode driven to initial.
func (b *RpioBus) ConfigureOutput(pin int, initial Level) error {
	p, err := b.pin(pin)
	if err != nil {
		return fmt.Errorf("configure output: %w", err)
	}
	// Latch the level first so the pin never glitches low on a high start.
	p.Write(rpioState(initial))
	p.Output()
	return nil
}

// ConfigureInputPullUp sets pin to input mode with pull-up bias.
func (b *RpioBus) ConfigureInputPullUp(pin int) error {
	p, err := b.pin(pin)
	if err != nil {
		return fmt.Errorf("configure input: %w", err)
	}
	p.Input()
	p.PullUp()
	return nil
}

// Write drives pin to level.
func (b *RpioBus) Write(pin int, level Level) error {
	p, err := b.pin(pin)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	p.Write(rpioState(level))
	return nil
}

// Read returns the current level of pin.
func (b *RpioBus) Read(pin int) (Level, error) {
	p, err := b.pin(pin)
	if err != nil {
		return Low, fmt.Errorf("read: %w", err)
	}
	return p.Read() == rpio.High, nil
}

// Close unmaps the register block.
func (b *RpioBus) Close() error {
	if !b.open {
		return nil
	}
	b.open = false
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("close gpio memory: %w", err)
	}
	return nil
}

func rpioState(l Level) rpio.State {
	if l {
		return rpio.High
	}
	return rpio.Low
}
