//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sort"

	"github.com/warthog618/go-gpiocdev"
)

// consumer is the label attached to requested lines.
const consumer = "keypad-scanner"

// CdevBus drives pins through the Linux GPIO character device.
// Lines are requested on first use and kept until Close.
type CdevBus struct {
	chip  *gpiocdev.Chip
	lines map[int]*gpiocdev.Line
}

// NewCdevBus opens the named gpiochip (e.g. "gpiochip0").
func NewCdevBus(chip string) (*CdevBus, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chip, err)
	}
	return &CdevBus{
		chip:  c,
		lines: make(map[int]*gpiocdev.Line),
	}, nil
}

// request returns the line for pin, requesting it with req on first use and
// reconfiguring it with cfg afterwards.
func (b *CdevBus) request(pin int, req []gpiocdev.LineReqOption, cfg []gpiocdev.LineConfigOption) error {
	if l, ok := b.lines[pin]; ok {
		return l.Reconfigure(cfg...)
	}
	req = append(req, gpiocdev.WithConsumer(consumer))
	l, err := b.chip.RequestLine(pin, req...)
	if err != nil {
		return err
	}
	b.lines[pin] = l
	return nil
}

// ConfigureOutput requests pin as an output driven to initial.
func (b *CdevBus) ConfigureOutput(pin int, initial Level) error {
	v := levelValue(initial)
	err := b.request(pin,
		[]gpiocdev.LineReqOption{gpiocdev.AsOutput(v)},
		[]gpiocdev.LineConfigOption{gpiocdev.AsOutput(v)})
	if err != nil {
		return fmt.Errorf("configure output pin %d: %w", pin, err)
	}
	return nil
}

// ConfigureInputPullUp requests pin as an input with pull-up bias.
func (b *CdevBus) ConfigureInputPullUp(pin int) error {
	err := b.request(pin,
		[]gpiocdev.LineReqOption{gpiocdev.AsInput, gpiocdev.WithPullUp},
		[]gpiocdev.LineConfigOption{gpiocdev.AsInput, gpiocdev.WithPullUp})
	if err != nil {
		return fmt.Errorf("configure input pin %d: %w", pin, err)
	}
	return nil
}

// Write drives pin to level.
func (b *CdevBus) Write(pin int, level Level) error {
	l, ok := b.lines[pin]
	if !ok {
		return fmt.Errorf("write pin %d: not configured", pin)
	}
	if err := l.SetValue(levelValue(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Read returns the current level of pin.
func (b *CdevBus) Read(pin int) (Level, error) {
	l, ok := b.lines[pin]
	if !ok {
		return Low, fmt.Errorf("read pin %d: not configured", pin)
	}
	v, err := l.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", pin, err)
	}
	return v != 0, nil
}

// Close releases GPIO resources.
// Every line is reconfigured as an input with pull-up before it is released,
// so no row is left driven low when the process exits.
func (b *CdevBus) Close() error {
	var errs []error

	pins := make([]int, 0, len(b.lines))
	for pin := range b.lines {
		pins = append(pins, pin)
	}
	sort.Ints(pins)

	for _, pin := range pins {
		l := b.lines[pin]
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
		delete(b.lines, pin)
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		b.chip = nil
	}

	return errors.Join(errs...)
}

func levelValue(l Level) int {
	if l {
		return 1
	}
	return 0
}
