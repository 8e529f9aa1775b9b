package gpio

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphBus drives pins through the periph.io driver registry.
// Pins are looked up by their registry name, GPIO<n>.
type PeriphBus struct {
	pins   map[int]gpio.PinIO
	lookup func(name string) gpio.PinIO
}

// NewPeriphBus initializes the periph.io host drivers.
func NewPeriphBus() (*PeriphBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	return newPeriphBus(gpioreg.ByName), nil
}

func newPeriphBus(lookup func(name string) gpio.PinIO) *PeriphBus {
	return &PeriphBus{
		pins:   make(map[int]gpio.PinIO),
		lookup: lookup,
	}
}

func (b *PeriphBus) pin(pin int) (gpio.PinIO, error) {
	if p, ok := b.pins[pin]; ok {
		return p, nil
	}
	name := fmt.Sprintf("GPIO%d", pin)
	p := b.lookup(name)
	if p == nil {
		return nil, fmt.Errorf("pin %s not found", name)
	}
	b.pins[pin] = p
	return p, nil
}

// ConfigureOutput sets pin to output mode driven to initial.
func (b *PeriphBus) ConfigureOutput(pin int, initial Level) error {
	p, err := b.pin(pin)
	if err != nil {
		return fmt.Errorf("configure output: %w", err)
	}
	if err := p.Out(periphLevel(initial)); err != nil {
		return fmt.Errorf("configure output pin %d: %w", pin, err)
	}
	return nil
}

// ConfigureInputPullUp sets pin to input mode with pull-up bias.
func (b *PeriphBus) ConfigureInputPullUp(pin int) error {
	p, err := b.pin(pin)
	if err != nil {
		return fmt.Errorf("configure input: %w", err)
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("configure input pin %d: %w", pin, err)
	}
	return nil
}

// Write drives pin to level.
func (b *PeriphBus) Write(pin int, level Level) error {
	p, ok := b.pins[pin]
	if !ok {
		return fmt.Errorf("write pin %d: not configured", pin)
	}
	if err := p.Out(periphLevel(level)); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Read returns the current level of pin.
func (b *PeriphBus) Read(pin int) (Level, error) {
	p, ok := b.pins[pin]
	if !ok {
		return Low, fmt.Errorf("read pin %d: not configured", pin)
	}
	return p.Read() == gpio.High, nil
}

// Close leaves every used pin as an input with pull-up.
func (b *PeriphBus) Close() error {
	var errs []error
	for n, p := range b.pins {
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			errs = append(errs, fmt.Errorf("release pin %d: %w", n, err))
		}
		delete(b.pins, n)
	}
	return errors.Join(errs...)
}

func periphLevel(l Level) gpio.Level {
	if l {
		return gpio.High
	}
	return gpio.Low
}
