package gpio

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func newTestPeriphBus() (*PeriphBus, map[string]*gpiotest.Pin) {
	pins := map[string]*gpiotest.Pin{
		"GPIO10": {N: "GPIO10", Num: 10},
		"GPIO6":  {N: "GPIO6", Num: 6},
	}
	bus := newPeriphBus(func(name string) gpio.PinIO {
		p, ok := pins[name]
		if !ok {
			return nil
		}
		return p
	})
	return bus, pins
}

func TestPeriphBusOutput(t *testing.T) {
	bus, pins := newTestPeriphBus()

	if err := bus.ConfigureOutput(10, High); err != nil {
		t.Fatalf("configure output: %v", err)
	}
	if pins["GPIO10"].L != gpio.High {
		t.Errorf("expected GPIO10 high after configure, got %v", pins["GPIO10"].L)
	}

	if err := bus.Write(10, Low); err != nil {
		t.Fatalf("write: %v", err)
	}
	if pins["GPIO10"].L != gpio.Low {
		t.Errorf("expected GPIO10 low after write, got %v", pins["GPIO10"].L)
	}
}

func TestPeriphBusInputPullUp(t *testing.T) {
	bus, pins := newTestPeriphBus()

	if err := bus.ConfigureInputPullUp(6); err != nil {
		t.Fatalf("configure input: %v", err)
	}
	if pins["GPIO6"].P != gpio.PullUp {
		t.Errorf("expected pull-up, got %v", pins["GPIO6"].P)
	}

	l, err := bus.Read(6)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if l != High {
		t.Errorf("expected idle HIGH, got %s", l)
	}

	// Simulate a key shorting the column to a low row
	pins["GPIO6"].L = gpio.Low
	l, err = bus.Read(6)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if l != Low {
		t.Errorf("expected LOW, got %s", l)
	}
}

func TestPeriphBusUnknownPin(t *testing.T) {
	bus, _ := newTestPeriphBus()

	if err := bus.ConfigureOutput(42, High); err == nil {
		t.Error("expected error for unknown pin")
	}
	if err := bus.Write(10, Low); err == nil {
		t.Error("expected error writing unconfigured pin")
	}
	if _, err := bus.Read(6); err == nil {
		t.Error("expected error reading unconfigured pin")
	}
}

func TestPeriphBusClose(t *testing.T) {
	bus, pins := newTestPeriphBus()
	bus.ConfigureOutput(10, Low)

	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if pins["GPIO10"].P != gpio.PullUp {
		t.Errorf("expected GPIO10 released with pull-up, got %v", pins["GPIO10"].P)
	}
	if err := bus.Write(10, Low); err == nil {
		t.Error("expected error writing after close")
	}
}

// stuckPin refuses to be switched back to an input.
type stuckPin struct {
	*gpiotest.Pin
	err error
}

func (p *stuckPin) In(gpio.Pull, gpio.Edge) error { return p.err }

func TestPeriphBusCloseKeepsErrors(t *testing.T) {
	stuck := errors.New("pin stuck")
	pins := map[string]gpio.PinIO{
		"GPIO10": &stuckPin{Pin: &gpiotest.Pin{N: "GPIO10", Num: 10}, err: stuck},
		"GPIO9":  &gpiotest.Pin{N: "GPIO9", Num: 9},
	}
	bus := newPeriphBus(func(name string) gpio.PinIO { return pins[name] })
	bus.ConfigureOutput(10, High)
	bus.ConfigureOutput(9, High)

	err := bus.Close()
	if !errors.Is(err, stuck) {
		t.Fatalf("close: got %v, want an error wrapping %v", err, stuck)
	}
	if err := bus.Write(9, Low); err == nil {
		t.Error("expected every pin released even when one fails")
	}
}
