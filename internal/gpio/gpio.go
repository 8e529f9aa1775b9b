// Package gpio provides pin-level GPIO access with hardware abstraction.
// The real implementations use the Linux GPIO character device, periph.io
// or /dev/gpiomem register access. The fake implementation simulates a key
// matrix so the scanner can be tested without hardware.
package gpio

import "fmt"

// Level is the logical level of a pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

func (l Level) String() string {
	if l {
		return "HIGH"
	}
	return "LOW"
}

// Bus drives and samples individual pins. Pins are identified by their line
// offset on the chip (BCM numbering on a Raspberry Pi).
type Bus interface {
	// ConfigureOutput sets pin to output mode driven to initial.
	ConfigureOutput(pin int, initial Level) error

	// ConfigureInputPullUp sets pin to input mode with pull-up bias,
	// so an unconnected pin reads High.
	ConfigureInputPullUp(pin int) error

	// Write drives an output pin.
	Write(pin int, level Level) error

	// Read samples the level of an input pin.
	Read(pin int) (Level, error)

	// Close releases GPIO resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendCdev   = "cdev"
	BackendPeriph = "periph"
	BackendRpio   = "rpio"
)

// DefaultChip is the gpiochip used by the cdev backend.
const DefaultChip = "gpiochip0"

// Open returns a Bus for the named backend. chip is only used by the cdev
// backend.
func Open(backend, chip string) (Bus, error) {
	switch backend {
	case BackendCdev, "":
		if chip == "" {
			chip = DefaultChip
		}
		b, err := NewCdevBus(chip)
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendPeriph:
		b, err := NewPeriphBus()
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendRpio:
		b, err := NewRpioBus()
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown gpio backend %q", backend)
	}
}
