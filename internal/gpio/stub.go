//go:build !linux

package gpio

import "errors"

var errNotSupported = errors.New("gpio: not supported on this platform (requires Linux)")

// CdevBus is not available on non-Linux platforms.
type CdevBus struct{}

// NewCdevBus returns an error on non-Linux platforms.
func NewCdevBus(chip string) (*CdevBus, error) {
	return nil, errNotSupported
}

func (b *CdevBus) ConfigureOutput(pin int, initial Level) error { return errNotSupported }
func (b *CdevBus) ConfigureInputPullUp(pin int) error          { return errNotSupported }
func (b *CdevBus) Write(pin int, level Level) error             { return errNotSupported }
func (b *CdevBus) Read(pin int) (Level, error)                  { return Low, errNotSupported }
func (b *CdevBus) Close() error                                 { return nil }

// RpioBus is not available on non-Linux platforms.
type RpioBus struct{}

// NewRpioBus returns an error on non-Linux platforms.
func NewRpioBus() (*RpioBus, error) {
	return nil, errNotSupported
}

func (b *RpioBus) ConfigureOutput(pin int, initial Level) error { return errNotSupported }
func (b *RpioBus) ConfigureInputPullUp(pin int) error          { return errNotSupported }
func (b *RpioBus) Write(pin int, level Level) error             { return errNotSupported }
func (b *RpioBus) Read(pin int) (Level, error)                  { return Low, errNotSupported }
func (b *RpioBus) Close() error                                 { return nil }
