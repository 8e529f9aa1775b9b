package gpio

import (
	"errors"
	"fmt"
)

// Cell is a (row, column) position in a key matrix, 0-indexed.
type Cell struct {
	Row int
	Col int
}

// Frame is the set of cells held down during one scan pass.
type Frame []Cell

// Mode is the configured direction of a fake pin.
type Mode int

const (
	ModeUnset Mode = iota
	ModeOutput
	ModeInputPullUp
)

// Write records a single level change on an output pin.
type Write struct {
	Pin   int
	Level Level
}

// FakeMatrix is a test double that simulates a key matrix wired to row and
// column pins. A column reads Low only when a row shorted to it by a pressed
// cell is being driven Low; otherwise the pull-up holds it High.
type FakeMatrix struct {
	// Frames contains scripted pressed cells. Each scan pass (detected as
	// the first row being driven Low) consumes the next frame; once
	// exhausted the last frame repeats. When empty, Press/Release control
	// the matrix directly.
	Frames []Frame

	// ReadError, if set, will be returned by Read.
	ReadError error

	// WriteError, if set, will be returned by Write.
	WriteError error

	// ConfigureError, if set, will be returned by the Configure methods.
	ConfigureError error

	// Writes records every Write call in order.
	Writes []Write

	// Closed tracks if Close was called.
	Closed bool

	rowPins []int
	colPins []int
	rowOf   map[int]int
	colOf   map[int]int
	modes   map[int]Mode
	levels  map[int]Level
	pressed map[Cell]bool
	index   int
	passes  int
}

// NewFakeMatrix creates a FakeMatrix for the given pins.
func NewFakeMatrix(rowPins, colPins []int) *FakeMatrix {
	f := &FakeMatrix{
		rowPins: append([]int(nil), rowPins...),
		colPins: append([]int(nil), colPins...),
		rowOf:   make(map[int]int, len(rowPins)),
		colOf:   make(map[int]int, len(colPins)),
		modes:   make(map[int]Mode),
		levels:  make(map[int]Level),
		pressed: make(map[Cell]bool),
	}
	for i, p := range rowPins {
		f.rowOf[p] = i
	}
	for i, p := range colPins {
		f.colOf[p] = i
	}
	return f
}

// Press holds the cell at (row, col) down.
func (f *FakeMatrix) Press(row, col int) {
	f.pressed[Cell{Row: row, Col: col}] = true
}

// Release lets the cell at (row, col) go.
func (f *FakeMatrix) Release(row, col int) {
	delete(f.pressed, Cell{Row: row, Col: col})
}

// ReleaseAll lets every cell go.
func (f *FakeMatrix) ReleaseAll() {
	f.pressed = make(map[Cell]bool)
}

// ConfigureOutput marks pin as an output at initial.
func (f *FakeMatrix) ConfigureOutput(pin int, initial Level) error {
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.modes[pin] = ModeOutput
	f.levels[pin] = initial
	return nil
}

// ConfigureInputPullUp marks pin as a pulled-up input.
func (f *FakeMatrix) ConfigureInputPullUp(pin int) error {
	if f.ConfigureError != nil {
		return f.ConfigureError
	}
	f.modes[pin] = ModeInputPullUp
	return nil
}

// Write drives an output pin. Driving the first row Low starts a new scan
// pass and advances the scripted frames.
func (f *FakeMatrix) Write(pin int, level Level) error {
	if f.WriteError != nil {
		return f.WriteError
	}
	if f.modes[pin] != ModeOutput {
		return fmt.Errorf("write pin %d: not an output", pin)
	}
	if len(f.rowPins) > 0 && pin == f.rowPins[0] && level == Low {
		f.startPass()
	}
	f.levels[pin] = level
	f.Writes = append(f.Writes, Write{Pin: pin, Level: level})
	return nil
}

func (f *FakeMatrix) startPass() {
	f.passes++
	if len(f.Frames) == 0 {
		return
	}
	frame := f.Frames[f.index]
	if f.index < len(f.Frames)-1 {
		f.index++
	}
	f.pressed = make(map[Cell]bool, len(frame))
	for _, c := range frame {
		f.pressed[c] = true
	}
}

// Read samples a column pin.
func (f *FakeMatrix) Read(pin int) (Level, error) {
	if f.ReadError != nil {
		return Low, f.ReadError
	}
	if f.modes[pin] != ModeInputPullUp {
		return Low, fmt.Errorf("read pin %d: not a pulled-up input", pin)
	}
	col, ok := f.colOf[pin]
	if !ok {
		return High, nil
	}
	for cell := range f.pressed {
		if cell.Col != col || cell.Row >= len(f.rowPins) {
			continue
		}
		rp := f.rowPins[cell.Row]
		if f.modes[rp] == ModeOutput && f.levels[rp] == Low {
			return Low, nil
		}
	}
	return High, nil
}

// Close marks the matrix as closed.
func (f *FakeMatrix) Close() error {
	if f.Closed {
		return errors.New("already closed")
	}
	f.Closed = true
	return nil
}

// Mode returns the configured mode of pin.
func (f *FakeMatrix) Mode(pin int) Mode {
	return f.modes[pin]
}

// Level returns the level an output pin is currently driven to.
func (f *FakeMatrix) Level(pin int) Level {
	return f.levels[pin]
}

// Passes returns the number of scan passes observed.
func (f *FakeMatrix) Passes() int {
	return f.passes
}

// Reset rewinds the scripted frames and clears recorded writes.
func (f *FakeMatrix) Reset() {
	f.index = 0
	f.passes = 0
	f.Writes = nil
	f.Closed = false
	f.ReleaseAll()
}
