package keypad

import (
	"fmt"
	"time"
)

// Layout describes how a keypad is wired: which pins drive the rows, which
// pins sense the columns, and which key sits at each crossing.
type Layout struct {
	RowPins []int
	ColPins []int
	// Keys is row-major: Keys[r][c] is the key at row r, column c.
	Keys [][]rune
}

// Rows returns the number of rows.
func (l Layout) Rows() int { return len(l.RowPins) }

// Cols returns the number of columns.
func (l Layout) Cols() int { return len(l.ColPins) }

// Validate checks the geometry: at least one row and column, and a key for
// every crossing.
func (l Layout) Validate() error {
	if len(l.RowPins) == 0 {
		return fmt.Errorf("%w: no row pins", ErrInvalidLayout)
	}
	if len(l.ColPins) == 0 {
		return fmt.Errorf("%w: no column pins", ErrInvalidLayout)
	}
	if len(l.Keys) != len(l.RowPins) {
		return fmt.Errorf("%w: %d key rows for %d row pins", ErrInvalidLayout, len(l.Keys), len(l.RowPins))
	}
	for r, row := range l.Keys {
		if len(row) != len(l.ColPins) {
			return fmt.Errorf("%w: key row %d has %d keys for %d column pins", ErrInvalidLayout, r, len(row), len(l.ColPins))
		}
	}
	seen := make(map[int]bool, len(l.RowPins)+len(l.ColPins))
	for _, p := range append(append([]int(nil), l.RowPins...), l.ColPins...) {
		if seen[p] {
			return fmt.Errorf("%w: pin %d used twice", ErrInvalidLayout, p)
		}
		seen[p] = true
	}
	return nil
}

// flatten returns the keys as a row-major slice.
func (l Layout) flatten() []rune {
	keys := make([]rune, 0, l.Rows()*l.Cols())
	for _, row := range l.Keys {
		keys = append(keys, row...)
	}
	return keys
}

// KeyRows builds a key table from one string per row.
func KeyRows(rows ...string) [][]rune {
	keys := make([][]rune, len(rows))
	for i, r := range rows {
		keys[i] = []rune(r)
	}
	return keys
}

// DefaultLayout returns the common 4x3 telephone keypad wired to pins
// 10, 9, 8, 7 (rows) and 6, 5, 4 (columns).
func DefaultLayout() Layout {
	return Layout{
		RowPins: []int{10, 9, 8, 7},
		ColPins: []int{6, 5, 4},
		Keys:    KeyRows("123", "456", "789", "*0#"),
	}
}

// Event is a key press taken from the scanner's buffer.
type Event struct {
	Timestamp time.Time
	Key       rune
}
