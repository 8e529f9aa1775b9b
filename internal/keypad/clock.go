package keypad

import "time"

// Clock is a free-running millisecond counter. It wraps around at 2^32;
// only differences between readings are meaningful.
type Clock interface {
	Millis() uint32
}

// SystemClock counts milliseconds on the monotonic clock since it was created.
type SystemClock struct {
	epoch time.Time
}

// NewSystemClock starts a SystemClock at zero.
func NewSystemClock() *SystemClock {
	return &SystemClock{epoch: time.Now()}
}

// Millis returns the milliseconds elapsed since creation, truncated to 32 bits.
func (c *SystemClock) Millis() uint32 {
	return uint32(time.Since(c.epoch).Milliseconds())
}

// elapsed returns now-start on a wrapping 32-bit counter.
func elapsed(start, now uint32) uint32 {
	return now - start
}

// maxTimeoutMillis is the longest timeout a wrapping counter can measure.
// A limit of MaxUint32 could never be exceeded by an elapsed reading.
const maxTimeoutMillis = ^uint32(0) - 1

// durationMillis converts d to whole milliseconds, clamped to maxTimeoutMillis.
func durationMillis(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(maxTimeoutMillis) {
		return maxTimeoutMillis
	}
	return uint32(ms)
}
