package runenv

import "sync/atomic"

// Clock stamps trace events with a strictly increasing sequence number.
// Ordering never uses wall time.
type Clock interface {
	Next() int64
	Current() int64
}

// AtomicClock is a lock-free Clock starting at 0. Tests pass their own to
// compare sequence numbers across runs.
//
// Thread-safety: safe for concurrent use; parallel units stamp their start
// and end events through the same clock.
type AtomicClock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *AtomicClock {
	return &AtomicClock{}
}

// Next returns the next sequence number.
func (c *AtomicClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *AtomicClock) Current() int64 {
	return c.seq.Load()
}

// Reset rewinds the clock to 0, so one clock can drive the same scenario
// twice.
func (c *AtomicClock) Reset() {
	c.seq.Store(0)
}
