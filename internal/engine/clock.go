package engine

import "sync/atomic"

// Clock hands out checkpoint ids.
//
// Current is the id the next checkpoint will receive; Next is called only
// when a checkpoint is actually recorded, so a dropped no-op checkpoint
// leaves no gap in the log.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// The Engine's single-writer design means only the Run goroutine calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock resuming after start recorded checkpoints.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new position.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current position without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
