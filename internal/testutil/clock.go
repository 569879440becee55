package testutil

import "sync"

// DeterministicClock is a resettable stand-in for wall-clock timestamps.
//
// Each call to Next advances by a fixed step, so a scenario replayed with a
// fresh clock stamps byte-identical checkpoint logs.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	now   int64
}

// NewDeterministicClock creates a clock starting at 0 with step 1.
//
// The first call to Next() returns 1.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockFrom(0, 1)
}

// NewDeterministicClockFrom creates a clock at start advancing by step.
func NewDeterministicClockFrom(start, step int64) *DeterministicClock {
	if step <= 0 {
		step = 1
	}
	return &DeterministicClock{start: start, step: step, now: start}
}

// Next advances the clock and returns the new time.
// Matches the engine's timestamp source signature func() int64.
func (c *DeterministicClock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// Current returns the current time without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}
