package engine

import (
	"slices"
	"sync"
)

// eventQueue is the unbounded FIFO in front of the Run loop. Submitters,
// editor callbacks and parse goroutines push; only Run pops, so a parse
// goroutine never blocks on a busy loop.
//
// ready holds at most one token: a burst of pushes coalesces into one
// wake-up, and Close closes it so a waiting Run wakes for the final drain.
type eventQueue struct {
	mu     sync.Mutex
	buf    []Event
	head   int
	closed bool
	ready  chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{ready: make(chan struct{}, 1)}
}

// Enqueue appends e. It reports false once the queue is closed, which is
// how parse responses arriving after Stop get dropped.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.buf = append(q.buf, e)
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the oldest event without blocking.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.buf) {
		return Event{}, false
	}
	e := q.buf[q.head]
	q.buf[q.head] = Event{} // release payloads and reply channels
	q.head++
	q.compact()
	return e, true
}

// compact reclaims the consumed prefix once it is at least half the buffer.
func (q *eventQueue) compact() {
	switch {
	case q.head == len(q.buf):
		q.buf, q.head = q.buf[:0], 0
	case q.head >= 32 && 2*q.head >= len(q.buf):
		n := copy(q.buf, q.buf[q.head:])
		clear(q.buf[n:])
		q.buf, q.head = q.buf[:n], 0
	}
}

// Drain closes the queue and returns the events still in it, oldest first.
func (q *eventQueue) Drain() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
	rest := slices.Clone(q.buf[q.head:])
	clear(q.buf)
	q.buf, q.head = nil, 0
	return rest
}

// Wait returns the wake-up channel. A receive means events may be ready or
// the queue was closed; callers check TryDequeue and Closed afterwards.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.head
}

// Closed reports whether Close was called. A coalesced token can wake a
// waiter on an empty open queue, so waiters check this before exiting.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further events. Queued events stay available to
// TryDequeue.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
}

func (q *eventQueue) closeLocked() {
	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}
