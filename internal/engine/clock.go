package engine

import "sync/atomic"

// SeqSource hands out strictly increasing sequence numbers.
// Implemented by Clock (production) and testutil.DeterministicClock (tests).
type SeqSource interface {
	Next() int64
	// Current is the last seq handed out.
	Current() int64
}

// Clock is the monotonic logical clock that orders runs and events.
//
// Every run and every event is stamped with a seq from this clock; wall
// time is never used for ordering. Safe for concurrent use.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that continues after start. The engine uses
// it to resume from the highest seq already in the store.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
