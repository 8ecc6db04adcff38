package engine

import "sync/atomic"

// Clock hands out the sequence numbers that order deployments and
// transaction log records in one shared timeline. Replay walks that
// timeline in seq order.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next value is start+1. Used when
// reopening a store that already holds records.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last sequence number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

// AdvanceTo moves the clock forward to at least seq. It never moves back.
func (c *Clock) AdvanceTo(seq int64) {
	for {
		cur := c.seq.Load()
		if seq <= cur || c.seq.CompareAndSwap(cur, seq) {
			return
		}
	}
}
