package engine

import "sync/atomic"

// Clock hands out graph version numbers.
//
// Every committed edit is stamped with a strictly increasing version, so a
// plan or a stored run can name the exact graph it was built from.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// However, the engine's single-writer edit lock means only one goroutine
// calls Next at a time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after a stored version.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next version and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the latest version handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
