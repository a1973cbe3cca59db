package services

import (
	"sync"
	"time"
)

// Clock proposes creation times. The store has the final say on ordering:
// it moves a proposal forward past the couple's newest record.
type Clock interface {
	Now() time.Time
}

// MonotonicClock never returns the same instant twice and never goes backwards.
// Times are truncated to microseconds, the precision PostgreSQL keeps.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
	now  func() time.Time
}

// NewMonotonicClock creates a clock backed by time.Now
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{now: time.Now}
}

// Now returns a time strictly after every previously returned time
func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
