package engine

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

var WallClock Clock = ClockFunc(time.Now)

// ReplayClock follows capture timestamps. It never moves backwards.
type ReplayClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *ReplayClock) Advance(t time.Time) {
	c.mu.Lock()
	if t.After(c.now) {
		c.now = t
	}
	c.mu.Unlock()
}

func (c *ReplayClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
