// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock only moves when Advance is called. Safe for concurrent
// use. Do not call Advance from inside an AfterFunc callback.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	pending []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	deadline time.Time
	callback func()
	channel  chan time.Time
	interval time.Duration
	done     bool
}

// Now returns the frozen time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc registers f to run when the clock passes now+d. A
// non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{deadline: c.current.Add(d), callback: f}
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()

	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.done {
			return false
		}
		timer.done = true
		return true
	}}
}

// NewTicker registers a repeating timer.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	channel := make(chan time.Time, 1)
	timer := &fakeTimer{deadline: c.current.Add(d), channel: channel, interval: d}
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()

	return &Ticker{C: channel, stop: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		timer.done = true
	}}
}

// Advance moves the clock forward by d and fires everything whose
// deadline has passed, earliest first. The clock steps to each
// deadline before firing it. Callbacks run on the calling goroutine.
// A callback that schedules a new timer inside the advanced window
// sees it fire during the same Advance.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		timer, at, ok := c.takeNext(target)
		if !ok {
			return
		}
		if timer.callback != nil {
			timer.callback()
			continue
		}
		select {
		case timer.channel <- at:
		default:
		}
	}
}

// takeNext removes the earliest timer due at or before target and
// moves the clock to its deadline. With nothing due it moves the
// clock to target and returns false.
func (c *FakeClock) takeNext(target time.Time) (*fakeTimer, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next *fakeTimer
	remaining := c.pending[:0]
	for _, timer := range c.pending {
		if timer.done {
			continue
		}
		remaining = append(remaining, timer)
		if timer.deadline.After(target) {
			continue
		}
		if next == nil || timer.deadline.Before(next.deadline) {
			next = timer
		}
	}
	c.pending = remaining
	if next == nil {
		if target.After(c.current) {
			c.current = target
		}
		return nil, time.Time{}, false
	}

	at := next.deadline
	if at.After(c.current) {
		c.current = at
	}
	if next.interval > 0 {
		next.deadline = next.deadline.Add(next.interval)
	} else {
		next.done = true
	}
	return next, at, true
}

// WaitForTimers blocks until at least n timers or tickers are
// pending. Call it before Advance when another goroutine is expected
// to register a timer.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of registered timers and tickers
// that have neither fired nor been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.done {
			count++
		}
	}
	return count
}
