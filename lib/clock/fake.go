// Copyright 2026 The ChatKit Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called. AfterFunc registrations become
// pending waiters that fire when the clock advances past their
// deadline.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock for testing. Time advances only
// when Advance is called. Pending AfterFunc callbacks are invoked
// synchronously during Advance in deadline order.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

// fakeWaiter is a pending AfterFunc registration.
type fakeWaiter struct {
	deadline time.Time
	callback func()

	// stopped is set by Timer.Stop. Stopped waiters never fire and
	// are discarded during Advance.
	stopped bool

	// fired is set after the waiter fires. Prevents double-firing on
	// overlapping Advance calls.
	fired bool

	// removed is set when Advance sweeps the waiter out of the
	// pending list, so Reset knows whether it must re-register.
	removed bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules f to run after duration d. If d <= 0, f runs
// synchronously before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()

	if d <= 0 {
		c.mu.Unlock()
		f()
		return &Timer{
			stopFunc:  func() bool { return false },
			resetFunc: func(time.Duration) bool { return false },
		}
	}

	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		callback: f,
	}
	c.waiters = append(c.waiters, waiter)
	c.mu.Unlock()

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if waiter.stopped || waiter.fired {
				return false
			}
			waiter.stopped = true
			return true
		},
		resetFunc: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasActive := !waiter.stopped && !waiter.fired
			waiter.stopped = false
			waiter.fired = false
			waiter.deadline = c.current.Add(d)
			if waiter.removed {
				waiter.removed = false
				c.waiters = append(c.waiters, waiter)
			}
			return wasActive
		},
	}
}

// Advance moves the clock forward by d and fires every pending waiter
// whose deadline falls within the new time, synchronously, in deadline
// order. Callbacks that register new waiters with deadlines inside the
// advanced window fire in the same Advance call.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		toFire := c.collectExpired(target)
		if len(toFire) == 0 {
			return
		}

		sort.Slice(toFire, func(i, j int) bool {
			return toFire[i].deadline.Before(toFire[j].deadline)
		})

		for _, waiter := range toFire {
			waiter.callback()
		}
	}
}

// PendingTimers returns the number of live (not stopped, not fired)
// waiters. Tests use this to assert that expiry timers are cancelled
// rather than leaked.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	live := 0
	for _, waiter := range c.waiters {
		if !waiter.stopped && !waiter.fired {
			live++
		}
	}
	return live
}

// collectExpired removes and returns waiters with deadline <= target,
// marking them fired. Stopped waiters are discarded as a side effect.
func (c *FakeClock) collectExpired(target time.Time) []*fakeWaiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []*fakeWaiter
	remaining := c.waiters[:0]
	for _, waiter := range c.waiters {
		switch {
		case waiter.stopped || waiter.fired:
			waiter.removed = true
		case !waiter.deadline.After(target):
			waiter.fired = true
			waiter.removed = true
			expired = append(expired, waiter)
		default:
			remaining = append(remaining, waiter)
		}
	}
	c.waiters = remaining
	return expired
}
