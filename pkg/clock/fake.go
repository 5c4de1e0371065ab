package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time only moves when Advance or Set is
// called; AfterFunc callbacks run synchronously inside Advance in deadline
// order, and tickers receive at most one buffered tick per Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*waiter
}

type waiter struct {
	deadline time.Time
	interval time.Duration // non-zero for tickers
	fn       func()
	ch       chan time.Time
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock set to initial
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{now: initial}
}

// Now returns the current fake time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once the clock passes now+d.
// A non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	if d <= 0 {
		f()
		return &fakeTimer{clock: c, w: &waiter{fired: true}}
	}

	c.mu.Lock()
	w := &waiter{deadline: c.now.Add(d), fn: f}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	return &fakeTimer{clock: c, w: w}
}

// NewTicker returns a ticker firing every d of fake time
func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	w := &waiter{deadline: c.now.Add(d), interval: d, ch: make(chan time.Time, 1)}
	c.waiters = append(c.waiters, w)
	return &fakeTicker{clock: c, w: w}
}

// Advance moves the clock forward by d, firing everything that comes due
func (c *FakeClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set moves the clock to t, firing everything that comes due.
// Moving backwards only changes Now.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t

	var due []*waiter
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped || w.fired {
			continue
		}
		if !w.deadline.After(t) {
			due = append(due, w)
		}
		kept = append(kept, w)
	}
	c.waiters = kept

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})

	var callbacks []func()
	for _, w := range due {
		if w.interval > 0 {
			select {
			case w.ch <- t:
			default:
			}
			for !w.deadline.After(t) {
				w.deadline = w.deadline.Add(w.interval)
			}
			continue
		}
		w.fired = true
		callbacks = append(callbacks, w.fn)
	}
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

// Pending returns the number of timers and tickers still waiting
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			n++
		}
	}
	return n
}

type fakeTimer struct {
	clock *FakeClock
	w     *waiter
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.w.stopped || t.w.fired {
		return false
	}
	t.w.stopped = true
	return true
}

type fakeTicker struct {
	clock *FakeClock
	w     *waiter
}

func (t *fakeTicker) C() <-chan time.Time { return t.w.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.w.stopped = true
}
