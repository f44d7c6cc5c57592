package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock only moves when Advance or Set is called. Safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	next     time.Time
	interval time.Duration
	ch       chan time.Time
	stopped  bool
}

// NewFake returns a FakeClock set to initial.
func NewFake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTicker panics if d <= 0, like time.NewTicker.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ft := &fakeTicker{next: c.current.Add(d), interval: d, ch: make(chan time.Time, 1)}
	c.tickers = append(c.tickers, ft)
	return &Ticker{
		C: ft.ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ft.stopped = true
		},
	}
}

// Advance moves the clock forward by d and fires every ticker deadline passed
// on the way, earliest first.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()
	c.Set(target)
}

// Set jumps the clock to t. Moving backwards only changes Now.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	type firing struct {
		at time.Time
		ch chan time.Time
	}
	var due []firing
	for _, ft := range c.tickers {
		if ft.stopped {
			continue
		}
		for !ft.next.After(t) {
			due = append(due, firing{at: ft.next, ch: ft.ch})
			ft.next = ft.next.Add(ft.interval)
		}
	}
	c.current = t

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, f := range due {
		select {
		case f.ch <- f.at:
		default:
		}
	}
}
