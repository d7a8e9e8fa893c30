// Package clock abstracts wall-clock time and timers so session timing
// logic can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides current time and timer construction.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
	AfterFunc(d time.Duration, fn func()) Timer
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// Timer is a pending single-shot callback.
type Timer interface {
	Stop() bool
}

// System returns a Clock backed by the time package.
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) NewTicker(d time.Duration) Ticker {
	st := &systemTicker{
		t:    time.NewTicker(d),
		ch:   make(chan time.Time, 1),
		done: make(chan struct{}),
	}
	go st.forward()
	return st
}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// systemTicker forwards ticks through its own channel so Stop can close
// it. time.Ticker never closes its channel, and consumers ranging over
// Chan need the close to exit.
type systemTicker struct {
	t    *time.Ticker
	ch   chan time.Time
	done chan struct{}
	once sync.Once
}

func (s *systemTicker) forward() {
	defer close(s.ch)
	for {
		select {
		case tick := <-s.t.C:
			select {
			case s.ch <- tick:
			default:
			}
		case <-s.done:
			return
		}
	}
}

func (s *systemTicker) Chan() <-chan time.Time { return s.ch }

func (s *systemTicker) Stop() {
	s.once.Do(func() {
		s.t.Stop()
		close(s.done)
	})
}

// Fake is a manually-advanced clock for tests.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
}

// NewFake creates a fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the clock forward and fires any timers that come due.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var due []*fakeTimer
	var rest []*fakeTimer
	for _, t := range f.pending {
		if !t.when.After(now) {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	f.pending = rest
	f.mu.Unlock()

	for _, t := range due {
		t.fire()
	}
}

// NewTicker returns a ticker that never fires on its own; tests drive the
// session tick directly.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	return &fakeTicker{ch: make(chan time.Time)}
}

// AfterFunc schedules fn to run when Advance passes the deadline.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{when: f.now.Add(d), fn: fn}
	f.pending = append(f.pending, t)
	return t
}

type fakeTicker struct {
	ch   chan time.Time
	once sync.Once
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()                  { t.once.Do(func() { close(t.ch) }) }

type fakeTimer struct {
	mu      sync.Mutex
	when    time.Time
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.stopped
	t.stopped = true
	return !was
}

func (t *fakeTimer) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	fn := t.fn
	t.mu.Unlock()
	fn()
}
