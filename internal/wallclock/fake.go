// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"
)

type (
	// Fake is a deterministic WallClock for tests. Time only moves when
	// Advance is called; AfterFunc callbacks run synchronously inside Advance
	// in deadline order, with Now reporting each callback's deadline.
	Fake struct {
		mu      sync.Mutex
		current time.Time
		waiters []*fakeWaiter
		seq     uint64
	}

	fakeWaiter struct {
		clock    *Fake
		deadline time.Time
		callback func()
		active   bool
		seq      uint64
	}
)

// NewFake returns a fake clock starting at the given instant.
func NewFake(initial time.Time) *Fake {
	return &Fake{current: initial}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// After returns a channel that receives once the clock passes d.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	f.AfterFunc(d, func() { ch <- f.Now() })
	return ch
}

// AfterFunc schedules fn to run once the clock passes d. A non-positive d
// fires on the next Advance.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	w := &fakeWaiter{clock: f, callback: fn}
	f.schedule(w, d)
	return w
}

// WithTimeout returns a context cancelled with context.DeadlineExceeded as
// its cause once the fake clock passes timeout.
func (f *Fake) WithTimeout(
	parent context.Context,
	timeout time.Duration,
) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	t := f.AfterFunc(timeout, func() { cancel(context.DeadlineExceeded) })
	return ctx, func() {
		t.Stop()
		cancel(context.Canceled)
	}
}

// Pending returns the number of timers that have not yet fired or been
// stopped.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, w := range f.waiters {
		if w.active {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every timer whose deadline is
// reached along the way.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.current.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		w := f.nextDue(target)
		if w == nil {
			f.current = target
			f.mu.Unlock()
			return
		}
		w.active = false
		if w.deadline.After(f.current) {
			f.current = w.deadline
		}
		f.mu.Unlock()

		w.callback()
	}
}

// Must hold f.mu.
func (f *Fake) schedule(w *fakeWaiter, d time.Duration) {
	f.seq++
	w.seq = f.seq
	w.deadline = f.current.Add(d)
	w.active = true
	if !slices.Contains(f.waiters, w) {
		f.waiters = append(f.waiters, w)
	}
}

// Must hold f.mu.
func (f *Fake) nextDue(target time.Time) *fakeWaiter {
	live := f.waiters[:0]
	for _, w := range f.waiters {
		if w.active {
			live = append(live, w)
		}
	}
	f.waiters = live

	sort.SliceStable(f.waiters, func(i, j int) bool {
		if f.waiters[i].deadline.Equal(f.waiters[j].deadline) {
			return f.waiters[i].seq < f.waiters[j].seq
		}
		return f.waiters[i].deadline.Before(f.waiters[j].deadline)
	})

	if len(f.waiters) == 0 || f.waiters[0].deadline.After(target) {
		return nil
	}
	return f.waiters[0]
}

func (w *fakeWaiter) Stop() bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()

	wasActive := w.active
	w.active = false
	return wasActive
}

func (w *fakeWaiter) Reset(d time.Duration) bool {
	w.clock.mu.Lock()
	defer w.clock.mu.Unlock()

	wasActive := w.active
	w.clock.schedule(w, d)
	return wasActive
}
