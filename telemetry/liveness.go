// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"sync"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/wallclock"
)

// DefaultLivenessWindow is how long a Debouncer stays active after a trigger.
const DefaultLivenessWindow = time.Second

// Debouncer is a flag that is set by Trigger and clears itself once a window
// passes without another trigger.
type Debouncer struct {
	mu       sync.Mutex
	clock    wallclock.WallClock
	window   time.Duration
	onExpire func()

	active bool
	timer  wallclock.Timer
	gen    uint64
}

// NewDebouncer creates an inactive debouncer. The optional onExpire callback
// runs, without any lock held, each time the flag clears on its own.
func NewDebouncer(
	window time.Duration,
	clock wallclock.WallClock,
	onExpire func(),
) *Debouncer {
	if clock == nil {
		clock = wallclock.Instance
	}
	return &Debouncer{clock: clock, window: window, onExpire: onExpire}
}

// Trigger sets the flag and restarts the window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stop()
	d.active = true
	gen := d.gen
	d.timer = d.clock.AfterFunc(d.window, func() { d.expire(gen) })
}

// Active reports whether the flag is set.
func (d *Debouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Stop clears the flag and cancels the pending expiry, if any. An expiry that
// is already running is discarded.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stop()
	d.active = false
}

// Must hold d.mu.
func (d *Debouncer) stop() {
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) expire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.timer = nil
	d.mu.Unlock()

	if d.onExpire != nil {
		d.onExpire()
	}
}
