// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"context"
	"time"
)

type (
	// WallClock abstracts a subset of functionality from packages context and
	// time.
	WallClock interface {
		WithTimeout(
			parent context.Context,
			timeout time.Duration,
		) (context.Context, context.CancelFunc)
		After(d time.Duration) <-chan time.Time
		AfterFunc(d time.Duration, f func()) Timer
		Now() time.Time
	}

	// Timer abstracts the functionality of a time.Timer created by
	// time.AfterFunc.
	Timer interface {
		Reset(d time.Duration) bool
		Stop() bool
	}

	wallClock struct{}
)

// WithTimeout indirects context.WithTimeout.
func (wallClock) WithTimeout(
	parent context.Context,
	timeout time.Duration,
) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}

// After indirects time.After.
func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// AfterFunc indirects time.AfterFunc.
func (wallClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// Real returns the WallClock backed by packages context and time.
func Real() WallClock {
	return wallClock{}
}

// Instance is a WallClock singleton used for indirect time-based references to
// packages context and time. Components that accept a clock option fall back
// to it when none is supplied.
var Instance = Real()
