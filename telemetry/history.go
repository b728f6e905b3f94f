// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import "github.com/dev-BJ/CleanEnv-Dashboard/telemetry/internal"

// HistoryCapacity is the number of readings retained by a History.
const HistoryCapacity = 100

// History is the rolling buffer of the most recent readings in arrival order.
// Appending beyond HistoryCapacity silently drops the oldest reading. It is
// safe for concurrent use.
type History struct {
	ring *internal.Ring[SensorReading]
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{ring: internal.NewRing[SensorReading](HistoryCapacity)}
}

// Append adds a reading at the tail.
func (h *History) Append(r SensorReading) {
	h.ring.Push(r)
}

// All returns a copy of the retained readings, oldest first.
func (h *History) All() []SensorReading {
	return h.ring.Items()
}

// Latest returns the most recently appended reading.
func (h *History) Latest() (SensorReading, bool) {
	return h.ring.Last()
}

// Len returns the number of retained readings.
func (h *History) Len() int {
	return h.ring.Len()
}
