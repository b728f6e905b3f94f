// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import "sync"

// Ring is a concurrency-safe fixed-capacity circular buffer. Once full, each
// push overwrites the oldest item.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	size  int
	enter int // Points to the next position for entering
}

// NewRing creates a new Ring. Storage grows on demand up to capacity.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, 0, capacity)}
}

// Cap returns the maximum number of items held.
func (r *Ring[T]) Cap() int {
	return cap(r.items)
}

// Len returns the number of items in the ring.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.size
}

// Push adds an item at the end, reporting whether the oldest item was evicted
// to make room.
func (r *Ring[T]) Push(value T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Still filling the backing array.
	if len(r.items) < cap(r.items) {
		r.items = append(r.items, value)
		r.size++
		r.enter = r.move(r.enter)
		return false
	}

	r.items[r.enter] = value
	r.enter = r.move(r.enter)
	return true
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, r.size)
	if r.size < cap(r.items) {
		return append(out, r.items...)
	}
	// [4,5,1,2,3] with enter = 2 => [1,2,3,4,5]
	out = append(out, r.items[r.enter:]...)
	return append(out, r.items[:r.enter]...)
}

// Last returns the most recently pushed item.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	i := r.enter - 1
	if i < 0 {
		i = len(r.items) - 1
	}
	return r.items[i], true
}

// move increments the index circularly.
func (r *Ring[T]) move(index int) int {
	return (index + 1) % cap(r.items)
}
