// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"iter"
	"sync"
)

type handlerNode[T any] struct {
	value T
	prev  *handlerNode[T]
	next  *handlerNode[T]
}

// HandlerList is a concurrency-safe list of callbacks that preserves
// registration order and supports removal of individual entries.
type HandlerList[T any] struct {
	mu    sync.RWMutex
	first *handlerNode[T]
	last  *handlerNode[T]
	count int
}

func NewHandlerList[T any]() *HandlerList[T] {
	return &HandlerList[T]{}
}

// Register appends a handler and returns a function that removes it. The
// returned function may be called more than once.
func (l *HandlerList[T]) Register(value T) (remove func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	node := &handlerNode[T]{value: value, prev: l.last}
	if l.last == nil {
		l.first = node
	} else {
		l.last.next = node
	}
	l.last = node
	l.count++

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()

			if node.prev == nil {
				l.first = node.next
			} else {
				node.prev.next = node.next
			}
			if node.next == nil {
				l.last = node.prev
			} else {
				node.next.prev = node.prev
			}
			l.count--
		})
	}
}

// Len returns the number of registered handlers.
func (l *HandlerList[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// All iterates over a snapshot of the registered handlers, so handlers may
// register or remove entries while being invoked.
func (l *HandlerList[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		l.mu.RLock()
		values := make([]T, 0, l.count)
		for curr := l.first; curr != nil; curr = curr.next {
			values = append(values, curr.value)
		}
		l.mu.RUnlock()

		for _, v := range values {
			if !yield(v) {
				return
			}
		}
	}
}
