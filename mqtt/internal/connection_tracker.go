// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"iter"
	"sync"
)

type (
	// ConnectionTracker records which network connection (if any) is live and
	// which connect attempt it belongs to, so that late notifications from a
	// torn-down connection cannot affect its successor.
	ConnectionTracker[Client comparable] struct {
		current   CurrentConnection[Client]
		currentMu sync.RWMutex
	}

	// CurrentConnection is a copy of the tracked connection state.
	CurrentConnection[Client comparable] struct {
		// Client for the live connection; zero while disconnected.
		Client Client

		// Error that ended the last connection or attempt.
		Error error

		// Closed once a connection comes up; replaced on disconnect.
		up chan struct{}

		// Closed when the live connection goes down. Always closed while
		// disconnected.
		Down *Background

		// Counter for connection attempts, successful or not.
		Attempt uint64
	}
)

func NewConnectionTracker[Client comparable]() *ConnectionTracker[Client] {
	c := &ConnectionTracker[Client]{}
	c.current.up = make(chan struct{})
	c.current.Down = NewBackground(context.Canceled)
	c.current.Down.Close()
	return c
}

// Attempt begins a new connect attempt and returns its number.
func (c *ConnectionTracker[Client]) Attempt() uint64 {
	c.currentMu.Lock()
	defer c.currentMu.Unlock()

	c.current.Error = nil
	c.current.Attempt++
	return c.current.Attempt
}

// Connect marks the current attempt as connected with the given client. It
// fails with the recorded error if the connection already dropped between
// the attempt starting and the CONNACK arriving.
func (c *ConnectionTracker[Client]) Connect(client Client) error {
	c.currentMu.Lock()
	defer c.currentMu.Unlock()

	if c.current.Error != nil {
		return c.current.Error
	}

	c.current.Client = client
	close(c.current.up)
	c.current.Down = NewBackground(context.Canceled)
	return nil
}

// Disconnect marks the given attempt as down. Notifications for any attempt
// other than the current one are ignored.
func (c *ConnectionTracker[Client]) Disconnect(attempt uint64, err error) {
	c.currentMu.Lock()
	defer c.currentMu.Unlock()

	if c.current.Attempt != attempt {
		return
	}

	if c.current.Error == nil {
		c.current.Error = err
	}

	var zero Client
	if c.current.Client == zero {
		return
	}

	c.current.Client = zero
	c.current.up = make(chan struct{})
	c.current.Down.Close()
}

func (c *ConnectionTracker[Client]) Current() CurrentConnection[Client] {
	c.currentMu.RLock()
	defer c.currentMu.RUnlock()

	return c.current
}

// Connected reports whether a connection is currently live.
func (c *ConnectionTracker[Client]) Connected() bool {
	var zero Client
	return c.Current().Client != zero
}

// Client yields the live client, waiting for one if the connection is down.
// The yielded context is cancelled if that connection drops, so the caller
// should continue the loop to retry on the next connection or return once
// the call completes. The sequence ends when ctx is done.
func (c *ConnectionTracker[Client]) Client(
	ctx context.Context,
) iter.Seq2[context.Context, Client] {
	return func(yield func(context.Context, Client) bool) {
		for {
			current := c.Current()

			var zero Client
			if current.Client == zero {
				select {
				case <-ctx.Done():
					return
				case <-current.up:
					continue
				}
			}

			if !func() bool {
				ctx, cancel := current.Down.With(ctx)
				defer cancel()
				return yield(ctx, current.Client)
			}() {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-current.Down.Done():
			}
		}
	}
}
