// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package wallclock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	f := NewFake(epoch)

	var fired []string
	var at []time.Time
	record := func(name string) func() {
		return func() {
			fired = append(fired, name)
			at = append(at, f.Now())
		}
	}

	f.AfterFunc(3*time.Second, record("c"))
	f.AfterFunc(time.Second, record("a"))
	f.AfterFunc(time.Second, record("b"))
	require.Equal(t, 3, f.Pending())

	f.Advance(2 * time.Second)
	require.Equal(t, []string{"a", "b"}, fired)
	require.Equal(t, epoch.Add(time.Second), at[0])
	require.Equal(t, epoch.Add(2*time.Second), f.Now())
	require.Equal(t, 1, f.Pending())

	f.Advance(time.Second)
	require.Equal(t, []string{"a", "b", "c"}, fired)
	require.Equal(t, 0, f.Pending())
}

func TestFakeStopAndReset(t *testing.T) {
	f := NewFake(epoch)
	count := 0
	timer := f.AfterFunc(time.Second, func() { count++ })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())
	f.Advance(time.Minute)
	require.Equal(t, 0, count)

	require.False(t, timer.Reset(time.Second))
	require.True(t, timer.Reset(2*time.Second))
	f.Advance(time.Second)
	require.Equal(t, 0, count)
	f.Advance(time.Second)
	require.Equal(t, 1, count)

	f.Advance(time.Minute)
	require.Equal(t, 1, count)
}

func TestFakeRescheduleFromCallback(t *testing.T) {
	f := NewFake(epoch)
	count := 0
	var timer Timer
	timer = f.AfterFunc(time.Second, func() {
		count++
		timer.Reset(time.Second)
	})

	f.Advance(5 * time.Second)
	require.Equal(t, 5, count)
	require.Equal(t, 1, f.Pending())
}

func TestFakeAfter(t *testing.T) {
	f := NewFake(epoch)
	ch := f.After(time.Second)

	select {
	case <-ch:
		t.Fatal("fired early")
	default:
	}

	f.Advance(time.Second)
	require.Equal(t, epoch.Add(time.Second), <-ch)
}

func TestFakeWithTimeout(t *testing.T) {
	f := NewFake(epoch)

	ctx, cancel := f.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, ctx.Err())

	f.Advance(time.Second)
	<-ctx.Done()
	require.ErrorIs(t, context.Cause(ctx), context.DeadlineExceeded)

	ctx, cancel = f.WithTimeout(context.Background(), time.Second)
	cancel()
	require.ErrorIs(t, context.Cause(ctx), context.Canceled)
	require.Equal(t, 0, f.Pending())
}
