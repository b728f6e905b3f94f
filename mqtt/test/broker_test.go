// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

package test

import (
	"fmt"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"
)

const (
	mochiUserName string = "gary"
	mochiPassword string = "pineapple"

	topicName string = "cleanenv/device1"
	timeout          = 5 * time.Second
)

// Starts an in-process broker with a WebSocket listener on the given port and
// returns it with its ws:// URL.
func startBroker(t *testing.T, port int) (*mochi.Server, string) {
	ledger := &auth.Ledger{
		// Auth disallows all by default
		Auth: auth.AuthRules{
			{
				Username: auth.RString(mochiUserName),
				Password: auth.RString(mochiPassword),
				Allow:    true,
			},
		},
	}

	server := mochi.New(&mochi.Options{InlineClient: true})
	err := server.AddHook(
		new(auth.Hook),
		&auth.Options{
			Ledger: ledger,
		},
	)
	require.NoError(t, err)

	ws := listeners.NewWebsocket(listeners.Config{
		Type:    "ws",
		ID:      fmt.Sprintf("ws%d", port),
		Address: fmt.Sprintf("localhost:%d", port),
	})
	require.NoError(t, server.AddListener(ws))
	require.NoError(t, server.Serve())

	t.Cleanup(func() { _ = server.Close() })

	return server, fmt.Sprintf("ws://localhost:%d/mqtt", port)
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		panic("unreachable")
	}
}
