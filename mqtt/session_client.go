// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"sync/atomic"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/log"
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt/internal"
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt/retry"
	"github.com/eclipse/paho.golang/paho"
)

type (
	// SessionClient implements an MQTT v5 session client with QoS 0 and QoS 1
	// support. It connects in the background and reconnects according to its
	// retry policy until stopped or until a fatal error occurs.
	SessionClient struct {
		// Used to ensure Start() is called only once and that user operations
		// are only started after Start() is called.
		sessionStarted atomic.Bool

		// Used to ensure Stop() only tears down once.
		sessionStopped atomic.Bool

		// Used to signal client shutdown for cleaning up background goroutines
		// and inflight operations.
		shutdown *internal.Background

		// Closed when manageConnection() has returned.
		stopped chan struct{}

		// Context bound to the shutdown, passed to message handlers.
		ctx context.Context

		// Tracker for the connection.
		conn *internal.ConnectionTracker[*paho.Client]

		messageHandlers         *internal.HandlerList[MessageHandler]
		connectEventHandlers    *internal.HandlerList[ConnectEventHandler]
		disconnectEventHandlers *internal.HandlerList[DisconnectEventHandler]
		fatalErrorHandlers      *internal.HandlerList[func(error)]

		connectionProvider ConnectionProvider
		options            SessionClientOptions

		log internal.Logger
	}
)

// NewSessionClient constructs a new session client with user options.
func NewSessionClient(
	connectionProvider ConnectionProvider,
	opts ...SessionClientOption,
) *SessionClient {
	client := &SessionClient{
		connectionProvider: connectionProvider,

		shutdown: internal.NewBackground(&ClientStateError{ShutDown}),
		stopped:  make(chan struct{}),
		conn:     internal.NewConnectionTracker[*paho.Client](),

		messageHandlers:         internal.NewHandlerList[MessageHandler](),
		connectEventHandlers:    internal.NewHandlerList[ConnectEventHandler](),
		disconnectEventHandlers: internal.NewHandlerList[DisconnectEventHandler](),
		fatalErrorHandlers:      internal.NewHandlerList[func(error)](),
	}

	client.options.Apply(opts)

	if client.options.ClientID == "" {
		client.options.ClientID = internal.RandomClientID(clientIDPrefix)
	}

	if client.options.KeepAlive == 0 {
		client.options.KeepAlive = defaultKeepAlive
	}

	if client.options.ReceiveMaximum == 0 {
		client.options.ReceiveMaximum = defaultReceiveMaximum
	}

	if client.options.ConnectionRetry == nil {
		client.options.ConnectionRetry = &retry.ExponentialBackoff{
			Logger: client.options.Logger,
		}
	}

	client.log.Logger = log.Wrap(client.options.Logger)

	return client
}

// ID returns the MQTT client ID for this session client.
func (c *SessionClient) ID() string {
	return c.options.ClientID
}

// RegisterMessageHandler registers a handler for every incoming PUBLISH. It
// returns a function to remove the handler.
func (c *SessionClient) RegisterMessageHandler(handler MessageHandler) func() {
	return c.messageHandlers.Register(handler)
}

// RegisterConnectEventHandler registers a handler called synchronously each
// time a connection is established. It returns a function to remove the
// handler.
func (c *SessionClient) RegisterConnectEventHandler(
	handler ConnectEventHandler,
) func() {
	return c.connectEventHandlers.Register(handler)
}

// RegisterDisconnectEventHandler registers a handler called synchronously each
// time a connection is lost or a connection attempt fails. It returns a
// function to remove the handler.
func (c *SessionClient) RegisterDisconnectEventHandler(
	handler DisconnectEventHandler,
) func() {
	return c.disconnectEventHandlers.Register(handler)
}

// RegisterFatalErrorHandler registers a handler called in a goroutine if the
// client terminates because of a fatal error. It returns a function to remove
// the handler.
func (c *SessionClient) RegisterFatalErrorHandler(
	handler func(error),
) func() {
	return c.fatalErrorHandlers.Register(handler)
}
