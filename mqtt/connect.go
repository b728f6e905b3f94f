// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/wallclock"
	"github.com/eclipse/paho.golang/paho"
)

// Start the session client, spawning any necessary background goroutines. The
// first connection attempt happens in the background; connection results are
// reported through the registered event handlers.
func (c *SessionClient) Start() error {
	if !c.sessionStarted.CompareAndSwap(false, true) {
		return &ClientStateError{State: Started}
	}

	ctx, cancel := c.shutdown.With(context.Background())
	c.ctx = ctx

	go func() {
		defer close(c.stopped)
		defer cancel()
		c.manageConnection(ctx)
	}()

	return nil
}

// Stop the session client, sending a DISCONNECT to the server if connected
// and terminating any background goroutines. It returns once the network
// connection has been released.
func (c *SessionClient) Stop() error {
	if !c.sessionStarted.Load() {
		return &ClientStateError{State: NotStarted}
	}
	if !c.sessionStopped.CompareAndSwap(false, true) {
		return &ClientStateError{State: ShutDown}
	}

	c.shutdown.Close()
	<-c.stopped
	return nil
}

// Attempts an initial connection and then listens for disconnections to
// attempt reconnections. Returns when the client is stopped or when a fatal
// error is encountered.
func (c *SessionClient) manageConnection(ctx context.Context) {
	var reconnect bool

	for {
		var down <-chan struct{}
		err := c.options.ConnectionRetry.Start(
			ctx,
			"connect",
			func(ctx context.Context) (bool, error) {
				var err error
				down, err = c.connect(ctx, reconnect)
				if err == nil {
					return false, nil
				}

				// Shutdown is not a connection failure.
				if ctx.Err() != nil {
					return false, err
				}

				c.log.Err(ctx, err)
				c.notifyDisconnect(&DisconnectEvent{Error: err})
				return !isFatal(err), err
			},
		)
		if err != nil {
			if ctx.Err() == nil {
				c.fatal(ctx, err)
			}
			return
		}
		reconnect = true

		select {
		case <-ctx.Done():
			c.disconnect(ctx)
			return

		case <-down:
			current := c.conn.Current()
			c.log.Warn(ctx, "connection lost",
				slog.String("error", errorString(current.Error)),
			)

			var fatal *FatalDisconnectError
			if errors.As(current.Error, &fatal) {
				c.notifyDisconnect(&DisconnectEvent{
					ReasonCode: &fatal.ReasonCode,
				})
				c.fatal(ctx, fatal)
				return
			}

			event := &DisconnectEvent{}
			var disconnect *DisconnectError
			if errors.As(current.Error, &disconnect) {
				event.ReasonCode = &disconnect.ReasonCode
			} else {
				event.Error = current.Error
			}
			c.notifyDisconnect(event)
		}
	}
}

// Make a single connection attempt. On success it returns a channel which is
// closed when the connection goes down.
func (c *SessionClient) connect(
	ctx context.Context,
	reconnect bool,
) (<-chan struct{}, error) {
	attempt := c.conn.Attempt()

	if c.options.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = wallclock.Instance.WithTimeout(
			ctx,
			c.options.ConnectionTimeout,
		)
		defer cancel()
	}

	packet, err := c.buildConnectPacket(ctx, reconnect)
	if err != nil {
		return nil, err
	}

	conn, err := c.connectionProvider(ctx)
	if err != nil {
		return nil, err
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: c.options.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(p paho.PublishReceived) (bool, error) {
				c.onPublish(p.Packet)
				return true, nil
			},
		},
		OnServerDisconnect: func(p *paho.Disconnect) {
			c.log.Packet(c.ctx, "disconnect", p)
			var err error = &DisconnectError{ReasonCode: p.ReasonCode}
			if isFatalDisconnectReasonCode(p.ReasonCode) {
				err = &FatalDisconnectError{ReasonCode: p.ReasonCode}
			}
			c.conn.Disconnect(attempt, err)
		},
		OnClientError: func(err error) {
			c.conn.Disconnect(attempt, &ConnectionError{
				message: "connection lost",
				wrapped: err,
			})
		},
	})

	c.log.Packet(ctx, "connect", packet)
	connack, err := client.Connect(ctx, packet)
	c.log.Packet(ctx, "connack", connack)

	switch {
	case connack != nil && connack.ReasonCode >= 0x80:
		_ = conn.Close()
		if isFatalConnackReasonCode(connack.ReasonCode) {
			return nil, &FatalConnackError{ReasonCode: connack.ReasonCode}
		}
		return nil, &ConnackError{ReasonCode: connack.ReasonCode}

	case err != nil:
		_ = conn.Close()
		return nil, &ConnectionError{
			message: "error completing MQTT handshake",
			wrapped: err,
		}
	}

	// The connection may have dropped before the tracker saw it come up.
	if err := c.conn.Connect(client); err != nil {
		_ = conn.Close()
		return nil, err
	}

	current := c.conn.Current()
	c.log.Info(ctx, "connected",
		slog.String("client_id", c.options.ClientID),
		slog.Uint64("attempt", current.Attempt),
	)
	for handler := range c.connectEventHandlers.All() {
		handler(&ConnectEvent{ReasonCode: connack.ReasonCode})
	}

	return current.Down.Done(), nil
}

// Gracefully close the live connection, if any.
func (c *SessionClient) disconnect(ctx context.Context) {
	current := c.conn.Current()
	if current.Client == nil {
		return
	}

	packet := &paho.Disconnect{ReasonCode: disconnectNormalDisconnection}
	c.log.Packet(ctx, "disconnect", packet)
	if err := current.Client.Disconnect(packet); err != nil {
		c.log.Err(ctx, err)
	}
	c.conn.Disconnect(current.Attempt, &ClientStateError{State: ShutDown})
}

func (c *SessionClient) fatal(ctx context.Context, err error) {
	c.log.Err(ctx, err, slog.Bool("fatal", true))
	for handler := range c.fatalErrorHandlers.All() {
		go handler(err)
	}
}

func (c *SessionClient) notifyDisconnect(event *DisconnectEvent) {
	for handler := range c.disconnectEventHandlers.All() {
		handler(event)
	}
}

func (c *SessionClient) onPublish(p *paho.Publish) {
	c.log.Packet(c.ctx, "publish received", p)

	msg := &Message{
		Topic:   p.Topic,
		Payload: p.Payload,
		PublishOptions: PublishOptions{
			QoS:    p.QoS,
			Retain: p.Retain,
		},
	}
	for handler := range c.messageHandlers.All() {
		handler(c.ctx, msg)
	}
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
