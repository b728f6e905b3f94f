// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "context"

type (
	// Client is the broker session contract shared by the MQTT v5 session
	// client and the MQTT 3.1.1 client. Implementations own their reconnect
	// policy and report connection changes through the registered handlers.
	Client interface {
		// Start begins connecting in the background. It returns once the
		// client is running, not once it is connected.
		Start() error

		// Stop disconnects and releases the network connection. It returns
		// after all background goroutines have exited.
		Stop() error

		Subscribe(
			ctx context.Context,
			topic string,
			opts ...SubscribeOption,
		) (*Ack, error)

		Publish(
			ctx context.Context,
			topic string,
			payload []byte,
			opts ...PublishOption,
		) (*Ack, error)

		RegisterMessageHandler(MessageHandler) func()
		RegisterConnectEventHandler(ConnectEventHandler) func()
		RegisterDisconnectEventHandler(DisconnectEventHandler) func()
		RegisterFatalErrorHandler(func(error)) func()

		ID() string
	}

	// Message represents a received message.
	Message struct {
		Topic   string
		Payload []byte
		PublishOptions
	}

	// MessageHandler is a user-defined callback function used to handle
	// messages received on the subscribed topic.
	MessageHandler = func(context.Context, *Message)

	// ConnectEvent contains the relevent metadata provided to the handler when
	// the MQTT client connects to the broker.
	ConnectEvent struct {
		ReasonCode byte
	}

	// ConnectEventHandler is a user-defined callback function used to respond
	// to connection notifications from the MQTT client.
	ConnectEventHandler = func(*ConnectEvent)

	// DisconnectEvent contains the relevent metadata provided to the handler
	// when the MQTT client disconnects from the broker. ReasonCode is set when
	// the server sent a DISCONNECT; Error is set when the connection dropped
	// or a connection attempt failed.
	DisconnectEvent struct {
		ReasonCode *byte
		Error      error
	}

	// DisconnectEventHandler is a user-defined callback function used to
	// respond to disconnection notifications from the MQTT client.
	DisconnectEventHandler = func(*DisconnectEvent)

	// Ack contains values from PUBACK/SUBACK packets received from the MQTT
	// server.
	Ack struct {
		ReasonCode   byte
		ReasonString string
	}
)
