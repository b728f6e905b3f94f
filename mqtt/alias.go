// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"github.com/dev-BJ/CleanEnv-Dashboard/internal/mqtt"
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt/internal"
)

// As the implementation of the shared interface, all of its types are aliased
// for convenience.
type (
	Client                 = mqtt.Client
	Message                = mqtt.Message
	MessageHandler         = mqtt.MessageHandler
	ConnectEvent           = mqtt.ConnectEvent
	ConnectEventHandler    = mqtt.ConnectEventHandler
	DisconnectEvent        = mqtt.DisconnectEvent
	DisconnectEventHandler = mqtt.DisconnectEventHandler
	Ack                    = mqtt.Ack

	SubscribeOptions = mqtt.SubscribeOptions
	SubscribeOption  = mqtt.SubscribeOption
	PublishOptions   = mqtt.PublishOptions
	PublishOption    = mqtt.PublishOption

	WithQoS    = mqtt.WithQoS
	WithRetain = mqtt.WithRetain

	// ReasonCodeError is returned when the server rejects a SUBSCRIBE or
	// PUBLISH with a failure reason code.
	ReasonCodeError = internal.ReasonCodeError
)

// RandomClientID generates a client ID from the prefix and random hex digits,
// truncated to the 23 bytes every MQTT server must accept.
func RandomClientID(prefix string) string {
	return internal.RandomClientID(prefix)
}

var _ mqtt.Client = (*SessionClient)(nil)
