// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt3

import (
	"errors"
	"fmt"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

var (
	// ErrNotStarted is returned by operations on a client that has not been
	// started.
	ErrNotStarted = errors.New("the MQTT client has not yet been started")

	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("the MQTT client has already been started")

	// ErrShutDown is returned once the client has been stopped.
	ErrShutDown = errors.New("the MQTT client has been shut down")
)

// ConnectError wraps a failed connection attempt.
type ConnectError struct {
	Fatal   bool
	wrapped error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("error connecting to MQTT broker: %v", e.wrapped)
}

func (e *ConnectError) Unwrap() error {
	return e.wrapped
}

// SubscribeError is returned when the broker refuses a subscription.
type SubscribeError struct {
	Topic string
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("broker refused subscription to %q", e.Topic)
}

// Return codes in a CONNACK that retrying cannot fix.
var fatalConnectErrors = []error{
	packets.ErrorRefusedBadProtocolVersion,
	packets.ErrorRefusedIDRejected,
	packets.ErrorRefusedBadUsernameOrPassword,
	packets.ErrorRefusedNotAuthorised,
}

func isFatalConnectError(err error) bool {
	for _, fatal := range fatalConnectErrors {
		if errors.Is(err, fatal) {
			return true
		}
	}
	return false
}
