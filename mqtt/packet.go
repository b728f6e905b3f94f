// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"

	"github.com/eclipse/paho.golang/paho"
)

func (c *SessionClient) buildConnectPacket(
	ctx context.Context,
	reconnect bool,
) (*paho.Connect, error) {
	sessionExpiry := c.options.SessionExpiry
	receiveMaximum := c.options.ReceiveMaximum

	packet := &paho.Connect{
		ClientID:   c.options.ClientID,
		CleanStart: c.options.CleanStart && !reconnect,
		KeepAlive:  c.options.KeepAlive,
		Properties: &paho.ConnectProperties{
			SessionExpiryInterval: &sessionExpiry,
			ReceiveMaximum:        &receiveMaximum,
			RequestProblemInfo:    true,
		},
	}

	if c.options.Username != nil {
		username, ok, err := c.options.Username(ctx)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "error getting username",
				wrapped: err,
			}
		}
		if ok {
			packet.Username = username
			packet.UsernameFlag = true
		}
	}

	if c.options.Password != nil {
		password, ok, err := c.options.Password(ctx)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "error getting password",
				wrapped: err,
			}
		}
		if ok {
			packet.Password = password
			packet.PasswordFlag = true
		}
	}

	return packet, nil
}
