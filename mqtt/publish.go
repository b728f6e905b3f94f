// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"

	"github.com/eclipse/paho.golang/paho"
)

// Publish sends a PUBLISH on the live connection. If the connection drops
// before the publish completes, it is retried on the next connection until
// ctx is done or the client is stopped.
func (c *SessionClient) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opts ...PublishOption,
) (*Ack, error) {
	if !c.sessionStarted.Load() {
		return nil, &ClientStateError{State: NotStarted}
	}

	var opt PublishOptions
	opt.Apply(opts)

	if opt.QoS >= 2 {
		return nil, &InvalidArgumentError{message: "unsupported QoS"}
	}

	pub := &paho.Publish{
		QoS:     opt.QoS,
		Retain:  opt.Retain,
		Topic:   topic,
		Payload: payload,
	}

	ctx, cancel := c.shutdown.With(ctx)
	defer cancel()

	for connCtx, client := range c.conn.Client(ctx) {
		c.log.Packet(connCtx, "publish", pub)
		res, err := client.Publish(connCtx, pub)

		// Paho v0.21 may return (nil, nil) for QoS 0
		// (https://github.com/eclipse/paho.golang/pull/255).
		if pub.QoS == 0 && res == nil && err == nil {
			return &Ack{}, nil
		}
		c.log.Packet(connCtx, "puback", res)

		if err := pubErr.Translate(connCtx, res, err); err != nil {
			// The connection went down mid-publish; try the next one.
			if connCtx.Err() != nil && ctx.Err() == nil {
				continue
			}
			return nil, err
		}

		ack := &Ack{ReasonCode: res.ReasonCode}
		if res.Properties != nil {
			ack.ReasonString = res.Properties.ReasonString
		}
		return ack, nil
	}

	return nil, context.Cause(ctx)
}
