// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"

	"github.com/eclipse/paho.golang/paho"
)

// Subscribe sends a SUBSCRIBE for a single topic filter on the live
// connection, waiting for one to come up if necessary. Subscriptions are not
// replayed on reconnect; callers resubscribe from their connect handler.
func (c *SessionClient) Subscribe(
	ctx context.Context,
	topic string,
	opts ...SubscribeOption,
) (*Ack, error) {
	if !c.sessionStarted.Load() {
		return nil, &ClientStateError{State: NotStarted}
	}

	var opt SubscribeOptions
	opt.Apply(opts)

	if opt.QoS >= 2 {
		return nil, &InvalidArgumentError{message: "unsupported QoS"}
	}

	sub := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic:             topic,
			QoS:               opt.QoS,
			RetainAsPublished: opt.Retain,
		}},
	}

	ctx, cancel := c.shutdown.With(ctx)
	defer cancel()

	for ctx, client := range c.conn.Client(ctx) {
		c.log.Packet(ctx, "subscribe", sub)
		suback, err := client.Subscribe(ctx, sub)
		c.log.Packet(ctx, "suback", suback)

		if err := subErr.Translate(ctx, suback, err); err != nil {
			return nil, err
		}

		ack := &Ack{ReasonCode: suback.Reasons[0]}
		if suback.Properties != nil {
			ack.ReasonString = suback.Properties.ReasonString
		}
		return ack, nil
	}

	return nil, context.Cause(ctx)
}
