// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt/internal"
	"github.com/eclipse/paho.golang/paho"
)

var (
	pubErr = internal.ErrMap[paho.PublishResponse]{
		String: "MQTT publish",
		Reason: func(r *paho.PublishResponse) (byte, string) {
			// Paho could possibly return empty PublishResponse struct.
			if r.Properties == nil {
				return r.ReasonCode, ""
			}
			return r.ReasonCode, r.Properties.ReasonString
		},
	}
	subErr = internal.ErrMap[paho.Suback]{
		String: "MQTT subscribe",
		Reason: func(a *paho.Suback) (byte, string) {
			var reason string
			if a.Properties != nil {
				reason = a.Properties.ReasonString
			}
			if len(a.Reasons) == 0 {
				return 0x80, reason
			}
			return a.Reasons[0], reason
		},
	}
)
