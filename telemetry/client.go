// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"log/slog"
	"math"

	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt"
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt/mqtt3"
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt/retry"
)

// ClientFactory creates the transport for a validated configuration. The
// returned client must not be started.
type ClientFactory func(cfg Config, logger *slog.Logger) (mqtt.Client, error)

// NewClient is the default ClientFactory. It builds an MQTT 5 session client
// over WebSocket, or an MQTT 3.1.1 client when ProtocolVersion is 4.
func NewClient(cfg Config, logger *slog.Logger) (mqtt.Client, error) {
	cfg, err := cfg.resolve()
	if err != nil {
		return nil, err
	}
	o := cfg.Options

	if o.ProtocolVersion == ProtocolVersion311 {
		return mqtt3.New(
			cfg.BrokerURL,
			mqtt3.WithClientID(o.ClientID),
			mqtt3.WithCleanSession(!o.PersistentSession),
			mqtt3.WithUsername(o.Username),
			mqtt3.WithPassword(o.Password),
			mqtt3.WithKeepAlive(o.KeepAlive),
			mqtt3.WithConnectTimeout(o.ConnectTimeout),
			mqtt3.WithReconnectPeriod(o.ReconnectPeriod),
			mqtt3.WithTLSConfig(o.TLSConfig),
			mqtt3.WithLogger(logger),
		), nil
	}

	var ws []mqtt.WebSocketOption
	if o.TLSConfig != nil {
		ws = append(ws, mqtt.WithTLSConfig(mqtt.ConstantTLSConfig(o.TLSConfig)))
	}

	opts := []mqtt.SessionClientOption{
		mqtt.WithClientID(o.ClientID),
		mqtt.WithCleanStart(!o.PersistentSession),
		mqtt.WithKeepAlive(uint16(min(o.KeepAlive.Seconds(), math.MaxUint16))),
		mqtt.WithConnectionTimeout(o.ConnectTimeout),
		mqtt.WithConnectionRetry(retry.Constant(o.ReconnectPeriod, logger)),
		mqtt.WithUsername(mqtt.ConstantUsername(o.Username)),
		mqtt.WithPassword(mqtt.ConstantPassword([]byte(o.Password))),
		mqtt.WithLogger(logger),
	}
	if o.PersistentSession {
		opts = append(opts, mqtt.WithSessionExpiry(math.MaxUint32))
	}

	return mqtt.NewSessionClient(
		mqtt.WebSocketConnection(cfg.BrokerURL, ws...),
		opts...,
	), nil
}
