// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt3

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/options"
)

type (
	// ClientOptions are the resolved options for the MQTT 3.1.1 client.
	ClientOptions struct {
		ClientID     string
		CleanSession bool
		Username     string
		Password     string
		KeepAlive    time.Duration

		// ConnectTimeout bounds each connect attempt.
		ConnectTimeout time.Duration

		// ReconnectPeriod is the delay between connection attempts, both
		// before the first connection and after a connection is lost.
		ReconnectPeriod time.Duration

		TLSConfig *tls.Config
		Logger    *slog.Logger
	}

	// ClientOption represents a single option for the client.
	ClientOption interface{ client(*ClientOptions) }

	// WithClientID sets the MQTT client ID.
	WithClientID string

	// WithCleanSession sets the clean session flag.
	WithCleanSession bool

	// WithUsername sets the username; empty means none.
	WithUsername string

	// WithPassword sets the password; empty means none.
	WithPassword string

	// WithKeepAlive sets the keep-alive interval.
	WithKeepAlive time.Duration

	// WithConnectTimeout bounds each connect attempt.
	WithConnectTimeout time.Duration

	// WithReconnectPeriod sets the delay between connection attempts.
	WithReconnectPeriod time.Duration

	withTLSConfig struct{ *tls.Config }

	withLogger struct{ *slog.Logger }
)

// WithTLSConfig sets the TLS configuration used for wss:// brokers.
func WithTLSConfig(config *tls.Config) ClientOption {
	return withTLSConfig{config}
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(l *slog.Logger) ClientOption {
	return withLogger{l}
}

// Apply resolves the provided list of options.
func (o *ClientOptions) Apply(opts []ClientOption, rest ...ClientOption) {
	for opt := range options.Apply[ClientOption](opts, rest...) {
		opt.client(o)
	}
}

// Assign non-nil options.
func (o *ClientOptions) client(opt *ClientOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithClientID) client(opt *ClientOptions) {
	opt.ClientID = string(o)
}

func (o WithCleanSession) client(opt *ClientOptions) {
	opt.CleanSession = bool(o)
}

func (o WithUsername) client(opt *ClientOptions) {
	opt.Username = string(o)
}

func (o WithPassword) client(opt *ClientOptions) {
	opt.Password = string(o)
}

func (o WithKeepAlive) client(opt *ClientOptions) {
	opt.KeepAlive = time.Duration(o)
}

func (o WithConnectTimeout) client(opt *ClientOptions) {
	opt.ConnectTimeout = time.Duration(o)
}

func (o WithReconnectPeriod) client(opt *ClientOptions) {
	opt.ReconnectPeriod = time.Duration(o)
}

func (o withTLSConfig) client(opt *ClientOptions) {
	opt.TLSConfig = o.Config
}

func (o withLogger) client(opt *ClientOptions) {
	opt.Logger = o.Logger
}
