// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"log/slog"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/options"
	"github.com/dev-BJ/CleanEnv-Dashboard/mqtt/retry"
)

type (
	// SessionClientOptions are the resolved options for the session client.
	SessionClientOptions struct {
		CleanStart     bool
		KeepAlive      uint16
		SessionExpiry  uint32
		ReceiveMaximum uint16

		// ConnectionTimeout bounds each connect attempt, from opening the
		// network connection to receiving the CONNACK. Zero means no bound.
		ConnectionTimeout time.Duration

		ClientID string
		Username UsernameProvider
		Password PasswordProvider

		ConnectionRetry retry.Policy
		Logger          *slog.Logger
	}

	// SessionClientOption represents a single option for the session client.
	SessionClientOption interface{ sessionClient(*SessionClientOptions) }

	// WithCleanStart requests a clean start for the first connection.
	// Reconnections never request a clean start.
	WithCleanStart bool

	// WithKeepAlive sets the keep-alive interval in seconds.
	WithKeepAlive uint16

	// WithSessionExpiry sets the session expiry interval in seconds.
	WithSessionExpiry uint32

	// WithReceiveMaximum sets the client's receive maximum.
	WithReceiveMaximum uint16

	// WithConnectionTimeout bounds each connection attempt.
	WithConnectionTimeout time.Duration

	// WithClientID sets the MQTT client ID.
	WithClientID string

	// WithUsername sets the username provider.
	WithUsername UsernameProvider

	// WithPassword sets the password provider.
	WithPassword PasswordProvider

	withConnectionRetry struct{ retry.Policy }

	withLogger struct{ *slog.Logger }
)

// WithConnectionRetry sets the policy used between connection attempts.
func WithConnectionRetry(policy retry.Policy) SessionClientOption {
	return withConnectionRetry{policy}
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(l *slog.Logger) SessionClientOption {
	return withLogger{l}
}

// Apply resolves the provided list of options.
func (o *SessionClientOptions) Apply(
	opts []SessionClientOption,
	rest ...SessionClientOption,
) {
	for opt := range options.Apply[SessionClientOption](opts, rest...) {
		opt.sessionClient(o)
	}
}

// Assign non-nil options.
func (o *SessionClientOptions) sessionClient(opt *SessionClientOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithCleanStart) sessionClient(opt *SessionClientOptions) {
	opt.CleanStart = bool(o)
}

func (o WithKeepAlive) sessionClient(opt *SessionClientOptions) {
	opt.KeepAlive = uint16(o)
}

func (o WithSessionExpiry) sessionClient(opt *SessionClientOptions) {
	opt.SessionExpiry = uint32(o)
}

func (o WithReceiveMaximum) sessionClient(opt *SessionClientOptions) {
	opt.ReceiveMaximum = uint16(o)
}

func (o WithConnectionTimeout) sessionClient(opt *SessionClientOptions) {
	opt.ConnectionTimeout = time.Duration(o)
}

func (o WithClientID) sessionClient(opt *SessionClientOptions) {
	opt.ClientID = string(o)
}

func (o WithUsername) sessionClient(opt *SessionClientOptions) {
	opt.Username = UsernameProvider(o)
}

func (o WithPassword) sessionClient(opt *SessionClientOptions) {
	opt.Password = PasswordProvider(o)
}

func (o withConnectionRetry) sessionClient(opt *SessionClientOptions) {
	opt.ConnectionRetry = o.Policy
}

func (o withLogger) sessionClient(opt *SessionClientOptions) {
	opt.Logger = o.Logger
}
