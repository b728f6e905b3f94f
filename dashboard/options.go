// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"log/slog"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/options"
	"github.com/dev-BJ/CleanEnv-Dashboard/telemetry"
)

type (
	// ServerOptions are the resolved server options.
	ServerOptions struct {
		// AllowedOrigins lists the CORS origins; "*" allows any.
		AllowedOrigins []string

		// ClientDefaults are merged into every connect request.
		ClientDefaults telemetry.ClientOptions

		// WriteTimeout bounds each stream frame write.
		WriteTimeout time.Duration

		Logger *slog.Logger
	}

	// ServerOption represents a single server option.
	ServerOption interface{ server(*ServerOptions) }

	// WithAllowedOrigins sets the CORS origins.
	WithAllowedOrigins []string

	// WithClientDefaults sets the transport options used for connect
	// requests.
	WithClientDefaults telemetry.ClientOptions

	// WithWriteTimeout bounds each stream frame write.
	WithWriteTimeout time.Duration

	withLogger struct{ *slog.Logger }
)

const defaultWriteTimeout = 5 * time.Second

// WithLogger enables logging with the provided slog logger.
func WithLogger(l *slog.Logger) ServerOption {
	return withLogger{l}
}

// Apply resolves the provided list of options.
func (o *ServerOptions) Apply(opts []ServerOption, rest ...ServerOption) {
	for opt := range options.Apply[ServerOption](opts, rest...) {
		opt.server(o)
	}
}

func (o *ServerOptions) server(opt *ServerOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithAllowedOrigins) server(opt *ServerOptions) {
	opt.AllowedOrigins = []string(o)
}

func (o WithClientDefaults) server(opt *ServerOptions) {
	opt.ClientDefaults = telemetry.ClientOptions(o)
}

func (o WithWriteTimeout) server(opt *ServerOptions) {
	opt.WriteTimeout = time.Duration(o)
}

func (o withLogger) server(opt *ServerOptions) {
	opt.Logger = o.Logger
}
