// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"errors"
	"fmt"
	"log/slog"
)

type (
	// ConfigError indicates a connection configuration that was rejected
	// before any transport was created.
	ConfigError struct {
		Field   string
		message string
	}

	// DecodeError indicates a message body that could not be decoded into a
	// payload. The message is dropped.
	DecodeError struct {
		Topic   string
		wrapped error
	}

	// SubscribeError indicates the broker (or the connection) failed a single
	// topic subscription. Other topics are unaffected.
	SubscribeError struct {
		Topic   string
		wrapped error
	}
)

// ErrSessionActive is returned by Connect while a broker session is already
// running.
var ErrSessionActive = errors.New(
	"a broker session is already active; disconnect first",
)

func (e *ConfigError) Error() string {
	return e.message
}

// Attrs returns additional error attributes for slog.
func (e *ConfigError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("field", e.Field)}
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode payload on %q: %v", e.Topic, e.wrapped)
}

func (e *DecodeError) Unwrap() error {
	return e.wrapped
}

// Attrs returns additional error attributes for slog.
func (e *DecodeError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("topic", e.Topic)}
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("failed to subscribe to %s: %v", e.Topic, e.wrapped)
}

func (e *SubscribeError) Unwrap() error {
	return e.wrapped
}

// Attrs returns additional error attributes for slog.
func (e *SubscribeError) Attrs() []slog.Attr {
	return []slog.Attr{slog.String("topic", e.Topic)}
}
