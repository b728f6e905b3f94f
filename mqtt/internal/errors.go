// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type (
	// ErrMap translates a paho response and error into a single error.
	ErrMap[T any] struct {
		String string
		Reason func(*T) (byte, string)
	}

	// ReasonCodeError is returned when the server answers a request with a
	// failure reason code (0x80 and above).
	ReasonCodeError struct {
		Operation    string
		ReasonCode   byte
		ReasonString string
	}

	// OperationError wraps a client library failure for a given operation.
	OperationError struct {
		Operation string
		Err       error
	}
)

// Translate a paho response to an error. An actual error indicates a failure
// in the client library, whereas a response with a failure code indicates an
// issue with the MQTT request.
func (e *ErrMap[T]) Translate(ctx context.Context, res *T, err error) error {
	// An error from the incoming context overrides any returned error.
	if ctxErr := context.Cause(ctx); ctxErr != nil {
		return &OperationError{e.String, ctxErr}
	}

	// Paho returns an error for failed MQTT results as well as the result.
	// Since we want those to be returned as reason code errors, check them
	// first.
	if res != nil {
		if code, reason := e.Reason(res); code >= 0x80 {
			return &ReasonCodeError{e.String, code, reason}
		}
		return nil
	}

	if err == nil {
		return &OperationError{
			e.String,
			errors.New("nil response without an error"),
		}
	}
	return &OperationError{e.String, err}
}

func (e *ReasonCodeError) Error() string {
	if e.ReasonString != "" {
		return fmt.Sprintf(
			"%s failed: %s (reason code 0x%x)",
			e.Operation,
			e.ReasonString,
			e.ReasonCode,
		)
	}
	return fmt.Sprintf(
		"%s failed with reason code 0x%x",
		e.Operation,
		e.ReasonCode,
	)
}

func (e *ReasonCodeError) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("operation", e.Operation),
		slog.Int("reason_code", int(e.ReasonCode)),
	}
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
