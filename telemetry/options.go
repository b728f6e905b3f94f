// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"log/slog"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/options"
	"github.com/dev-BJ/CleanEnv-Dashboard/internal/wallclock"
)

type (
	// ControllerOptions are the resolved controller options.
	ControllerOptions struct {
		Clock         wallclock.WallClock
		ClientFactory ClientFactory
		Thresholds    Thresholds

		// LivenessWindow is how long IsReceivingData stays true after a
		// reading.
		LivenessWindow time.Duration

		// QualityInterval is the period of the quality re-evaluation while
		// connected.
		QualityInterval time.Duration

		Logger *slog.Logger
	}

	// ControllerOption represents a single controller option.
	ControllerOption interface{ controller(*ControllerOptions) }

	// WithThresholds overrides the quality classification thresholds.
	WithThresholds Thresholds

	// WithLivenessWindow overrides the liveness window.
	WithLivenessWindow time.Duration

	// WithQualityInterval overrides the quality tick period.
	WithQualityInterval time.Duration

	// WithClientFactory replaces the transport constructor.
	WithClientFactory ClientFactory

	withClock struct{ wallclock.WallClock }

	withLogger struct{ *slog.Logger }
)

// DefaultQualityInterval is the period of the quality tick.
const DefaultQualityInterval = 2 * time.Second

// WithClock sets the clock driving timestamps and timers.
func WithClock(clock wallclock.WallClock) ControllerOption {
	return withClock{clock}
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(l *slog.Logger) ControllerOption {
	return withLogger{l}
}

// Apply resolves the provided list of options.
func (o *ControllerOptions) Apply(
	opts []ControllerOption,
	rest ...ControllerOption,
) {
	for opt := range options.Apply[ControllerOption](opts, rest...) {
		opt.controller(o)
	}
}

func (o *ControllerOptions) controller(opt *ControllerOptions) {
	if o != nil {
		*opt = *o
	}
}

func (o WithThresholds) controller(opt *ControllerOptions) {
	opt.Thresholds = Thresholds(o)
}

func (o WithLivenessWindow) controller(opt *ControllerOptions) {
	opt.LivenessWindow = time.Duration(o)
}

func (o WithQualityInterval) controller(opt *ControllerOptions) {
	opt.QualityInterval = time.Duration(o)
}

func (o WithClientFactory) controller(opt *ControllerOptions) {
	opt.ClientFactory = ClientFactory(o)
}

func (o withClock) controller(opt *ControllerOptions) {
	opt.Clock = o.WallClock
}

func (o withLogger) controller(opt *ControllerOptions) {
	opt.Logger = o.Logger
}
