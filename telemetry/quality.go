// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import "time"

type (
	// Quality is a coarse connection-health classification derived from the
	// time since the last accepted reading.
	Quality string

	// Thresholds bound the Quality classes. A reading younger than Excellent
	// is excellent, younger than Good is good, and anything older is poor.
	Thresholds struct {
		Excellent time.Duration
		Good      time.Duration
	}
)

const (
	QualityExcellent    Quality = "excellent"
	QualityGood         Quality = "good"
	QualityPoor         Quality = "poor"
	QualityDisconnected Quality = "disconnected"
)

// DefaultThresholds are the thresholds used unless overridden.
var DefaultThresholds = Thresholds{
	Excellent: 5 * time.Second,
	Good:      15 * time.Second,
}

// Classify evaluates the connection quality with DefaultThresholds. A zero
// lastUpdate means no reading has been received yet.
func Classify(connected bool, lastUpdate, now time.Time) Quality {
	return DefaultThresholds.Classify(connected, lastUpdate, now)
}

// Classify evaluates the connection quality.
func (t Thresholds) Classify(connected bool, lastUpdate, now time.Time) Quality {
	switch {
	case !connected:
		return QualityDisconnected
	case lastUpdate.IsZero():
		return QualityGood
	}

	switch age := now.Sub(lastUpdate); {
	case age < t.Excellent:
		return QualityExcellent
	case age < t.Good:
		return QualityGood
	default:
		return QualityPoor
	}
}
