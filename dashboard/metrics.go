// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"github.com/dev-BJ/CleanEnv-Dashboard/internal/wallclock"
	"github.com/dev-BJ/CleanEnv-Dashboard/telemetry"
	"github.com/prometheus/client_golang/prometheus"
)

// Reports the session snapshot at scrape time.
type collector struct {
	session Session

	connected *prometheus.Desc
	receiving *prometheus.Desc
	quality   *prometheus.Desc
	history   *prometheus.Desc
	age       *prometheus.Desc
	reading   *prometheus.Desc
}

var qualities = []telemetry.Quality{
	telemetry.QualityExcellent,
	telemetry.QualityGood,
	telemetry.QualityPoor,
	telemetry.QualityDisconnected,
}

func newCollector(session Session) *collector {
	return &collector{
		session: session,
		connected: prometheus.NewDesc(
			"tegmon_connected",
			"Whether the broker session is connected (1) or not (0).",
			nil, nil,
		),
		receiving: prometheus.NewDesc(
			"tegmon_receiving_data",
			"Whether readings arrived within the liveness window.",
			nil, nil,
		),
		quality: prometheus.NewDesc(
			"tegmon_quality",
			"Current connection quality; the active class is 1.",
			[]string{"quality"}, nil,
		),
		history: prometheus.NewDesc(
			"tegmon_history_readings",
			"Number of readings in the rolling history.",
			nil, nil,
		),
		age: prometheus.NewDesc(
			"tegmon_last_update_age_seconds",
			"Seconds since the last accepted reading.",
			nil, nil,
		),
		reading: prometheus.NewDesc(
			"tegmon_reading",
			"Latest value of each measurement channel.",
			[]string{"channel"}, nil,
		),
	}
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.connected
	ch <- c.receiving
	ch <- c.quality
	ch <- c.history
	ch <- c.age
	ch <- c.reading
}

func (c *collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.session.Snapshot()

	ch <- gauge(c.connected, boolValue(snap.ConnectionStatus))
	ch <- gauge(c.receiving, boolValue(snap.IsReceivingData))
	for _, q := range qualities {
		ch <- gauge(c.quality, boolValue(snap.Quality == q), string(q))
	}
	ch <- gauge(c.history, float64(len(snap.History)))

	if !snap.LastUpdateTime.IsZero() {
		age := wallclock.Instance.Now().Sub(snap.LastUpdateTime)
		ch <- gauge(c.age, age.Seconds())
	}

	if r := snap.Latest; r != nil {
		for channel, value := range map[string]float64{
			"battery_voltage":  r.BatteryVoltage,
			"battery_current":  r.BatteryCurrent,
			"teg_voltage":      r.TEGVoltage,
			"teg_current":      r.TEGCurrent,
			"charging_voltage": r.ChargingVoltage,
			"charging_current": r.ChargingCurrent,
			"temperature":      r.Temperature,
			"signal_strength":  float64(r.SignalStrength),
			"uptime":           float64(r.Uptime),
		} {
			ch <- gauge(c.reading, value, channel)
		}
	}
}

func gauge(desc *prometheus.Desc, value float64, labels ...string) prometheus.Metric {
	return prometheus.MustNewConstMetric(
		desc,
		prometheus.GaugeValue,
		value,
		labels...,
	)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
