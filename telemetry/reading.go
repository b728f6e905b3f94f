// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"
)

type (
	// SensorReading is one normalized telemetry sample from the harvester. It
	// is a value type; every field is populated at construction.
	SensorReading struct {
		BatteryVoltage  float64 `json:"battery_voltage"`
		BatteryCurrent  float64 `json:"battery_current"`
		TEGCurrent      float64 `json:"teg_current"`
		TEGVoltage      float64 `json:"teg_voltage"`
		ChargingCurrent float64 `json:"charging_current"`
		ChargingVoltage float64 `json:"charging_voltage"`
		Temperature     float64 `json:"temperature"`

		// Uptime in seconds.
		Uptime int64 `json:"uptime"`

		// Timestamp in milliseconds since the Unix epoch.
		Timestamp int64 `json:"timestamp"`

		DeviceID string `json:"deviceId"`

		FanState         bool             `json:"fan_state"`
		ActiveConnection ActiveConnection `json:"active_connection"`
		SignalStrength   int64            `json:"signal_strength"`
		BLEStatus        bool             `json:"ble_status"`
		IP               string           `json:"ip"`
		FirmwareVersion  string           `json:"firmware_version"`
	}

	// ActiveConnection is the uplink the device is currently using.
	ActiveConnection string

	// Payload is a decoded device message. Fields hold whatever JSON value
	// the device sent; Normalize applies the default rules.
	Payload struct {
		BatteryVoltage  Value `json:"b_v"`
		BatteryCurrent  Value `json:"b_c"`
		TEGCurrent      Value `json:"t_c"`
		TEGVoltage      Value `json:"t_v"`
		ChargingCurrent Value `json:"c_c"`
		ChargingVoltage Value `json:"c_v"`
		Temperature     Value `json:"temp"`
		Uptime          Value `json:"uptime"`
		Timestamp       Value `json:"timestamp"`
		DeviceID        Value `json:"deviceId"`
		FanState        Value `json:"fan_state"`
		SignalStrength  Value `json:"sig_rssi"`
		ActiveConn      Value `json:"active_conn"`
		BLEStatus       Value `json:"ble_status"`
		IP              Value `json:"ip"`
		Version         Value `json:"ver"`
	}

	// Value is a single loosely typed payload field. The zero value represents
	// a field that was missing or null.
	Value struct{ v any }
)

const (
	ConnectionWiFi     ActiveConnection = "WiFi"
	ConnectionCellular ActiveConnection = "Cellular"
	ConnectionNone     ActiveConnection = "None"
)

// DefaultFirmwareVersion is reported when the device omits its version.
const DefaultFirmwareVersion = "0.0.0"

var errNotObject = errors.New("payload is not a JSON object")

// DecodePayload decodes a raw message body. It is the only step of reading
// ingestion that can fail; anything other than a JSON object is rejected.
func DecodePayload(topic string, data []byte) (*Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &DecodeError{Topic: topic, wrapped: errNotObject}
	}

	var p Payload
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, &DecodeError{Topic: topic, wrapped: err}
	}
	return &p, nil
}

// Normalize builds a reading from a decoded payload received on topic at the
// instant now. It never fails: absent values take their defaults. A nil
// payload yields an all-default reading.
func Normalize(p *Payload, topic string, now time.Time) SensorReading {
	if p == nil {
		p = &Payload{}
	}

	r := SensorReading{
		BatteryVoltage:  p.BatteryVoltage.Float(),
		BatteryCurrent:  p.BatteryCurrent.Float(),
		TEGCurrent:      p.TEGCurrent.Float(),
		TEGVoltage:      p.TEGVoltage.Float(),
		ChargingCurrent: p.ChargingCurrent.Float(),
		ChargingVoltage: p.ChargingVoltage.Float(),
		Temperature:     p.Temperature.Float(),
		Uptime:          p.Uptime.Int(),
		Timestamp:       p.Timestamp.Int(),
		DeviceID:        p.DeviceID.String(),
		FanState:        p.FanState.Truthy(),
		BLEStatus:       p.BLEStatus.Truthy(),
		IP:              p.IP.String(),
		FirmwareVersion: p.Version.String(),
	}

	if r.Timestamp == 0 {
		r.Timestamp = now.UnixMilli()
	}
	if r.DeviceID == "" {
		r.DeviceID = topic
	}
	if r.FirmwareVersion == "" {
		r.FirmwareVersion = DefaultFirmwareVersion
	}

	// A reported zero is a real reading; only an absent value defaults.
	if !p.SignalStrength.IsNull() {
		r.SignalStrength = p.SignalStrength.Int()
	}

	r.ActiveConnection = ConnectionNone
	if code, ok := p.ActiveConn.number(); ok {
		switch code {
		case 0:
			r.ActiveConnection = ConnectionWiFi
		case 1:
			r.ActiveConnection = ConnectionCellular
		}
	}

	return r
}

// UnmarshalJSON keeps the raw JSON value, preserving number precision.
func (v *Value) UnmarshalJSON(data []byte) error {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	return d.Decode(&v.v)
}

// IsNull reports whether the field was missing or null.
func (v Value) IsNull() bool {
	return v.v == nil
}

// Float returns the field as a number. Numbers and numeric strings convert;
// anything else, including non-finite values, is 0.
func (v Value) Float() float64 {
	f, _ := v.number()
	return f
}

// Int returns the field as an integer, truncating any fraction.
func (v Value) Int() int64 {
	if n, ok := v.v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	f, _ := v.number()
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// String returns the field as text. Numbers and booleans are formatted;
// false, empty strings, objects and arrays are empty.
func (v Value) String() string {
	switch t := v.v.(type) {
	case string:
		return t
	case json.Number:
		if f, ok := v.number(); ok && f == 0 {
			return ""
		}
		return t.String()
	case bool:
		if t {
			return "true"
		}
	}
	return ""
}

// Truthy follows the device firmware's loose boolean encoding: true, non-zero
// numbers, non-empty strings, objects and arrays are all true.
func (v Value) Truthy() bool {
	switch t := v.v.(type) {
	case nil:
		return false
	case bool:
		return t
	case json.Number:
		f, ok := v.number()
		return ok && f != 0
	case string:
		return t != ""
	default:
		return true
	}
}

func (v Value) number() (float64, bool) {
	var f float64
	var err error
	switch t := v.v.(type) {
	case json.Number:
		f, err = t.Float64()
	case string:
		f, err = strconv.ParseFloat(t, 64)
	default:
		return 0, false
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
