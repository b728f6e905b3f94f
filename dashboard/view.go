// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import "github.com/dev-BJ/CleanEnv-Dashboard/telemetry"

// SnapshotView is the JSON form of a session snapshot. Absent values encode
// as null.
type SnapshotView struct {
	ConnectionStatus bool              `json:"connectionStatus"`
	State            telemetry.State   `json:"state"`
	ClientID         string            `json:"clientId,omitempty"`
	Quality          telemetry.Quality `json:"quality"`
	LastUpdateTime   *int64            `json:"lastUpdateTime"`
	IsReceivingData  bool              `json:"isReceivingData"`

	Latest  *telemetry.SensorReading  `json:"latest"`
	History []telemetry.SensorReading `json:"history"`

	Error    *string `json:"error"`
	Feedback *string `json:"feedback"`
	Revision uint64  `json:"revision"`
}

// NewSnapshotView converts a snapshot for encoding.
func NewSnapshotView(s telemetry.Snapshot) SnapshotView {
	v := SnapshotView{
		ConnectionStatus: s.ConnectionStatus,
		State:            s.State,
		ClientID:         s.ClientID,
		Quality:          s.Quality,
		IsReceivingData:  s.IsReceivingData,
		Latest:           s.Latest,
		History:          s.History,
		Error:            optional(s.LastError),
		Feedback:         optional(s.Feedback),
		Revision:         s.Revision,
	}
	if !s.LastUpdateTime.IsZero() {
		ms := s.LastUpdateTime.UnixMilli()
		v.LastUpdateTime = &ms
	}
	if v.History == nil {
		v.History = []telemetry.SensorReading{}
	}
	return v
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
