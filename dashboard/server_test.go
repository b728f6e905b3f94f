// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/telemetry"
	"github.com/stretchr/testify/require"
)

type (
	stubSession struct {
		mu         sync.Mutex
		snap       telemetry.Snapshot
		connectErr error
		publishErr error

		configs     []telemetry.Config
		disconnects int
		published   []string
		handlers    []func(telemetry.Snapshot)
	}
)

func (s *stubSession) Connect(cfg telemetry.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs = append(s.configs, cfg)
	return s.connectErr
}

func (s *stubSession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
}

func (s *stubSession) Publish(_ context.Context, topic, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, topic+"="+message)
	return s.publishErr
}

func (s *stubSession) Snapshot() telemetry.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *stubSession) RegisterStateHandler(h func(telemetry.Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
	i := len(s.handlers) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.handlers[i] = nil
	}
}

// Stores the snapshot and notifies like the controller does.
func (s *stubSession) update(snap telemetry.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	handlers := append([]func(telemetry.Snapshot){}, s.handlers...)
	s.mu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(snap)
		}
	}
}

var sample = telemetry.SensorReading{
	BatteryVoltage:   12.6,
	Temperature:      25.3,
	Timestamp:        1700000000000,
	DeviceID:         "dev-1",
	ActiveConnection: telemetry.ConnectionNone,
	FirmwareVersion:  "0.0.0",
}

func connectedSnapshot() telemetry.Snapshot {
	return telemetry.Snapshot{
		State:            telemetry.StateConnected,
		ClientID:         "CleanEnv-0123abcd",
		ConnectionStatus: true,
		Quality:          telemetry.QualityExcellent,
		LastUpdateTime:   time.UnixMilli(1700000000123),
		IsReceivingData:  true,
		Latest:           &sample,
		History:          []telemetry.SensorReading{sample},
		Feedback:         "Connected to MQTT broker",
		Revision:         7,
	}
}

func newTestServer(t *testing.T, session *stubSession) *Server {
	s := NewServer(session)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &stubSession{})

	rec := do(s, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSnapshotIdle(t *testing.T) {
	s := newTestServer(t, &stubSession{snap: telemetry.Snapshot{
		Quality: telemetry.QualityDisconnected,
	}})

	rec := do(s, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{
		"connectionStatus": false,
		"state": "idle",
		"quality": "disconnected",
		"lastUpdateTime": null,
		"isReceivingData": false,
		"latest": null,
		"history": [],
		"error": null,
		"feedback": null,
		"revision": 0
	}`, rec.Body.String())
}

func TestSnapshotConnected(t *testing.T) {
	s := newTestServer(t, &stubSession{snap: connectedSnapshot()})

	rec := do(s, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "connected", view["state"])
	require.Equal(t, "excellent", view["quality"])
	require.Equal(t, "CleanEnv-0123abcd", view["clientId"])
	require.Equal(t, float64(1700000000123), view["lastUpdateTime"])
	require.Equal(t, "Connected to MQTT broker", view["feedback"])
	require.Nil(t, view["error"])
	require.Len(t, view["history"], 1)

	latest := view["latest"].(map[string]any)
	require.Equal(t, 12.6, latest["battery_voltage"])
	require.Equal(t, "dev-1", latest["deviceId"])
}

func TestHistory(t *testing.T) {
	s := newTestServer(t, &stubSession{snap: connectedSnapshot()})

	rec := do(s, http.MethodGet, "/api/history", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var history []telemetry.SensorReading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Equal(t, []telemetry.SensorReading{sample}, history)
}

func TestConnect(t *testing.T) {
	session := &stubSession{}
	s := NewServer(session, WithClientDefaults{
		ConnectTimeout:  10 * time.Second,
		ProtocolVersion: telemetry.ProtocolVersion311,
	})
	t.Cleanup(func() { require.NoError(t, s.Close()) })

	rec := do(s, http.MethodPost, "/api/connect", `{
		"brokerUrl": "wss://broker.example.com:8884/mqtt",
		"topics": "cleanenv/a, cleanenv/b",
		"username": "gary",
		"password": "pineapple"
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(s, http.MethodPost, "/api/connect", `{
		"brokerUrl": "ws://localhost:9001",
		"topics": ["cleanenv/c"],
		"clientId": "dashboard-1",
		"protocolVersion": 5
	}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, session.configs, 2)
	first := session.configs[0]
	require.Equal(t, "wss://broker.example.com:8884/mqtt", first.BrokerURL)
	require.Equal(t, []string{"cleanenv/a", "cleanenv/b"}, first.Topics)
	require.Equal(t, "gary", first.Options.Username)
	require.Equal(t, "pineapple", first.Options.Password)
	require.Equal(t, 10*time.Second, first.Options.ConnectTimeout)
	require.Equal(t, telemetry.ProtocolVersion311, first.Options.ProtocolVersion)

	second := session.configs[1]
	require.Equal(t, []string{"cleanenv/c"}, second.Topics)
	require.Equal(t, "dashboard-1", second.Options.ClientID)
	require.Equal(t, telemetry.ProtocolVersion5, second.Options.ProtocolVersion)
}

func TestConnectErrors(t *testing.T) {
	for _, test := range []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{
			name:   "InvalidJSON",
			body:   `{"brokerUrl":`,
			status: http.StatusBadRequest,
		},
		{
			name:   "ConfigError",
			err:    telemetry.NewController().Connect(telemetry.Config{BrokerURL: "http://x", Topics: []string{"a"}}),
			body:   `{"brokerUrl":"http://x","topics":["a"]}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "SessionActive",
			err:    telemetry.ErrSessionActive,
			body:   `{"brokerUrl":"ws://x","topics":["a"]}`,
			status: http.StatusConflict,
		},
		{
			name:   "StartFailed",
			err:    errors.New("boom"),
			body:   `{"brokerUrl":"ws://x","topics":["a"]}`,
			status: http.StatusBadGateway,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			s := newTestServer(t, &stubSession{connectErr: test.err})

			rec := do(s, http.MethodPost, "/api/connect", test.body)
			require.Equal(t, test.status, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotEmpty(t, body.Error)
		})
	}
}

func TestDisconnect(t *testing.T) {
	session := &stubSession{}
	s := newTestServer(t, session)

	require.Equal(t, http.StatusNoContent,
		do(s, http.MethodPost, "/api/disconnect", "").Code)
	require.Equal(t, http.StatusNoContent,
		do(s, http.MethodPost, "/api/disconnect", "").Code)
	require.Equal(t, 2, session.disconnects)
}

func TestPublish(t *testing.T) {
	session := &stubSession{}
	s := newTestServer(t, session)

	rec := do(s, http.MethodPost, "/api/publish",
		`{"topic":"cleanenv/cmd","message":"fan_on"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"cleanenv/cmd=fan_on"}, session.published)

	rec = do(s, http.MethodPost, "/api/publish", `{"message":"fan_on"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	session.publishErr = errors.New("connection lost")
	rec = do(s, http.MethodPost, "/api/publish",
		`{"topic":"cleanenv/cmd","message":"fan_off"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &stubSession{})

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/connect"},
		{http.MethodGet, "/api/disconnect"},
		{http.MethodGet, "/api/publish"},
		{http.MethodPost, "/api/snapshot"},
		{http.MethodDelete, "/api/history"},
		{http.MethodPost, "/metrics"},
	} {
		rec := do(s, route.method, route.path, "")
		require.Equal(t,
			http.StatusMethodNotAllowed,
			rec.Code,
			"%s %s", route.method, route.path,
		)
	}

	rec := do(s, http.MethodGet, "/api/unknown", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, &stubSession{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecovery(t *testing.T) {
	s := newTestServer(t, &stubSession{})
	s.handler = s.middleware(http.HandlerFunc(
		func(http.ResponseWriter, *http.Request) { panic("boom") },
	))

	rec := do(s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTopicList(t *testing.T) {
	var req connectRequest
	require.NoError(t, json.NewDecoder(bytes.NewBufferString(
		`{"topics":" a ,b,,"}`,
	)).Decode(&req))
	require.Equal(t, topicList{"a", "b"}, req.Topics)

	require.NoError(t, json.Unmarshal([]byte(`{"topics":["x","y"]}`), &req))
	require.Equal(t, topicList{"x", "y"}, req.Topics)

	require.Error(t, json.Unmarshal([]byte(`{"topics":42}`), &req))
}
