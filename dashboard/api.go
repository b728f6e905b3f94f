// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dev-BJ/CleanEnv-Dashboard/telemetry"
)

type (
	connectRequest struct {
		BrokerURL         string    `json:"brokerUrl"`
		Topics            topicList `json:"topics"`
		Username          string    `json:"username"`
		Password          string    `json:"password"`
		ClientID          string    `json:"clientId"`
		ProtocolVersion   byte      `json:"protocolVersion"`
		PersistentSession bool      `json:"persistentSession"`
	}

	publishRequest struct {
		Topic   string `json:"topic"`
		Message string `json:"message"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}

	// Accepts either a JSON array or a comma-separated string.
	topicList []string
)

const maxBodyBytes = 64 << 10

func (t *topicList) UnmarshalJSON(data []byte) error {
	var list string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = telemetry.ParseTopics(list)
		return nil
	}
	return json.Unmarshal(data, (*[]string)(t))
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) snapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewSnapshotView(s.session.Snapshot()))
}

func (s *Server) history(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NewSnapshotView(s.session.Snapshot()).History)
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !s.decode(w, r, &req) {
		return
	}

	cfg := telemetry.Config{
		BrokerURL: req.BrokerURL,
		Topics:    req.Topics,
		Options:   s.options.ClientDefaults,
	}
	o := &cfg.Options
	if req.Username != "" {
		o.Username = req.Username
		o.Password = req.Password
	}
	if req.ClientID != "" {
		o.ClientID = req.ClientID
	}
	if req.ProtocolVersion != 0 {
		o.ProtocolVersion = req.ProtocolVersion
	}
	if req.PersistentSession {
		o.PersistentSession = true
	}

	err := s.session.Connect(cfg)

	var cfgErr *telemetry.ConfigError
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, NewSnapshotView(s.session.Snapshot()))
	case errors.As(err, &cfgErr):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, telemetry.ErrSessionActive):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusBadGateway, err)
	}
}

func (s *Server) disconnect(w http.ResponseWriter, _ *http.Request) {
	s.session.Disconnect()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, errors.New("topic is required"))
		return
	}

	if err := s.session.Publish(r.Context(), req.Topic, req.Message); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	d := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := d.Decode(v); err != nil {
		s.log.Warn(r.Context(), "invalid request body")
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
