// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/log"
	"github.com/dev-BJ/CleanEnv-Dashboard/telemetry"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type (
	// Session is the telemetry session surface served over HTTP.
	// *telemetry.Controller implements it.
	Session interface {
		Connect(telemetry.Config) error
		Disconnect()
		Publish(ctx context.Context, topic, message string) error
		Snapshot() telemetry.Snapshot
		RegisterStateHandler(func(telemetry.Snapshot)) func()
	}

	// Server exposes a session to the web dashboard: a JSON API, a WebSocket
	// stream of snapshots and Prometheus metrics.
	Server struct {
		session  Session
		options  ServerOptions
		log      log.Logger
		handler  http.Handler
		hub      *hub
		upgrader websocket.Upgrader
		release  func()
	}

	// Adapts panics caught by the recovery middleware to slog.
	recoveryLogger struct{ log *log.Logger }
)

var _ Session = (*telemetry.Controller)(nil)

// NewServer creates a server for the session. Close must be called to stop
// streaming.
func NewServer(session Session, opts ...ServerOption) *Server {
	s := &Server{session: session}

	s.options.Apply(opts)
	if len(s.options.AllowedOrigins) == 0 {
		s.options.AllowedOrigins = []string{"*"}
	}
	if s.options.WriteTimeout <= 0 {
		s.options.WriteTimeout = defaultWriteTimeout
	}
	s.log = log.Wrap(s.options.Logger)

	s.hub = newHub()
	s.release = session.RegisterStateHandler(s.hub.broadcast)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(newCollector(session))

	r := mux.NewRouter()
	// Full paths on the root router, so a wrong method gets 405.
	r.HandleFunc("/api/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/api/snapshot", s.snapshot).Methods(http.MethodGet)
	r.HandleFunc("/api/history", s.history).Methods(http.MethodGet)
	r.HandleFunc("/api/connect", s.connect).Methods(http.MethodPost)
	r.HandleFunc("/api/disconnect", s.disconnect).Methods(http.MethodPost)
	r.HandleFunc("/api/publish", s.publish).Methods(http.MethodPost)
	r.HandleFunc("/api/stream", s.stream).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{},
	)).Methods(http.MethodGet)

	s.handler = s.middleware(r)

	return s
}

// Access logging, panic recovery and CORS, outermost first.
func (s *Server) middleware(h http.Handler) http.Handler {
	h = handlers.CORS(
		handlers.AllowedOrigins(s.options.AllowedOrigins),
		handlers.AllowedMethods([]string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{&s.log}),
	)(h)
	return handlers.CustomLoggingHandler(io.Discard, h, s.logRequest)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Close stops following the session and ends every open stream.
func (s *Server) Close() error {
	s.release()
	s.hub.close()
	return nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" ||
		slices.Contains(s.options.AllowedOrigins, "*") ||
		slices.Contains(s.options.AllowedOrigins, origin)
}

// Access log in place of the combined log format.
func (s *Server) logRequest(_ io.Writer, p handlers.LogFormatterParams) {
	s.log.Debug(p.Request.Context(), "http request",
		slog.String("method", p.Request.Method),
		slog.String("path", p.URL.Path),
		slog.Int("status", p.StatusCode),
		slog.Int("size", p.Size),
		slog.String("remote_addr", p.Request.RemoteAddr),
	)
}

func (l recoveryLogger) Println(v ...any) {
	l.log.Log(context.Background(), slog.LevelError, fmt.Sprint(v...))
}
