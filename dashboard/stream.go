// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package dashboard

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dev-BJ/CleanEnv-Dashboard/internal/wallclock"
	"github.com/dev-BJ/CleanEnv-Dashboard/telemetry"
	"github.com/gorilla/websocket"
)

type (
	// Fans snapshots out to the open streams.
	hub struct {
		mu      sync.Mutex
		clients map[*streamClient]struct{}
		closed  bool
	}

	// One WebSocket subscriber. Only the newest pending snapshot is kept, so a
	// slow reader skips intermediate states instead of stalling the session.
	streamClient struct {
		pending chan telemetry.Snapshot
		done    chan struct{}
		once    sync.Once
	}
)

func newHub() *hub {
	return &hub{clients: map[*streamClient]struct{}{}}
}

func (h *hub) add() (*streamClient, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false
	}
	c := &streamClient{
		pending: make(chan telemetry.Snapshot, 1),
		done:    make(chan struct{}),
	}
	h.clients[c] = struct{}{}
	return c, true
}

func (h *hub) remove(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

func (h *hub) broadcast(s telemetry.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		c.offer(s)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

// Never blocks.
func (c *streamClient) offer(s telemetry.Snapshot) {
	for {
		select {
		case c.pending <- s:
			return
		default:
		}
		select {
		case <-c.pending:
		default:
		}
	}
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.done) })
}

func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied.
		s.log.Warn(r.Context(), "websocket upgrade failed",
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	client, ok := s.hub.add()
	if !ok {
		return
	}
	defer s.hub.remove(client)

	ctx := r.Context()
	s.log.Debug(ctx, "stream opened", slog.String("remote_addr", r.RemoteAddr))

	// Control frames are only processed while reading.
	go func() {
		defer client.close()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	var last uint64
	write := func(snap telemetry.Snapshot) bool {
		// Notifications may arrive out of order; never go backwards.
		if last != 0 && snap.Revision <= last {
			return true
		}
		last = snap.Revision

		deadline := wallclock.Instance.Now().Add(s.options.WriteTimeout)
		if err := conn.SetWriteDeadline(deadline); err != nil {
			return false
		}
		return conn.WriteJSON(NewSnapshotView(snap)) == nil
	}

	if !write(s.session.Snapshot()) {
		return
	}
	for {
		select {
		case snap := <-client.pending:
			if !write(snap) {
				return
			}
		case <-client.done:
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				wallclock.Instance.Now().Add(time.Second),
			)
			return
		}
	}
}
