// Package server exposes HTTP handlers: the WebSocket transport endpoint and
// the health check.
package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Handlers serves the HTTP side of the relay. WebSocket clients join the
// same hub as TCP clients.
type Handlers struct {
	hub      *Hub
	cfg      Config
	upgrader websocket.Upgrader
}

// NewHandlers creates the HTTP handlers for hub using cfg's origin allow-list
// and line limits.
func NewHandlers(hub *Hub, cfg Config) *Handlers {
	policy := newOriginPolicy(cfg.AllowedOrigins)
	return &Handlers{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.checkOrigin,
		},
	}
}

// WebSocket upgrades GET requests and attaches the connection to the hub.
// Every text message received on the socket is treated as one line.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	transport := NewWebSocketTransport(conn, r.RemoteAddr, h.cfg.MaxLineSize)
	if _, err := Attach(h.hub, transport, h.cfg); err != nil {
		slog.Warn("Rejecting WebSocket client", "remote_addr", r.RemoteAddr, "error", err)
	}
}

// Health reports that the relay is running and how many clients it serves.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if _, err := fmt.Fprintf(w, "relay is running, %d clients connected\n", h.hub.ClientCount()); err != nil {
		slog.Debug("Error writing health response", "error", err)
	}
}
