// Package server accepts line-protocol clients on a TCP listener and hands
// them to the hub.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"
)

const maxAcceptBackoff = time.Second

// Server runs the accept loop for the line protocol.
type Server struct {
	cfg Config
	hub *Hub
}

// NewServer creates a Server that attaches accepted connections to hub.
func NewServer(cfg Config, hub *Hub) *Server {
	return &Server{cfg: cfg, hub: hub}
}

// ListenAndServe binds cfg.TCPAddr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.TCPAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.TCPAddr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled or the
// listener is closed, then closes the listener and returns nil. Accept errors
// are logged and retried with backoff.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		_ = listener.Close()
	})
	defer stop()
	defer listener.Close()

	slog.Info("TCP server listening", "addr", listener.Addr().String())

	var backoff time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			backoff = nextBackoff(backoff)
			slog.Warn("Error accepting connection", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		backoff = 0
		s.accept(conn)
	}
}

func (s *Server) accept(conn net.Conn) {
	slog.Debug("New connection", "remote_addr", conn.RemoteAddr().String())

	transport, err := NewTCPTransport(conn, s.cfg.MaxLineSize)
	if err != nil {
		slog.Warn("Error configuring connection", "remote_addr", conn.RemoteAddr().String(), "error", err)
		_ = conn.Close()
		return
	}

	if _, err := Attach(s.hub, transport, s.cfg); err != nil {
		slog.Warn("Rejecting TCP client", "remote_addr", conn.RemoteAddr().String(), "error", err)
	}
}

func nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return 5 * time.Millisecond
	}
	current *= 2
	if current > maxAcceptBackoff {
		current = maxAcceptBackoff
	}
	return current
}
