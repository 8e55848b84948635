// Package server manages individual client connections, running one inbound
// and one outbound actor per connection.
package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/metrics"
	"github.com/google/uuid"
)

// Client is one registered connection. The inbound actor (readPump) owns the
// transport's read side and the outbound actor (writePump) owns its write
// side and the send channel's receiving end.
type Client struct {
	id                ConnID
	addr              string
	transport         Transport
	hub               *Hub
	send              chan Message
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	broadcastSentinel bool
	closeOnce         sync.Once
}

// NewClient creates a Client for transport with the given identity. The
// delivery channel is bounded by cfg.SendBufferSize.
func NewClient(transport Transport, hub *Hub, id ConnID, cfg Config) *Client {
	size := cfg.SendBufferSize
	if size <= 0 {
		size = defaultSendBufferSize
	}
	return &Client{
		id:                id,
		addr:              transport.RemoteAddr(),
		transport:         transport,
		hub:               hub,
		send:              make(chan Message, size),
		writeTimeout:      cfg.WriteTimeout,
		idleTimeout:       cfg.IdleTimeout,
		broadcastSentinel: cfg.BroadcastSentinel,
	}
}

// ID returns the connection's identity.
func (c *Client) ID() ConnID {
	return c.id
}

// Attach creates a client for an accepted transport and registers it with the
// hub. The transport is closed if registration fails.
func Attach(hub *Hub, transport Transport, cfg Config) (*Client, error) {
	metrics.ConnectionsTotal.WithLabelValues(transport.Kind()).Inc()
	client := NewClient(transport, hub, newConnID(cfg.ConnIDMode, transport), cfg)
	if err := hub.Register(client); err != nil {
		client.closeTransport()
		return nil, fmt.Errorf("register %s: %w", client.addr, err)
	}
	return client, nil
}

func newConnID(mode string, transport Transport) ConnID {
	if mode == ConnIDModeEndpoint {
		return ConnID(transport.RemoteAddr())
	}
	return ConnID(uuid.NewString())
}

// readPump reads lines until EOF, an error, or the sentinel, posting each
// line to the hub. On exit it unregisters the client, which closes the send
// channel and lets writePump drain and close the transport.
func (c *Client) readPump() {
	defer c.hub.Unregister(c)

	for {
		if !c.extendReadDeadline() {
			return
		}

		line, err := c.transport.ReadLine()
		if err != nil {
			c.handleReadError(err)
			return
		}

		sentinel := line == Sentinel
		if !sentinel || c.broadcastSentinel {
			if err := c.hub.Broadcast(ParseLine(c.id, line)); err != nil {
				slog.Debug("Dropping message; hub unavailable", "conn_id", c.id, "error", err)
				return
			}
		}
		if sentinel {
			slog.Info("Client requested close", "conn_id", c.id, "remote_addr", c.addr)
			return
		}
	}
}

// extendReadDeadline applies the idle timeout, if one is configured.
func (c *Client) extendReadDeadline() bool {
	if c.idleTimeout <= 0 {
		return true
	}
	if err := c.transport.SetReadDeadline(time.Now().Add(c.idleTimeout)); err != nil {
		slog.Warn("Error setting read deadline", "conn_id", c.id, "error", err)
		return false
	}
	return true
}

// handleReadError logs why the read loop is ending.
func (c *Client) handleReadError(err error) {
	switch {
	case errors.Is(err, ErrLineTooLong):
		slog.Warn("Line exceeded maximum size", "conn_id", c.id, "remote_addr", c.addr)
	case errors.Is(err, os.ErrDeadlineExceeded), isTimeout(err):
		slog.Info("Client idle timeout", "conn_id", c.id, "remote_addr", c.addr, "idle_timeout", c.idleTimeout)
	case isExpectedCloseError(err):
		slog.Debug("Client connection closed", "conn_id", c.id, "remote_addr", c.addr, "error", err)
	default:
		slog.Warn("Read error", "conn_id", c.id, "remote_addr", c.addr, "error", err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// writePump applies scope filtering to every message the hub delivers and
// writes the ones addressed to this client. It stops on its own sentinel, a
// write failure, or when the hub closes the send channel.
func (c *Client) writePump() {
	defer c.closeTransport()

	for msg := range c.send {
		if msg.IsSentinelFrom(c.id) {
			slog.Debug("Outbound actor stopping on sentinel", "conn_id", c.id)
			return
		}
		if !msg.DeliverableTo(c.id) {
			metrics.DeliveriesTotal.WithLabelValues("filtered").Inc()
			continue
		}
		if !c.writeMessage(msg) {
			metrics.WriteFailuresTotal.Inc()
			return
		}
		metrics.DeliveriesTotal.WithLabelValues("written").Inc()
	}
}

// writeMessage renders and writes one frame and returns false if the
// connection should be closed.
func (c *Client) writeMessage(msg Message) bool {
	data, err := msg.Frame()
	if err != nil {
		slog.Error("Error rendering frame", "conn_id", c.id, "error", err)
		return true
	}

	if c.writeTimeout > 0 {
		if err := c.transport.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			slog.Warn("Error setting write deadline", "conn_id", c.id, "error", err)
			return false
		}
	}

	if err := c.transport.WriteFrame(data); err != nil {
		if isExpectedCloseError(err) {
			slog.Debug("Write to closed connection", "conn_id", c.id, "error", err)
		} else {
			slog.Warn("Error writing message", "conn_id", c.id, "remote_addr", c.addr, "error", err)
		}
		return false
	}
	return true
}

// closeTransport closes the underlying connection once.
func (c *Client) closeTransport() {
	c.closeOnce.Do(func() {
		if err := c.transport.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("Error closing connection", "conn_id", c.id, "error", err)
		}
	})
}
