// Package server coordinates client registration, message routing, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/metrics"
	"github.com/jonboulle/clockwork"
)

// welcomeText is sent to every new connection, restricted to that connection,
// so the client learns its own ID from the frame's only set.
const welcomeText = "welcome"

// Hub is the single routing point. It owns the registry of live clients and
// forwards every broadcast message, unfiltered, to each client's delivery
// channel in the order the messages were received. All registry access happens
// on the goroutine running Run; other goroutines talk to it over channels.
type Hub struct {
	clients    map[ConnID]*Client
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	count      chan chan int
	clock      clockwork.Clock
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a hub whose inbound queue holds cfg.InboundBufferSize
// messages. The returned Hub does nothing until Run is started.
func NewHub(cfg Config, clock clockwork.Clock) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	size := cfg.InboundBufferSize
	if size <= 0 {
		size = defaultInboundBufferSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[ConnID]*Client),
		broadcast:  make(chan Message, size),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		count:      make(chan chan int),
		clock:      clock,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Register adds the client to the registry and starts its read and write
// actors. It fails only once the hub has shut down.
func (h *Hub) Register(client *Client) error {
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// Unregister removes the client and closes its delivery channel. Unknown or
// already removed clients are ignored.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Broadcast queues msg for routing. It blocks while the inbound queue is full
// and returns ErrHubClosed once the hub has shut down.
func (h *Hub) Broadcast(msg Message) error {
	// The inbound queue is buffered, so a free slot could win the select below.
	if h.ctx.Err() != nil {
		return ErrHubClosed
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// ClientCount returns the number of registered clients, or zero after
// shutdown.
func (h *Hub) ClientCount() int {
	reply := make(chan int, 1)
	select {
	case h.count <- reply:
	case <-h.ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-h.ctx.Done():
		return 0
	}
}

// Run starts the hub's event loop. It returns after Shutdown has been called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			if h.remove(client) {
				slog.Info("Client unregistered",
					"conn_id", client.id,
					"remote_addr", client.addr,
					"total_clients", len(h.clients),
				)
			}

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		slog.Warn("Received nil client registration; skipping")
		return
	}

	if previous, ok := h.clients[client.id]; ok {
		slog.Warn("Connection ID reused; dropping previous client",
			"conn_id", client.id,
			"previous_addr", previous.addr,
			"remote_addr", client.addr,
		)
		h.remove(previous)
		previous.closeTransport()
	}

	h.clients[client.id] = client
	client.send <- Message{
		Text:   welcomeText,
		Sender: ServerID,
		Scope:  ScopeOnly,
		Only:   NewIDSet(client.id),
	}
	metrics.ConnectedClients.Inc()
	slog.Info("Client registered",
		"conn_id", client.id,
		"remote_addr", client.addr,
		"transport", client.transport.Kind(),
		"total_clients", len(h.clients),
	)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// handleBroadcast hands msg to every registered client without blocking. A
// client whose buffer is full is evicted and disconnected; the others are
// unaffected.
func (h *Hub) handleBroadcast(msg Message) {
	metrics.InboundQueueDepth.Set(float64(len(h.broadcast)))

	var slow []*Client
	for _, client := range h.clients {
		select {
		case client.send <- msg:
		default:
			slow = append(slow, client)
		}
	}
	metrics.MessagesRoutedTotal.Inc()

	for _, client := range slow {
		slog.Warn("Evicting slow client",
			"conn_id", client.id,
			"remote_addr", client.addr,
			"buffer_size", cap(client.send),
		)
		metrics.SlowClientsEvicted.Inc()
		h.remove(client)
		client.closeTransport()
	}
}

// remove deletes the client from the registry and closes its delivery
// channel. It reports false if this exact client was not registered.
func (h *Hub) remove(client *Client) bool {
	if client == nil {
		return false
	}
	current, ok := h.clients[client.id]
	if !ok || current != client {
		return false
	}
	delete(h.clients, client.id)
	close(client.send)
	metrics.ConnectedClients.Dec()
	return true
}

// shutdownClients closes every registered client's channel and transport.
func (h *Hub) shutdownClients() {
	slog.Info("Shutting down all client connections...")

	closed := 0
	for _, client := range h.clients {
		h.remove(client)
		client.closeTransport()
		closed++
	}

	slog.Info("Closed client connections", "count", closed)
}

// Shutdown stops the hub and waits for all client actors to finish, or until
// the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	timer := h.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		slog.Info("Hub shutdown completed successfully")
		return nil
	case <-timer.Chan():
		slog.Warn("Hub shutdown timeout reached, some goroutines may still be running", "timeout", timeout)
		return context.DeadlineExceeded
	}
}
