// Package metrics defines the Prometheus collectors exported by the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub Metrics
var (
	// ConnectedClients tracks clients currently registered with the hub
	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connected_clients",
			Help: "Number of clients currently registered with the hub",
		},
	)

	// ConnectionsTotal tracks accepted connections by transport
	ConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_connections_total",
			Help: "Total accepted connections by transport (tcp/websocket)",
		},
		[]string{"transport"},
	)

	// MessagesRoutedTotal tracks messages fanned out by the hub
	MessagesRoutedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_routed_total",
			Help: "Total messages routed by the hub",
		},
	)

	// InboundQueueDepth tracks the hub's pending inbound messages
	InboundQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_inbound_queue_depth",
			Help: "Messages waiting in the hub inbound queue",
		},
	)

	// SlowClientsEvicted tracks clients dropped because their buffer was full
	SlowClientsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_slow_clients_evicted_total",
			Help: "Total clients evicted because their delivery buffer was full",
		},
	)
)

// Client Metrics
var (
	// DeliveriesTotal tracks outbound decisions by outcome (written/filtered)
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Messages seen by outbound actors by outcome (written/filtered)",
		},
		[]string{"outcome"},
	)

	// WriteFailuresTotal tracks outbound actors stopped by a write error
	WriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_write_failures_total",
			Help: "Total outbound writes that failed and closed the connection",
		},
	)
)
