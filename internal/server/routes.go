// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures and returns an HTTP ServeMux with the health check,
// the WebSocket endpoint and the Prometheus metrics endpoint.
func SetupRoutes(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.Health)
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/ws", h.WebSocket)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}
