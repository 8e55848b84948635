// Package server implements the relay: a hub that fans newline-delimited text
// out to every connected client, and the per-connection actors that feed it.
//
// The implementation is organized into specialized files for configuration,
// the hub, clients, transports, line parsing, and the TCP and HTTP front ends
// to keep the codebase maintainable and testable as the project grows.
//
// Each accepted connection gets an inbound actor that reads lines and posts
// them to the hub, and an outbound actor that receives every message the hub
// routes and writes the ones whose scope includes the connection. The hub
// never evaluates scopes; it only keeps the registry and the global order.
package server
