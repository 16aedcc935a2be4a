// Package server is the HTTP gateway in front of the status engine.
//
// It exposes the engine's operations as a small JSON REST API plus
// websocket streams for live updates. Authorization is deployment
// topology, not code: the same server type is instantiated twice, once
// read-only on a public address and once read-write on a private one,
// and only the private instance mounts the mutating routes and the
// Prometheus endpoint.
package server
