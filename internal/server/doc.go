// Package server implements the Parlor connection and room coordinator:
// authenticated WebSocket connections, room membership, and scoped event
// broadcast.
//
// The implementation is organized into specialized files for configuration,
// the registry, the room table, the hub, clients, sessions, routing, and
// HTTP handlers to keep the codebase maintainable and testable as the
// project grows.
package server
