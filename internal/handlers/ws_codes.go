// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the relay and signaling handlers.
const (
	ServerShutdownClose = 3000 // Server is shutting down; reconnect later and rejoin.
	SlowConsumerClose   = 3001 // Outbound queue overflowed; the client stopped reading.
)
