// Package feed implements the Connection Manager component.
//
// It delivers normalized market updates from the guard process over two
// transports:
//   - a persistent WebSocket push connection (signals, quotes, heartbeats)
//   - a periodic REST poll of book snapshots for every watched ticker
//
// The push connection runs an explicit state machine (Connecting, Connected,
// Stale, Reconnecting) with heartbeat staleness detection and exponential
// backoff reconnects that retry at the cap forever. A synthetic demo source
// implements the same Source interface for offline use.
package feed
