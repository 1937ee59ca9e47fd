// Package metrics implements the Metrics Panel counters.
//
// The collector tracks:
//   - Update/duplicate/malformed/dropped counts from the feed path
//   - NO_QUOTE transition count (cancels) and expired-market count
//   - Reconnect attempts
//   - Rolling latency windows (poll, compute, push round-trip) with
//     nearest-rank quantiles
//
// All state is in-memory; the dashboard reads point-in-time snapshots.
package metrics
