// Package market implements the monitoring engine around the Market Registry.
//
// The registry:
//   - Owns all per-market state behind one lock (the serialization point)
//   - Applies normalized feed updates exactly once per (ticker, timestamp)
//   - Opens a risk event on each transition into NO_QUOTE (edge-triggered)
//   - Removes markets at their close time with zero grace
//
// Supporting types: PriceHistoryBuffer (horizon-bounded mid-price series
// with percentile volatility), MoveTracker (worst adverse move per
// look-forward window), RiskEventLog (capacity-bounded FIFO log).
package market
