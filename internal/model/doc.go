// Package model defines shared data types used across the observer.
//
// Conventions:
//   - Prices: integer cents (0-100 = $0.00-$1.00); mid prices are float64 cents
//   - Timestamps: int64 microseconds since Unix epoch
//   - IDs: string for tickers, uuid.UUID for risk events
package model
