package market

import (
	"context"

	"github.com/shieldwatch/observer/internal/model"
)

// ChangeBufferSize is the capacity of the registry change channel.
const ChangeBufferSize = 64

// Registry owns all monitored market state. Every mutation funnels through
// one lock; readers get copies, never live references.
type Registry interface {
	// Start launches the close-time expiry sweeper, returns immediately.
	Start(ctx context.Context) error

	// Stop halts the sweeper and finalizes all open move windows.
	Stop(ctx context.Context) error

	// Upsert applies one normalized feed update: creates the market if
	// unknown, records the price sample, applies any signal transition,
	// and feeds open move trackers. Duplicate (ticker, timestamp) pairs
	// are dropped silently; malformed updates are dropped with an error.
	Upsert(update model.MarketUpdate) error

	// Track registers a ticker before its first update arrives, so an
	// operator-added market renders immediately.
	Track(ticker string)

	// Remove deletes a market, finalizing its open move windows and
	// closing their shields. Logged risk events are retained. Returns
	// false for unknown tickers.
	Remove(ticker string) bool

	// Snapshot returns all market views, severity first then ticker.
	Snapshot() []model.MarketView

	// Events returns logged risk events, newest first.
	Events() []model.RiskEvent

	// ClearEvents empties the event log. Market signal state and
	// cumulative counters are unaffected.
	ClearEvents()

	// AvoidedCents runs the configured estimator over the logged events.
	AvoidedCents() float64

	// Len returns the number of tracked markets.
	Len() int

	// Tickers returns tracked tickers sorted ascending.
	Tickers() []string

	// Changes returns membership notifications for the feed layer, so it
	// can stop watching removed and expired tickers. Non-blocking: the
	// oldest entry is dropped when the buffer is full.
	Changes() <-chan Change
}

// ChangeKind distinguishes registry membership notifications.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeExpired ChangeKind = "expired"
)

// Change notifies the feed layer of a registry membership change.
type Change struct {
	Ticker string
	Kind   ChangeKind
}
