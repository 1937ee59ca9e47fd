package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrMalformedUpdate is returned by MarketUpdate.Validate for updates that
// cannot be applied (missing ticker, bad timestamp, out-of-range prices).
var ErrMalformedUpdate = errors.New("malformed market update")

// -----------------------------------------------------------------------------
// Signals
// -----------------------------------------------------------------------------

// Signal is the upstream-classified stand-down status of a market.
// Classification happens remotely; the observer only tracks transitions.
type Signal string

const (
	SignalSafe    Signal = "SAFE"
	SignalCaution Signal = "CAUTION"
	SignalNoQuote Signal = "NO_QUOTE"
)

// Valid reports whether s is one of the three known signal values.
func (s Signal) Valid() bool {
	switch s {
	case SignalSafe, SignalCaution, SignalNoQuote:
		return true
	}
	return false
}

// Severity ranks signals for display ordering: NO_QUOTE > CAUTION > SAFE.
// Unknown signals rank below SAFE.
func (s Signal) Severity() int {
	switch s {
	case SignalNoQuote:
		return 2
	case SignalCaution:
		return 1
	case SignalSafe:
		return 0
	}
	return -1
}

// TriggerReason is the upstream label for why a signal fired.
type TriggerReason string

const (
	ReasonSpreadBlowout  TriggerReason = "spread_blowout"
	ReasonTimeToEvent    TriggerReason = "time_to_event"
	ReasonHighVolatility TriggerReason = "high_volatility"
	ReasonTTCSpread      TriggerReason = "ttc_spread"
	ReasonVolSpread      TriggerReason = "vol_spread"
	ReasonNoBook         TriggerReason = "no_book"
	ReasonOneSided       TriggerReason = "one_sided"
	ReasonMarketClosed   TriggerReason = "market_closed"
	ReasonMLRisk         TriggerReason = "ml_risk"
)

var reasonLabels = map[TriggerReason]string{
	ReasonSpreadBlowout:  "SPREAD",
	ReasonTimeToEvent:    "TTC",
	ReasonHighVolatility: "VOL",
	ReasonTTCSpread:      "TTC+SPR",
	ReasonVolSpread:      "VOL+SPR",
	ReasonNoBook:         "NO BOOK",
	ReasonOneSided:       "1-SIDED",
	ReasonMarketClosed:   "CLOSED",
	ReasonMLRisk:         "ML",
}

// Label returns a short display label for the reason. Unknown reasons are
// passed through uppercased so new upstream labels still render.
func (r TriggerReason) Label() string {
	if r == "" {
		return ""
	}
	if l, ok := reasonLabels[r]; ok {
		return l
	}
	return strings.ToUpper(strings.ReplaceAll(string(r), "_", " "))
}

// -----------------------------------------------------------------------------
// Feed Types
// -----------------------------------------------------------------------------

// MarketUpdate is one normalized record from the data feed: a quote, an
// optional signal classification, and upstream stage latencies.
type MarketUpdate struct {
	Ticker    string        // Market ticker (primary key)
	YesBid    int           // Best YES bid (cents, 0-100)
	YesAsk    int           // Best YES ask (cents, 0-100)
	Timestamp int64         // Upstream timestamp (µs since epoch)
	Signal    Signal        // Empty on pure price ticks
	Reason    TriggerReason // Set when Signal is CAUTION or NO_QUOTE
	ClosesAt  int64         // Market close time (µs since epoch), 0 if unknown
	PollMs    float64       // Upstream poll stage latency, 0 if not reported
	ComputeMs float64       // Upstream compute stage latency, 0 if not reported
}

// Mid returns the mid price in cents.
func (u MarketUpdate) Mid() float64 {
	return float64(u.YesBid+u.YesAsk) / 2
}

// Validate checks the fields required to apply the update. A present but
// unknown Signal is rejected; an absent Signal is a plain price tick.
func (u MarketUpdate) Validate() error {
	if u.Ticker == "" {
		return fmt.Errorf("%w: missing ticker", ErrMalformedUpdate)
	}
	if u.Timestamp <= 0 {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedUpdate)
	}
	if u.YesBid < 0 || u.YesBid > 100 {
		return fmt.Errorf("%w: yes_bid %d out of range", ErrMalformedUpdate, u.YesBid)
	}
	if u.YesAsk < 0 || u.YesAsk > 100 {
		return fmt.Errorf("%w: yes_ask %d out of range", ErrMalformedUpdate, u.YesAsk)
	}
	if u.Signal != "" && !u.Signal.Valid() {
		return fmt.Errorf("%w: unknown signal %q", ErrMalformedUpdate, u.Signal)
	}
	return nil
}

// PriceSample is one mid-price observation. Immutable once recorded.
type PriceSample struct {
	Timestamp int64   // Upstream timestamp (µs since epoch)
	Mid       float64 // Mid price (cents)
}

// -----------------------------------------------------------------------------
// Risk Event Types
// -----------------------------------------------------------------------------

// WindowResult is the worst adverse move observed inside one look-forward
// window, split by direction. YesAdverse tracks mid falling below the
// trigger baseline, NoAdverse tracks mid rising above it.
type WindowResult struct {
	Closed     bool    // Window no longer accepts samples
	HasData    bool    // At least one sample landed in the window
	YesAdverse float64 // Worst downward move (cents)
	NoAdverse  float64 // Worst upward move (cents)
}

// Magnitude returns the headline move: the larger of the two directions.
func (w WindowResult) Magnitude() float64 {
	if w.YesAdverse >= w.NoAdverse {
		return w.YesAdverse
	}
	return w.NoAdverse
}

// WindowMove pairs a window duration with its result.
type WindowMove struct {
	Window time.Duration
	Result WindowResult
}

// RiskEvent is a read-only view of one logged NO_QUOTE trigger. Move results
// fill in as their windows close; ShieldedMicros grows while ShieldOpen.
type RiskEvent struct {
	ID             uuid.UUID     // Event ID
	Ticker         string        // Market ticker
	Reason         TriggerReason // Upstream trigger reason
	TriggerTS      int64         // Trigger timestamp (µs since epoch)
	T0Mid          float64       // Mid at trigger (cents), move baseline
	Moves          []WindowMove  // One entry per configured window, ascending
	ShieldedMicros int64         // Time spent in NO_QUOTE (µs)
	ShieldOpen     bool          // Market still in NO_QUOTE
}

// Move returns the result for the given window duration, if configured.
func (e RiskEvent) Move(window time.Duration) (WindowResult, bool) {
	for _, m := range e.Moves {
		if m.Window == window {
			return m.Result, true
		}
	}
	return WindowResult{}, false
}

// -----------------------------------------------------------------------------
// Snapshot Types
// -----------------------------------------------------------------------------

// MarketView is a read-only row of registry state for the renderer.
type MarketView struct {
	Ticker       string        // Market ticker
	YesBid       int           // Best YES bid (cents)
	YesAsk       int           // Best YES ask (cents)
	Mid          float64       // Mid price (cents)
	Signal       Signal        // Current signal status
	Reason       TriggerReason // Reason behind the current signal, if any
	ClosesAt     int64         // Market close time (µs since epoch), 0 if unknown
	LastUpdate   int64         // High-water update timestamp (µs since epoch)
	Volatility   float64       // Percentile of abs mid deltas (cents)
	VolatilityOK bool          // False while the history has too few samples
	OpenEvents   int           // Risk events still move-tracking this market
}
