package market

import (
	"time"

	"github.com/shieldwatch/observer/internal/model"
)

// marketState is the per-market aggregate. Every field is guarded by the
// registry lock; methods must only be called while holding it.
type marketState struct {
	ticker   string
	yesBid   int
	yesAsk   int
	mid      float64
	signal   model.Signal
	reason   model.TriggerReason
	closesAt int64
	lastSeen int64 // high-water update timestamp, never rewound

	history *PriceHistoryBuffer
	open    []*EventHandle // events still move-tracking this market
}

func newMarketState(ticker string, horizon time.Duration) *marketState {
	return &marketState{
		ticker:  ticker,
		signal:  model.SignalSafe,
		history: NewPriceHistoryBuffer(horizon),
	}
}

// applyQuote records the already-deduplicated sample's quote fields.
func (m *marketState) applyQuote(u model.MarketUpdate, mid float64) {
	m.yesBid = u.YesBid
	m.yesAsk = u.YesAsk
	m.mid = mid
	if u.ClosesAt > 0 {
		m.closesAt = u.ClosesAt
	}
	if u.Timestamp > m.lastSeen {
		m.lastSeen = u.Timestamp
	}
}

// pruneOpen drops handles that finished tracking or became inert.
func (m *marketState) pruneOpen(log *RiskEventLog) {
	kept := m.open[:0]
	for _, h := range m.open {
		if !log.Done(h) {
			kept = append(kept, h)
		}
	}
	m.open = kept
}

// view renders a read-only snapshot row. Volatility is the configured
// percentile of absolute mid deltas, omitted while the history is too thin.
func (m *marketState) view(pct float64) model.MarketView {
	v := model.MarketView{
		Ticker:     m.ticker,
		YesBid:     m.yesBid,
		YesAsk:     m.yesAsk,
		Mid:        m.mid,
		Signal:     m.signal,
		Reason:     m.reason,
		ClosesAt:   m.closesAt,
		LastUpdate: m.lastSeen,
		OpenEvents: len(m.open),
	}
	if vol, err := m.history.Percentile(pct); err == nil {
		v.Volatility = vol
		v.VolatilityOK = true
	}
	return v
}
