package market

import (
	"context"
	"time"
)

// sweepLoop periodically removes markets whose close time has passed.
func (r *registryImpl) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.expireDue(time.Now().UnixMicro())
		}
	}
}

// expireDue removes every market with a close time at or before now. Zero
// grace: removal happens on the first sweep past closes_at, regardless of
// when the last update arrived. Shields close at the market's close time.
func (r *registryImpl) expireDue(now int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []string
	for ticker, st := range r.markets {
		if st.closesAt > 0 && now >= st.closesAt {
			due = append(due, ticker)
		}
	}

	for _, ticker := range due {
		closesAt := r.markets[ticker].closesAt
		r.dropLocked(ticker, ChangeExpired, closesAt)
		r.collector.IncExpired()
		r.logger.Info("market expired at close", "ticker", ticker)
	}
	return len(due)
}
