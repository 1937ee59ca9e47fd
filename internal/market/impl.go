package market

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shieldwatch/observer/internal/metrics"
	"github.com/shieldwatch/observer/internal/model"
)

// AvoidedEstimator converts logged risk events into an avoided-cents
// estimate. The exact formula is operator-facing and deliberately
// pluggable; the registry only runs it.
type AvoidedEstimator func([]model.RiskEvent) float64

// DefaultAvoidedEstimator sums, per event, the magnitude of the longest
// closed window that observed data. Events with no closed data contribute
// nothing.
func DefaultAvoidedEstimator(events []model.RiskEvent) float64 {
	var total float64
	for _, e := range events {
		for i := len(e.Moves) - 1; i >= 0; i-- {
			r := e.Moves[i].Result
			if r.Closed && r.HasData {
				total += r.Magnitude()
				break
			}
		}
	}
	return total
}

// Config holds Market Registry configuration.
type Config struct {
	HistoryHorizon       time.Duration   // price history retention per market
	EventCapacity        int             // rolling risk-event log size
	MoveWindows          []time.Duration // look-forward windows, ascending
	VolatilityPercentile float64         // delta percentile shown as volatility
	SweepInterval        time.Duration   // close-time expiry check cadence
	Estimator            AvoidedEstimator
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HistoryHorizon:       10 * time.Minute,
		EventCapacity:        DefaultEventCapacity,
		MoveWindows:          DefaultMoveWindows,
		VolatilityPercentile: 95,
		SweepInterval:        time.Second,
		Estimator:            DefaultAvoidedEstimator,
	}
}

// registryImpl implements the Registry interface.
type registryImpl struct {
	cfg       Config
	collector *metrics.Collector
	logger    *slog.Logger

	mu      sync.RWMutex
	markets map[string]*marketState
	events  *RiskEventLog

	changes chan Change

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a new Market Registry. Zero Config fields fall back
// to DefaultConfig values; nil collector and logger get defaults.
func NewRegistry(cfg Config, collector *metrics.Collector, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	def := DefaultConfig()
	if cfg.HistoryHorizon <= 0 {
		cfg.HistoryHorizon = def.HistoryHorizon
	}
	if cfg.EventCapacity <= 0 {
		cfg.EventCapacity = def.EventCapacity
	}
	if len(cfg.MoveWindows) == 0 {
		cfg.MoveWindows = def.MoveWindows
	}
	if cfg.VolatilityPercentile <= 0 {
		cfg.VolatilityPercentile = def.VolatilityPercentile
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.Estimator == nil {
		cfg.Estimator = def.Estimator
	}

	return &registryImpl{
		cfg:       cfg,
		collector: collector,
		logger:    logger,
		markets:   make(map[string]*marketState),
		events:    NewRiskEventLog(cfg.EventCapacity, cfg.MoveWindows),
		changes:   make(chan Change, ChangeBufferSize),
	}
}

// Start launches the expiry sweeper.
func (r *registryImpl) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.sweepLoop(ctx)
	}()

	r.logger.Info("market registry started",
		"history_horizon", r.cfg.HistoryHorizon,
		"event_capacity", r.cfg.EventCapacity,
	)
	return nil
}

// Stop halts the sweeper and finalizes every open move window.
func (r *registryImpl) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.mu.Lock()
	r.events.FinalizeAll()
	r.mu.Unlock()

	r.logger.Info("market registry stopped")
	return nil
}

// Upsert applies one normalized feed update.
func (r *registryImpl) Upsert(update model.MarketUpdate) error {
	if err := update.Validate(); err != nil {
		r.collector.IncMalformed()
		r.logger.Warn("dropping malformed update", "ticker", update.Ticker, "err", err)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.markets[update.Ticker]
	if !ok {
		st = newMarketState(update.Ticker, r.cfg.HistoryHorizon)
		r.markets[update.Ticker] = st
		r.notify(Change{Ticker: update.Ticker, Kind: ChangeAdded})
	}

	sample := model.PriceSample{Timestamp: update.Timestamp, Mid: update.Mid()}
	if !st.history.Record(sample) {
		// Replayed (ticker, timestamp) or a sample already outside the
		// horizon: applied at most once, so this whole update is a no-op.
		r.collector.IncDuplicates()
		return nil
	}
	r.collector.IncUpdates()

	st.applyQuote(update, sample.Mid)

	if update.Signal != "" {
		if update.Signal != st.signal {
			r.transitionLocked(st, update)
		} else if update.Reason != "" {
			st.reason = update.Reason
		}
	}

	// Feed the sample to every event still tracking this market. A just
	// opened event ignores its own trigger sample (baseline, not data).
	for _, h := range st.open {
		r.events.Feed(h, sample)
	}
	st.pruneOpen(r.events)

	if update.PollMs > 0 {
		r.collector.ObservePoll(update.PollMs)
	}
	if update.ComputeMs > 0 {
		r.collector.ObserveCompute(update.ComputeMs)
	}
	return nil
}

// transitionLocked applies a signal change. Entering NO_QUOTE from any
// other state is the sole event-generating edge.
func (r *registryImpl) transitionLocked(st *marketState, update model.MarketUpdate) {
	old := st.signal
	st.signal = update.Signal
	if update.Reason != "" {
		st.reason = update.Reason
	} else if update.Signal == model.SignalSafe {
		st.reason = ""
	}

	switch {
	case update.Signal == model.SignalNoQuote:
		h := r.events.Open(st.ticker, st.reason, update.Timestamp, update.Mid())
		st.open = append(st.open, h)
		r.collector.IncCancels()
		r.logger.Info("market entered NO_QUOTE",
			"ticker", st.ticker,
			"reason", string(st.reason),
			"t0_mid", update.Mid(),
		)
	case old == model.SignalNoQuote:
		for _, h := range st.open {
			r.events.CloseShield(h, update.Timestamp)
		}
		r.logger.Info("market left NO_QUOTE",
			"ticker", st.ticker,
			"signal", string(update.Signal),
		)
	}
}

// Track registers a ticker with empty state.
func (r *registryImpl) Track(ticker string) {
	if ticker == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.markets[ticker]; ok {
		return
	}
	r.markets[ticker] = newMarketState(ticker, r.cfg.HistoryHorizon)
	r.notify(Change{Ticker: ticker, Kind: ChangeAdded})
	r.logger.Info("tracking market", "ticker", ticker)
}

// Remove deletes a market. Its logged events stay in the log.
func (r *registryImpl) Remove(ticker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.markets[ticker]; !ok {
		return false
	}
	r.dropLocked(ticker, ChangeRemoved, time.Now().UnixMicro())
	r.logger.Info("market removed", "ticker", ticker)
	return true
}

// dropLocked finalizes a market's open events and deletes its state.
func (r *registryImpl) dropLocked(ticker string, kind ChangeKind, shieldTS int64) {
	st := r.markets[ticker]
	for _, h := range st.open {
		r.events.CloseShield(h, shieldTS)
		r.events.Finalize(h)
	}
	delete(r.markets, ticker)
	r.notify(Change{Ticker: ticker, Kind: kind})
}

// Snapshot returns all market views ordered by severity, then ticker.
func (r *registryImpl) Snapshot() []model.MarketView {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]model.MarketView, 0, len(r.markets))
	for _, st := range r.markets {
		views = append(views, st.view(r.cfg.VolatilityPercentile))
	}
	sort.Slice(views, func(i, j int) bool {
		si, sj := views[i].Signal.Severity(), views[j].Signal.Severity()
		if si != sj {
			return si > sj
		}
		return views[i].Ticker < views[j].Ticker
	})
	return views
}

// Events returns logged risk events, newest first.
func (r *registryImpl) Events() []model.RiskEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.events.Events(time.Now().UnixMicro())
}

// ClearEvents empties the event log.
func (r *registryImpl) ClearEvents() {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.events.Len()
	r.events.Clear()
	r.logger.Info("event log cleared", "discarded", n)
}

// AvoidedCents runs the configured estimator over the logged events.
func (r *registryImpl) AvoidedCents() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.Estimator(r.events.Events(time.Now().UnixMicro()))
}

// Len returns the number of tracked markets.
func (r *registryImpl) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.markets)
}

// Tickers returns tracked tickers sorted ascending.
func (r *registryImpl) Tickers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tickers := make([]string, 0, len(r.markets))
	for t := range r.markets {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// Changes returns the membership notification channel.
func (r *registryImpl) Changes() <-chan Change {
	return r.changes
}

// notify sends a change without blocking, dropping the oldest entry when
// the buffer is full.
func (r *registryImpl) notify(c Change) {
	select {
	case r.changes <- c:
	default:
		select {
		case <-r.changes:
			r.changes <- c
		default:
		}
	}
}
