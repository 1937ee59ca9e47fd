package feed

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/shieldwatch/observer/internal/model"
)

// DemoConfig configures the synthetic feed.
type DemoConfig struct {
	Interval   time.Duration // update cadence per market
	Markets    []string      // initial tickers, empty = built-in set
	BufferSize int           // update channel buffer size
}

// DefaultDemoConfig returns sensible defaults.
func DefaultDemoConfig() DemoConfig {
	return DemoConfig{
		Interval: 500 * time.Millisecond,
		Markets: []string{
			"INXD-25AUG29-B6325",
			"KXBTC-25AUG29-T118000",
			"KXETH-25AUG29-T4600",
			"KXFED-25SEP-T425",
		},
		BufferSize: 256,
	}
}

// demoReasons are cycled through synthetic trigger episodes.
var demoReasons = []model.TriggerReason{
	model.ReasonSpreadBlowout,
	model.ReasonTimeToEvent,
	model.ReasonHighVolatility,
	model.ReasonTTCSpread,
	model.ReasonVolSpread,
	model.ReasonNoBook,
	model.ReasonOneSided,
}

// demoMarket is one synthetic market's walk state.
type demoMarket struct {
	ticker   string
	mid      float64
	signal   model.Signal
	reason   model.TriggerReason
	closesAt int64
	flipAt   time.Time // next scheduled signal roll
}

// demoSource implements Source with a random-walk generator. It needs no
// network and reports itself as permanently connected.
type demoSource struct {
	cfg    DemoConfig
	logger *slog.Logger
	out    chan model.MarketUpdate

	mu      sync.Mutex
	markets map[string]*demoMarket

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDemoSource creates a synthetic feed seeded with cfg.Markets.
func NewDemoSource(cfg DemoConfig, logger *slog.Logger) Source {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultDemoConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if len(cfg.Markets) == 0 {
		cfg.Markets = def.Markets
	}

	d := &demoSource{
		cfg:     cfg,
		logger:  logger,
		out:     make(chan model.MarketUpdate, cfg.BufferSize),
		markets: make(map[string]*demoMarket),
	}
	for _, ticker := range cfg.Markets {
		d.markets[ticker] = newDemoMarket(ticker, time.Now())
	}
	return d
}

func newDemoMarket(ticker string, now time.Time) *demoMarket {
	return &demoMarket{
		ticker:   ticker,
		mid:      30 + rand.Float64()*40,
		signal:   model.SignalSafe,
		closesAt: now.Add(10*time.Minute + time.Duration(rand.N(30))*time.Minute).UnixMicro(),
		flipAt:   now.Add(time.Duration(3+rand.N(12)) * time.Second),
	}
}

// Start launches the generator loop.
func (d *demoSource) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()

	d.logger.Info("demo feed started",
		"markets", len(d.cfg.Markets),
		"interval", d.cfg.Interval,
	)
	return nil
}

// Stop halts the generator.
func (d *demoSource) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.logger.Info("demo feed stopped")
	return nil
}

// Updates returns the update channel.
func (d *demoSource) Updates() <-chan model.MarketUpdate {
	return d.out
}

// State reports the demo feed as always connected.
func (d *demoSource) State() ConnState {
	return StateConnected
}

// Watch adds a fresh synthetic market.
func (d *demoSource) Watch(ticker string) {
	if ticker == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.markets[ticker]; ok {
		return
	}
	d.markets[ticker] = newDemoMarket(ticker, time.Now())
}

// Unwatch stops generating for a ticker.
func (d *demoSource) Unwatch(ticker string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.markets, ticker)
}

// Watched returns the generated tickers sorted ascending.
func (d *demoSource) Watched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	tickers := make([]string, 0, len(d.markets))
	for t := range d.markets {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

func (d *demoSource) run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			d.step(now)
		}
	}
}

// step advances every market one tick and emits its update.
func (d *demoSource) step(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, dm := range d.markets {
		if now.After(dm.flipAt) {
			dm.roll(now)
		}
		dm.walk()

		bid, ask := dm.quote()
		u := model.MarketUpdate{
			Ticker:    dm.ticker,
			YesBid:    bid,
			YesAsk:    ask,
			Timestamp: now.UnixMicro(),
			Signal:    dm.signal,
			Reason:    dm.reason,
			ClosesAt:  dm.closesAt,
			PollMs:    8 + rand.Float64()*14,
			ComputeMs: 1 + rand.Float64()*4,
		}

		select {
		case d.out <- u:
		default:
			// Nobody draining; the walk keeps moving regardless.
		}
	}
}

// roll picks the next signal episode.
func (dm *demoMarket) roll(now time.Time) {
	r := rand.Float64()
	switch {
	case r < 0.60:
		dm.signal = model.SignalSafe
		dm.reason = ""
	case r < 0.85:
		dm.signal = model.SignalCaution
		dm.reason = demoReasons[rand.N(len(demoReasons))]
	default:
		dm.signal = model.SignalNoQuote
		dm.reason = demoReasons[rand.N(len(demoReasons))]
	}
	dm.flipAt = now.Add(time.Duration(3+rand.N(12)) * time.Second)
}

// walk moves the mid one step; triggered episodes move harder.
func (dm *demoMarket) walk() {
	step := (rand.Float64() - 0.5) * 1.2
	if dm.signal == model.SignalNoQuote {
		step *= 4
	}
	dm.mid += step
	if dm.mid < 3 {
		dm.mid = 3
	}
	if dm.mid > 97 {
		dm.mid = 97
	}
}

// quote derives a bid/ask pair around the mid, wider when triggered.
func (dm *demoMarket) quote() (bid, ask int) {
	spread := 2
	switch dm.signal {
	case model.SignalCaution:
		spread = 4
	case model.SignalNoQuote:
		spread = 8
	}

	bid = int(math.Round(dm.mid)) - spread/2
	if bid < 0 {
		bid = 0
	}
	ask = bid + spread
	if ask > 100 {
		ask = 100
		bid = ask - spread
	}
	return bid, ask
}
