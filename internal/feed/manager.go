package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shieldwatch/observer/internal/metrics"
	"github.com/shieldwatch/observer/internal/model"
)

// Source is a market update feed. The live Connection Manager and the
// synthetic demo feed both implement it.
type Source interface {
	// Start begins delivery.
	Start(ctx context.Context) error

	// Stop gracefully shuts delivery down. The Updates channel stays open
	// so a stopped source can be restarted.
	Stop(ctx context.Context) error

	// Updates returns the normalized update channel.
	Updates() <-chan model.MarketUpdate

	// State returns the current connection state.
	State() ConnState

	// Watch adds a ticker to the poll and subscription set.
	Watch(ticker string)

	// Unwatch removes a ticker from the poll and subscription set.
	Unwatch(ticker string)

	// Watched returns the watched tickers sorted ascending.
	Watched() []string
}

// manager implements Source against the live guard feed.
type manager struct {
	cfg       ManagerConfig
	poll      *PollClient
	collector *metrics.Collector
	logger    *slog.Logger

	out   chan model.MarketUpdate
	state atomic.Int32
	cmdID atomic.Int64

	mu      sync.RWMutex
	watched map[string]struct{}
	client  Client

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a Connection Manager. Zero config fields fall back to
// DefaultManagerConfig values. A nil poll client disables the REST cycle.
func NewManager(cfg ManagerConfig, poll *PollClient, collector *metrics.Collector, logger *slog.Logger) Source {
	if logger == nil {
		logger = slog.Default()
	}
	if collector == nil {
		collector = metrics.NewCollector()
	}
	def := DefaultManagerConfig()
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = def.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait <= 0 {
		cfg.ReconnectMaxWait = def.ReconnectMaxWait
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.PollConcurrency <= 0 {
		cfg.PollConcurrency = def.PollConcurrency
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = def.PollTimeout
	}

	m := &manager{
		cfg:       cfg,
		poll:      poll,
		collector: collector,
		logger:    logger,
		out:       make(chan model.MarketUpdate, cfg.BufferSize),
		watched:   make(map[string]struct{}),
	}
	m.state.Store(int32(StateDisconnected))
	return m
}

// Start launches the push and poll loops.
func (m *manager) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runPush(ctx)
	}()

	if m.poll != nil && m.cfg.PollInterval > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.runPoll(ctx)
		}()
	}

	m.logger.Info("connection manager started",
		"ws_url", m.cfg.WSURL,
		"poll_interval", m.cfg.PollInterval,
	)
	return nil
}

// Stop halts delivery. The update channel is left open so consumers can
// keep selecting on it and the source can be restarted.
func (m *manager) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.setState(StateDisconnected)
	m.logger.Info("connection manager stopped")
	return nil
}

// Updates returns the normalized update channel.
func (m *manager) Updates() <-chan model.MarketUpdate {
	return m.out
}

// State returns the current connection state.
func (m *manager) State() ConnState {
	return ConnState(m.state.Load())
}

func (m *manager) setState(s ConnState) {
	m.state.Store(int32(s))
}

// Watch adds a ticker and subscribes it on the live connection.
func (m *manager) Watch(ticker string) {
	if ticker == "" {
		return
	}

	m.mu.Lock()
	if _, ok := m.watched[ticker]; ok {
		m.mu.Unlock()
		return
	}
	m.watched[ticker] = struct{}{}
	client := m.client
	m.mu.Unlock()

	if client != nil && client.IsConnected() {
		if err := m.sendCommand(client, cmdSubscribe, []string{ticker}); err != nil {
			m.logger.Warn("subscribe failed", "ticker", ticker, "err", err)
		}
	}
}

// Unwatch removes a ticker and unsubscribes it on the live connection.
func (m *manager) Unwatch(ticker string) {
	m.mu.Lock()
	if _, ok := m.watched[ticker]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.watched, ticker)
	client := m.client
	m.mu.Unlock()

	if client != nil && client.IsConnected() {
		if err := m.sendCommand(client, cmdUnsubscribe, []string{ticker}); err != nil {
			m.logger.Warn("unsubscribe failed", "ticker", ticker, "err", err)
		}
	}
}

// Watched returns the watched tickers sorted ascending.
func (m *manager) Watched() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tickers := make([]string, 0, len(m.watched))
	for t := range m.watched {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// runPush drives the connection state machine: Connecting, Connected,
// Stale, Reconnecting. Reconnects retry at the cap forever.
func (m *manager) runPush(ctx context.Context) {
	wait := m.cfg.ReconnectBaseWait

	for {
		m.setState(StateConnecting)
		client := NewClient(ClientConfig{
			URL:              m.cfg.WSURL,
			Token:            m.cfg.Token,
			HeartbeatTimeout: m.cfg.HeartbeatTimeout,
			PingInterval:     m.cfg.PingInterval,
			WriteTimeout:     m.cfg.WriteTimeout,
		}, m.collector, m.logger)

		if err := client.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				m.setState(StateDisconnected)
				return
			}
			m.logger.Warn("push connect failed", "url", m.cfg.WSURL, "err", err)
			if !m.backoff(ctx, &wait) {
				return
			}
			continue
		}

		m.mu.Lock()
		m.client = client
		m.mu.Unlock()

		m.setState(StateConnected)
		wait = m.cfg.ReconnectBaseWait
		m.logger.Info("push feed connected", "url", m.cfg.WSURL)
		m.subscribeWatched(client)

		err := m.consume(ctx, client)

		client.Close()
		m.mu.Lock()
		m.client = nil
		m.mu.Unlock()

		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return
		}

		if errors.Is(err, ErrStaleConnection) {
			m.setState(StateStale)
			m.logger.Warn("push feed stale", "timeout", m.cfg.HeartbeatTimeout)
		} else {
			m.logger.Warn("push feed lost", "err", err)
		}

		if !m.backoff(ctx, &wait) {
			return
		}
	}
}

// backoff waits out one reconnect delay with jitter and doubles it toward
// the cap. Returns false when the context ended during the wait.
func (m *manager) backoff(ctx context.Context, wait *time.Duration) bool {
	m.setState(StateReconnecting)
	m.collector.IncReconnects()

	// Add jitter: wait * (0.5 to 1.5)
	jittered := *wait/2 + time.Duration(rand.Int64N(int64(*wait)))
	m.logger.Info("reconnecting to push feed", "wait", jittered)

	select {
	case <-ctx.Done():
		m.setState(StateDisconnected)
		return false
	case <-time.After(jittered):
	}

	*wait *= 2
	if *wait > m.cfg.ReconnectMaxWait {
		*wait = m.cfg.ReconnectMaxWait
	}
	return true
}

// consume drains one connection until it fails or the context ends.
func (m *manager) consume(ctx context.Context, client Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-client.Errors():
			return err
		case msg, ok := <-client.Messages():
			if !ok {
				return ErrNotConnected
			}
			m.handlePush(msg)
		}
	}
}

// handlePush decodes one push frame and emits updates.
func (m *manager) handlePush(msg TimestampedMessage) {
	var frame pushMessage
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		m.collector.IncMalformed()
		m.logger.Warn("dropping undecodable push frame", "err", err)
		return
	}

	switch frame.Type {
	case frameHeartbeat:
		// Receipt already refreshed the staleness clock.
	case frameUpdate:
		if frame.Market == nil {
			m.collector.IncMalformed()
			m.logger.Warn("update frame without market payload")
			return
		}
		meta := stageMeta{}
		if frame.Meta != nil {
			meta = *frame.Meta
		}
		m.emit(frame.Market.toUpdate(meta))
	default:
		m.logger.Debug("ignoring push frame", "type", frame.Type)
	}
}

// emit validates and forwards one update without blocking. When the buffer
// is full the newest update is dropped so delivered per-ticker order holds.
func (m *manager) emit(u model.MarketUpdate) {
	if err := u.Validate(); err != nil {
		m.collector.IncMalformed()
		m.logger.Warn("dropping malformed update", "ticker", u.Ticker, "err", err)
		return
	}

	select {
	case m.out <- u:
	default:
		m.collector.IncDropped()
		m.logger.Warn("update buffer full, dropping update", "ticker", u.Ticker)
	}
}

// subscribeWatched subscribes every watched ticker on a fresh connection.
func (m *manager) subscribeWatched(client Client) {
	tickers := m.Watched()
	if len(tickers) == 0 {
		return
	}
	if err := m.sendCommand(client, cmdSubscribe, tickers); err != nil {
		m.logger.Warn("subscribe failed", "tickers", len(tickers), "err", err)
		return
	}
	m.logger.Info("subscribed watched markets", "count", len(tickers))
}

// sendCommand writes one control frame.
func (m *manager) sendCommand(client Client, cmd string, tickers []string) error {
	data, err := json.Marshal(command{
		ID:     m.cmdID.Add(1),
		Cmd:    cmd,
		Params: commandParams{MarketTickers: tickers},
	})
	if err != nil {
		return err
	}
	return client.Send(data)
}

// runPoll drives the periodic book snapshot cycle.
func (m *manager) runPoll(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	m.pollAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollAll(ctx)
		}
	}
}

// pollAll fetches books for all watched tickers with bounded concurrency.
func (m *manager) pollAll(ctx context.Context) {
	tickers := m.Watched()
	if len(tickers) == 0 {
		return
	}

	start := time.Now()
	sem := make(chan struct{}, m.cfg.PollConcurrency)
	var wg sync.WaitGroup
	var fetched, failed atomic.Int64

	for _, t := range tickers {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			reqCtx, cancel := context.WithTimeout(ctx, m.cfg.PollTimeout)
			defer cancel()

			u, err := m.poll.Book(reqCtx, ticker)
			if err != nil {
				if ctx.Err() == nil {
					m.logger.Warn("failed to poll book", "ticker", ticker, "err", err)
				}
				failed.Add(1)
				return
			}

			m.emit(u)
			fetched.Add(1)
		}(t)
	}

	wg.Wait()

	m.logger.Debug("poll cycle complete",
		"markets", len(tickers),
		"fetched", fetched.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}
