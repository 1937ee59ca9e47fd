package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/shieldwatch/observer/internal/config"
	"github.com/shieldwatch/observer/internal/feed"
	"github.com/shieldwatch/observer/internal/market"
	"github.com/shieldwatch/observer/internal/metrics"
	"github.com/shieldwatch/observer/internal/model"
	"github.com/shieldwatch/observer/internal/tui"
	"github.com/shieldwatch/observer/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (empty = built-in defaults)")
	demoFlag := flag.Bool("demo", false, "start with the synthetic demo feed")
	logLevel := flag.String("log-level", "", "override configured log level (debug|info|warn|error)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	// .env is optional; deployed environments set variables directly.
	_ = godotenv.Load()

	// Startup errors go to stderr; the rotating file logger takes over once
	// the config is loaded, because the terminal belongs to the dashboard.
	boot := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var (
		cfg *config.ObserverConfig
		err error
	)
	if *configPath == "" {
		cfg = config.Default()
	} else {
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			boot.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if *demoFlag {
		cfg.Engine.Demo = true
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		boot.Error("invalid log level", "error", err)
		os.Exit(1)
	}

	logWriter := &lumberjack.Logger{
		Filename:   cfg.Logging.File,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting observer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"demo", cfg.Engine.Demo,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := metrics.NewCollector()

	registry := market.NewRegistry(market.Config{
		HistoryHorizon:       cfg.Engine.HistoryHorizon,
		EventCapacity:        cfg.Engine.EventCapacity,
		VolatilityPercentile: cfg.Engine.VolatilityPercentile,
		SweepInterval:        cfg.Engine.SweepInterval,
	}, collector, logger)

	pollClient := feed.NewPollClient(
		cfg.Server.RestURL,
		cfg.Server.APIToken,
		feed.WithLogger(logger),
		feed.WithTimeout(cfg.Feed.PollTimeout),
		feed.WithRetries(cfg.Feed.MaxRetries, time.Second),
	)
	live := feed.NewManager(feed.ManagerConfig{
		WSURL:             cfg.Server.WSURL,
		Token:             cfg.Server.APIToken,
		HeartbeatTimeout:  cfg.Feed.HeartbeatTimeout,
		PingInterval:      cfg.Feed.PingInterval,
		ReconnectBaseWait: cfg.Feed.ReconnectBaseWait,
		ReconnectMaxWait:  cfg.Feed.ReconnectMaxWait,
		BufferSize:        cfg.Feed.BufferSize,
		PollInterval:      cfg.Feed.PollInterval,
		PollConcurrency:   cfg.Feed.PollConcurrency,
		PollTimeout:       cfg.Feed.PollTimeout,
	}, pollClient, collector, logger)

	demoCfg := feed.DefaultDemoConfig()
	demoCfg.BufferSize = cfg.Feed.BufferSize
	if len(cfg.Engine.Markets) > 0 {
		demoCfg.Markets = cfg.Engine.Markets
	}
	demo := feed.NewDemoSource(demoCfg, logger)

	sources := newSourceSwitch(ctx, live, demo, cfg.Engine.Demo, logger)

	if err := registry.Start(ctx); err != nil {
		boot.Error("failed to start market registry", "error", err)
		os.Exit(1)
	}
	if err := sources.start(); err != nil {
		boot.Error("failed to start feed", "error", err)
		os.Exit(1)
	}

	for _, ticker := range cfg.Engine.Markets {
		registry.Track(ticker)
		sources.watch(ticker)
	}

	prog := tea.NewProgram(tui.New(tui.Options{
		Refresh:      cfg.UI.Refresh,
		Snapshot:     registry.Snapshot,
		Events:       registry.Events,
		Stats:        collector.Snapshot,
		AvoidedCents: registry.AvoidedCents,
		ConnState:    sources.state,
		DemoMode:     sources.demoMode,
		AddMarket: func(ticker string) error {
			registry.Track(ticker)
			sources.watch(ticker)
			logger.Info("market added", "ticker", ticker)
			return nil
		},
		RemoveMarket: func(ticker string) error {
			if !registry.Remove(ticker) {
				return fmt.Errorf("%s is not tracked", ticker)
			}
			sources.unwatch(ticker)
			logger.Info("market removed", "ticker", ticker)
			return nil
		},
		ClearEvents: registry.ClearEvents,
		ToggleDemo:  sources.toggle,
	}), tea.WithAltScreen())

	// Outside signals quit the program so the terminal is restored; the TUI
	// handles ctrl+c itself.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			prog.Quit()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		_, err := prog.Run()
		return err
	})

	// Route updates from whichever source is running into the registry.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case u := <-live.Updates():
				applyUpdate(registry, u, logger)
			case u := <-demo.Updates():
				applyUpdate(registry, u, logger)
			}
		}
	})

	// Removed and expired markets stop being watched upstream.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ch := <-registry.Changes():
				if ch.Kind == market.ChangeRemoved || ch.Kind == market.ChangeExpired {
					sources.unwatch(ch.Ticker)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("observer exited with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	sources.stop(shutdownCtx)
	registry.Stop(shutdownCtx)

	logger.Info("observer stopped")
}

func applyUpdate(reg market.Registry, u model.MarketUpdate, logger *slog.Logger) {
	if err := reg.Upsert(u); err != nil {
		logger.Warn("update rejected", "ticker", u.Ticker, "error", err)
	}
}

// sourceSwitch owns which feed implementation is running and flips between
// them on operator request. Both sources keep their watch sets while
// stopped, so a toggle resumes the same markets.
type sourceSwitch struct {
	ctx    context.Context
	logger *slog.Logger

	mu      sync.Mutex
	live    feed.Source
	demo    feed.Source
	useDemo bool
}

func newSourceSwitch(ctx context.Context, live, demo feed.Source, useDemo bool, logger *slog.Logger) *sourceSwitch {
	return &sourceSwitch{
		ctx:     ctx,
		logger:  logger,
		live:    live,
		demo:    demo,
		useDemo: useDemo,
	}
}

func (s *sourceSwitch) activeLocked() feed.Source {
	if s.useDemo {
		return s.demo
	}
	return s.live
}

func (s *sourceSwitch) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked().Start(s.ctx)
}

func (s *sourceSwitch) stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.activeLocked().Stop(ctx); err != nil {
		s.logger.Warn("feed stop", "error", err)
	}
}

// toggle swaps the running source and reports whether demo is now active.
func (s *sourceSwitch) toggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := s.activeLocked().Stop(stopCtx); err != nil {
		s.logger.Warn("feed stop during toggle", "error", err)
	}

	s.useDemo = !s.useDemo
	if err := s.activeLocked().Start(s.ctx); err != nil {
		s.logger.Error("feed start during toggle", "error", err)
	}

	mode := "live"
	if s.useDemo {
		mode = "demo"
	}
	s.logger.Info("feed toggled", "mode", mode)
	return s.useDemo
}

func (s *sourceSwitch) state() feed.ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeLocked().State()
}

func (s *sourceSwitch) demoMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.useDemo
}

func (s *sourceSwitch) watch(ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Watch(ticker)
	s.demo.Watch(ticker)
}

func (s *sourceSwitch) unwatch(ticker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live.Unwatch(ticker)
	s.demo.Unwatch(ticker)
}
