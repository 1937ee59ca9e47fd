// feedtap connects the data feed and prints each normalized market update
// as a JSON line on stdout. Diagnostics for checking connectivity and feed
// contents without the dashboard.
//
// Usage: go run ./cmd/feedtap --config configs/observer.yaml --markets INXD-25AUG29-B6325
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shieldwatch/observer/internal/config"
	"github.com/shieldwatch/observer/internal/feed"
	"github.com/shieldwatch/observer/internal/metrics"
	"github.com/shieldwatch/observer/internal/model"
)

// updateLine is the stdout JSON shape for one update.
type updateLine struct {
	Ticker    string  `json:"ticker"`
	YesBid    int     `json:"yes_bid"`
	YesAsk    int     `json:"yes_ask"`
	Mid       float64 `json:"mid"`
	Timestamp int64   `json:"ts"`
	Signal    string  `json:"signal,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	ClosesAt  int64   `json:"closes_at,omitempty"`
	PollMs    float64 `json:"poll_ms,omitempty"`
	ComputeMs float64 `json:"compute_ms,omitempty"`
}

func main() {
	configPath := flag.String("config", "", "path to config file (empty = built-in defaults)")
	demoFlag := flag.Bool("demo", false, "tap the synthetic demo feed instead of the live one")
	markets := flag.String("markets", "", "comma-separated tickers to watch (adds to config)")
	flag.Parse()

	_ = godotenv.Load()

	// Stdout carries the JSON lines; everything else goes to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	var (
		cfg *config.ObserverConfig
		err error
	)
	if *configPath == "" {
		cfg = config.Default()
	} else {
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	tickers := append([]string{}, cfg.Engine.Markets...)
	for _, t := range strings.Split(*markets, ",") {
		if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
			tickers = append(tickers, t)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	collector := metrics.NewCollector()

	var src feed.Source
	if *demoFlag || cfg.Engine.Demo {
		demoCfg := feed.DefaultDemoConfig()
		if len(tickers) > 0 {
			demoCfg.Markets = tickers
		}
		src = feed.NewDemoSource(demoCfg, logger)
	} else {
		pollClient := feed.NewPollClient(
			cfg.Server.RestURL,
			cfg.Server.APIToken,
			feed.WithLogger(logger),
			feed.WithTimeout(cfg.Feed.PollTimeout),
			feed.WithRetries(cfg.Feed.MaxRetries, time.Second),
		)
		src = feed.NewManager(feed.ManagerConfig{
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
	}

	if err := src.Start(ctx); err != nil {
		logger.Error("failed to start feed", "error", err)
		os.Exit(1)
	}
	for _, t := range tickers {
		src.Watch(t)
	}

	logger.Info("tapping feed - press Ctrl+C to stop",
		"markets", len(tickers),
		"demo", *demoFlag || cfg.Engine.Demo,
	)

	// Periodic stats line so drops and reconnects are visible in the tap.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s := collector.Snapshot()
				logger.Info("stats",
					"state", src.State().String(),
					"updates", s.Updates,
					"malformed", s.Malformed,
					"dropped", s.Dropped,
					"reconnects", s.Reconnects,
					"push_rtt_p50_ms", s.PushRTTP50,
				)
			}
		}
	}()

	enc := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := src.Stop(shutdownCtx); err != nil {
				logger.Warn("feed stop", "error", err)
			}
			logger.Info("shutdown complete")
			return
		case u := <-src.Updates():
			if err := enc.Encode(toLine(u)); err != nil {
				logger.Error("encode update", "error", err)
			}
		}
	}
}

func toLine(u model.MarketUpdate) updateLine {
	return updateLine{
		Ticker:    u.Ticker,
		YesBid:    u.YesBid,
		YesAsk:    u.YesAsk,
		Mid:       u.Mid(),
		Timestamp: u.Timestamp,
		Signal:    string(u.Signal),
		Reason:    string(u.Reason),
		ClosesAt:  u.ClosesAt,
		PollMs:    u.PollMs,
		ComputeMs: u.ComputeMs,
	}
}
