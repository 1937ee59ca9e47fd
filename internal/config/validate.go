package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *ObserverConfig) Validate() error {
	if !c.Engine.Demo {
		if c.Server.RestURL == "" {
			return errors.New("server.rest_url is required")
		}
		if c.Server.WSURL == "" {
			return errors.New("server.ws_url is required")
		}
	}

	if c.Feed.PollConcurrency < 1 {
		return errors.New("feed.poll_concurrency must be >= 1")
	}
	if c.Feed.BufferSize < 1 {
		return errors.New("feed.buffer_size must be >= 1")
	}
	if c.Feed.ReconnectBaseWait > c.Feed.ReconnectMaxWait {
		return fmt.Errorf("feed.reconnect_base_wait (%v) cannot exceed reconnect_max_wait (%v)",
			c.Feed.ReconnectBaseWait, c.Feed.ReconnectMaxWait)
	}

	if c.Engine.HistoryHorizon <= 0 {
		return errors.New("engine.history_horizon must be positive")
	}
	if c.Engine.EventCapacity < 1 {
		return errors.New("engine.event_capacity must be >= 1")
	}
	if c.Engine.VolatilityPercentile <= 0 || c.Engine.VolatilityPercentile > 100 {
		return fmt.Errorf("engine.volatility_percentile must be in (0, 100], got %v", c.Engine.VolatilityPercentile)
	}

	if c.UI.Refresh <= 0 {
		return errors.New("ui.refresh must be positive")
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}

// ParseLevel maps a config level string to a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", level)
	}
}
