package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultRestURL              = "http://127.0.0.1:8787"
	DefaultWSURL                = "ws://127.0.0.1:8787/ws/feed"
	DefaultPollInterval         = 5 * time.Second
	DefaultPollConcurrency      = 8
	DefaultPollTimeout          = 10 * time.Second
	DefaultMaxRetries           = 3
	DefaultHeartbeatTimeout     = 30 * time.Second
	DefaultPingInterval         = 10 * time.Second
	DefaultReconnectBaseWait    = 1 * time.Second
	DefaultReconnectMaxWait     = 30 * time.Second
	DefaultBufferSize           = 256
	DefaultHistoryHorizon       = 10 * time.Minute
	DefaultEventCapacity        = 20
	DefaultVolatilityPercentile = 95.0
	DefaultSweepInterval        = 1 * time.Second
	DefaultUIRefresh            = 1 * time.Second
	DefaultLogFile              = "observer.log"
	DefaultLogLevel             = "info"
	DefaultLogMaxSizeMB         = 20
	DefaultLogMaxBackups        = 3
	DefaultLogMaxAgeDays        = 7
)

func (c *ObserverConfig) applyDefaults() {
	// Server defaults
	if c.Server.RestURL == "" {
		c.Server.RestURL = DefaultRestURL
	}
	if c.Server.WSURL == "" {
		c.Server.WSURL = DefaultWSURL
	}

	// Feed defaults
	if c.Feed.PollInterval == 0 {
		c.Feed.PollInterval = DefaultPollInterval
	}
	if c.Feed.PollConcurrency == 0 {
		c.Feed.PollConcurrency = DefaultPollConcurrency
	}
	if c.Feed.PollTimeout == 0 {
		c.Feed.PollTimeout = DefaultPollTimeout
	}
	if c.Feed.MaxRetries == 0 {
		c.Feed.MaxRetries = DefaultMaxRetries
	}
	if c.Feed.HeartbeatTimeout == 0 {
		c.Feed.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if c.Feed.PingInterval == 0 {
		c.Feed.PingInterval = DefaultPingInterval
	}
	if c.Feed.ReconnectBaseWait == 0 {
		c.Feed.ReconnectBaseWait = DefaultReconnectBaseWait
	}
	if c.Feed.ReconnectMaxWait == 0 {
		c.Feed.ReconnectMaxWait = DefaultReconnectMaxWait
	}
	if c.Feed.BufferSize == 0 {
		c.Feed.BufferSize = DefaultBufferSize
	}

	// Engine defaults
	if c.Engine.HistoryHorizon == 0 {
		c.Engine.HistoryHorizon = DefaultHistoryHorizon
	}
	if c.Engine.EventCapacity == 0 {
		c.Engine.EventCapacity = DefaultEventCapacity
	}
	if c.Engine.VolatilityPercentile == 0 {
		c.Engine.VolatilityPercentile = DefaultVolatilityPercentile
	}
	if c.Engine.SweepInterval == 0 {
		c.Engine.SweepInterval = DefaultSweepInterval
	}

	// UI defaults
	if c.UI.Refresh == 0 {
		c.UI.Refresh = DefaultUIRefresh
	}

	// Logging defaults
	if c.Logging.File == "" {
		c.Logging.File = DefaultLogFile
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}
}
