package config

import "time"

// ObserverConfig is the root configuration for an observer instance.
type ObserverConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Feed    FeedConfig    `yaml:"feed"`
	Engine  EngineConfig  `yaml:"engine"`
	UI      UIConfig      `yaml:"ui"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the guard feed endpoints.
type ServerConfig struct {
	RestURL  string `yaml:"rest_url"`
	WSURL    string `yaml:"ws_url"`
	APIToken string `yaml:"api_token"` // bearer token for both transports
}

// FeedConfig holds Connection Manager settings.
type FeedConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	PollConcurrency   int           `yaml:"poll_concurrency"`
	PollTimeout       time.Duration `yaml:"poll_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	ReconnectBaseWait time.Duration `yaml:"reconnect_base_wait"`
	ReconnectMaxWait  time.Duration `yaml:"reconnect_max_wait"`
	BufferSize        int           `yaml:"buffer_size"`
}

// EngineConfig holds Market Registry settings.
type EngineConfig struct {
	HistoryHorizon       time.Duration `yaml:"history_horizon"`
	EventCapacity        int           `yaml:"event_capacity"`
	VolatilityPercentile float64       `yaml:"volatility_percentile"`
	SweepInterval        time.Duration `yaml:"sweep_interval"`
	Markets              []string      `yaml:"markets"` // tickers watched at startup
	Demo                 bool          `yaml:"demo"`    // start on the synthetic feed
}

// UIConfig holds dashboard settings.
type UIConfig struct {
	Refresh time.Duration `yaml:"refresh"`
}

// LoggingConfig holds the rotating file sink settings. Logs go to a file
// because the terminal belongs to the dashboard.
type LoggingConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}
