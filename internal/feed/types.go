package feed

import (
	"errors"
	"time"

	"github.com/shieldwatch/observer/internal/model"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no heartbeat)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// ConnState is the push connection lifecycle phase.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateStale
	StateReconnecting
	StateDisconnected
)

// String returns the operator-facing state label.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateStale:
		return "stale"
	case StateReconnecting:
		return "reconnecting"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Push frame types.
const (
	frameUpdate    = "update"
	frameHeartbeat = "heartbeat"
)

// Control commands sent to the guard feed.
const (
	cmdSubscribe   = "subscribe"
	cmdUnsubscribe = "unsubscribe"
)

// TimestampedMessage wraps raw push bytes with the local receive time.
type TimestampedMessage struct {
	Data       []byte
	ReceivedAt time.Time
}

// command is a control frame for the push connection.
type command struct {
	ID     int64         `json:"id"`
	Cmd    string        `json:"cmd"`
	Params commandParams `json:"params"`
}

type commandParams struct {
	MarketTickers []string `json:"market_tickers"`
}

// pushMessage is the envelope for every inbound push frame.
type pushMessage struct {
	Type      string      `json:"type"`
	Market    *wireMarket `json:"market,omitempty"`
	Meta      *stageMeta  `json:"meta,omitempty"`
	Timestamp int64       `json:"ts,omitempty"`
}

// wireMarket is the market payload shared by push updates and REST book
// snapshots.
type wireMarket struct {
	Ticker    string `json:"ticker"`
	YesBid    int    `json:"yes_bid"`
	YesAsk    int    `json:"yes_ask"`
	Timestamp int64  `json:"ts"`
	Signal    string `json:"signal,omitempty"`
	Reason    string `json:"reason,omitempty"`
	ClosesAt  int64  `json:"closes_at,omitempty"`
}

// bookResponse is the REST book snapshot envelope.
type bookResponse struct {
	Market wireMarket `json:"market"`
	Meta   stageMeta  `json:"meta"`
}

// stageMeta carries upstream stage latencies in milliseconds.
type stageMeta struct {
	PollMs    float64 `json:"poll_ms"`
	ComputeMs float64 `json:"compute_ms"`
}

// toUpdate converts a wire payload into the internal update type.
func (w wireMarket) toUpdate(meta stageMeta) model.MarketUpdate {
	return model.MarketUpdate{
		Ticker:    w.Ticker,
		YesBid:    w.YesBid,
		YesAsk:    w.YesAsk,
		Timestamp: w.Timestamp,
		Signal:    model.Signal(w.Signal),
		Reason:    model.TriggerReason(w.Reason),
		ClosesAt:  w.ClosesAt,
		PollMs:    meta.PollMs,
		ComputeMs: meta.ComputeMs,
	}
}

// ClientConfig configures a single push connection.
type ClientConfig struct {
	URL              string        // WebSocket URL of the guard feed
	Token            string        // bearer token, empty = no auth
	HeartbeatTimeout time.Duration // max silence before the connection is stale
	PingInterval     time.Duration // how often we ping for RTT measurement
	WriteTimeout     time.Duration // write deadline for sends
	BufferSize       int           // message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HeartbeatTimeout: 30 * time.Second,
		PingInterval:     10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1024,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	WSURL string // WebSocket URL of the guard feed
	Token string // bearer token for both transports

	HeartbeatTimeout  time.Duration // push staleness threshold
	PingInterval      time.Duration // push RTT ping cadence
	WriteTimeout      time.Duration // push write deadline
	ReconnectBaseWait time.Duration // first reconnect wait
	ReconnectMaxWait  time.Duration // reconnect wait cap
	BufferSize        int           // update channel buffer size

	PollInterval    time.Duration // book snapshot cadence, 0 disables polling
	PollConcurrency int           // max in-flight book requests
	PollTimeout     time.Duration // per-request timeout
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HeartbeatTimeout:  30 * time.Second,
		PingInterval:      10 * time.Second,
		WriteTimeout:      5 * time.Second,
		ReconnectBaseWait: time.Second,
		ReconnectMaxWait:  30 * time.Second,
		BufferSize:        256,
		PollInterval:      5 * time.Second,
		PollConcurrency:   8,
		PollTimeout:       10 * time.Second,
	}
}
