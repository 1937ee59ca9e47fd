package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// WindowSize is the number of latency samples retained per stage.
const WindowSize = 256

// Collector aggregates engine counters and rolling latency windows.
// Counters use atomics; latency windows are small mutex-guarded rings.
// Safe for concurrent use.
type Collector struct {
	start time.Time

	updates    atomic.Int64
	duplicates atomic.Int64
	malformed  atomic.Int64
	dropped    atomic.Int64
	cancels    atomic.Int64
	reconnects atomic.Int64
	expired    atomic.Int64

	poll    *ring
	compute *ring
	pushRTT *ring
}

// NewCollector creates a collector with empty latency windows. Uptime is
// measured from this call.
func NewCollector() *Collector {
	return &Collector{
		start:   time.Now(),
		poll:    newRing(WindowSize),
		compute: newRing(WindowSize),
		pushRTT: newRing(WindowSize),
	}
}

// IncUpdates counts one applied market update.
func (c *Collector) IncUpdates() { c.updates.Add(1) }

// IncDuplicates counts one replayed update dropped by the registry.
func (c *Collector) IncDuplicates() { c.duplicates.Add(1) }

// IncMalformed counts one update dropped by validation.
func (c *Collector) IncMalformed() { c.malformed.Add(1) }

// IncDropped counts one update lost to a full delivery buffer.
func (c *Collector) IncDropped() { c.dropped.Add(1) }

// IncCancels counts one NO_QUOTE transition.
func (c *Collector) IncCancels() { c.cancels.Add(1) }

// IncReconnects counts one push reconnect attempt.
func (c *Collector) IncReconnects() { c.reconnects.Add(1) }

// IncExpired counts one market removed at its close time.
func (c *Collector) IncExpired() { c.expired.Add(1) }

// ObservePoll records an upstream poll stage latency in milliseconds.
func (c *Collector) ObservePoll(ms float64) { c.poll.observe(ms) }

// ObserveCompute records an upstream compute stage latency in milliseconds.
func (c *Collector) ObserveCompute(ms float64) { c.compute.observe(ms) }

// ObservePushRTT records a measured push round-trip in milliseconds.
func (c *Collector) ObservePushRTT(ms float64) { c.pushRTT.observe(ms) }

// Snapshot is a point-in-time view of all counters and quantiles.
type Snapshot struct {
	Updates    int64
	Duplicates int64
	Malformed  int64
	Dropped    int64
	Cancels    int64
	Reconnects int64
	Expired    int64

	PollP50    float64
	PollP99    float64
	ComputeP50 float64
	ComputeP99 float64
	PushRTTP50 float64
	PushRTTP99 float64

	Uptime time.Duration
}

// Snapshot returns the current metrics as a snapshot.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		Updates:    c.updates.Load(),
		Duplicates: c.duplicates.Load(),
		Malformed:  c.malformed.Load(),
		Dropped:    c.dropped.Load(),
		Cancels:    c.cancels.Load(),
		Reconnects: c.reconnects.Load(),
		Expired:    c.expired.Load(),

		PollP50:    c.poll.quantile(50),
		PollP99:    c.poll.quantile(99),
		ComputeP50: c.compute.quantile(50),
		ComputeP99: c.compute.quantile(99),
		PushRTTP50: c.pushRTT.quantile(50),
		PushRTTP99: c.pushRTT.quantile(99),

		Uptime: time.Since(c.start),
	}
}

// ring is a fixed-capacity overwrite-oldest sample window.
type ring struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

func newRing(capacity int) *ring {
	return &ring{samples: make([]float64, capacity)}
}

func (r *ring) observe(v float64) {
	r.mu.Lock()
	r.samples[r.next] = v
	r.next = (r.next + 1) % len(r.samples)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// quantile returns the nearest-rank p-th percentile of the window, or 0
// when no samples have been observed.
func (r *ring) quantile(p float64) float64 {
	r.mu.Lock()
	n := r.next
	if r.full {
		n = len(r.samples)
	}
	if n == 0 {
		r.mu.Unlock()
		return 0
	}
	buf := make([]float64, n)
	copy(buf, r.samples[:n])
	r.mu.Unlock()

	sort.Float64s(buf)
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return buf[rank-1]
}
