package market

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/shieldwatch/observer/internal/model"
)

// ErrInsufficientData is returned by Percentile while fewer than two
// samples are retained.
var ErrInsufficientData = errors.New("insufficient price history")

// PriceHistoryBuffer holds a horizon-bounded series of mid-price samples
// for one market. Samples are kept sorted by timestamp; eviction is
// measured against the highest timestamp seen, so a late arrival can never
// stretch the window. Not safe for concurrent use: the registry lock
// serializes access.
type PriceHistoryBuffer struct {
	horizon time.Duration
	samples []model.PriceSample // sorted by Timestamp ascending
	seen    map[int64]struct{}
	highTS  int64
}

// NewPriceHistoryBuffer creates an empty buffer retaining the given
// duration of samples.
func NewPriceHistoryBuffer(horizon time.Duration) *PriceHistoryBuffer {
	return &PriceHistoryBuffer{
		horizon: horizon,
		seen:    make(map[int64]struct{}),
	}
}

// Record inserts a sample in timestamp order and evicts anything that has
// aged out. It returns false without recording when the timestamp was
// already seen or the sample is older than the retention window.
func (b *PriceHistoryBuffer) Record(s model.PriceSample) bool {
	if _, dup := b.seen[s.Timestamp]; dup {
		return false
	}
	if b.highTS > 0 && s.Timestamp <= b.highTS-b.horizon.Microseconds() {
		return false
	}

	// In-order arrival appends at the tail; reordered samples walk back.
	i := len(b.samples)
	for i > 0 && b.samples[i-1].Timestamp > s.Timestamp {
		i--
	}
	b.samples = append(b.samples, model.PriceSample{})
	copy(b.samples[i+1:], b.samples[i:])
	b.samples[i] = s
	b.seen[s.Timestamp] = struct{}{}

	if s.Timestamp > b.highTS {
		b.highTS = s.Timestamp
	}
	b.evict()
	return true
}

func (b *PriceHistoryBuffer) evict() {
	cutoff := b.highTS - b.horizon.Microseconds()
	n := 0
	for n < len(b.samples) && b.samples[n].Timestamp <= cutoff {
		delete(b.seen, b.samples[n].Timestamp)
		n++
	}
	if n > 0 {
		b.samples = append(b.samples[:0], b.samples[n:]...)
	}
}

// Percentile returns the p-th percentile (nearest rank, ties by index) of
// absolute mid deltas between chronologically adjacent samples.
func (b *PriceHistoryBuffer) Percentile(p float64) (float64, error) {
	deltas := b.Deltas()
	if len(deltas) == 0 {
		return 0, ErrInsufficientData
	}
	sort.Float64s(deltas)
	rank := int(math.Ceil(p / 100 * float64(len(deltas))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(deltas) {
		rank = len(deltas)
	}
	return deltas[rank-1], nil
}

// Deltas returns the absolute mid changes between adjacent samples in
// timestamp order.
func (b *PriceHistoryBuffer) Deltas() []float64 {
	if len(b.samples) < 2 {
		return nil
	}
	deltas := make([]float64, 0, len(b.samples)-1)
	for i := 1; i < len(b.samples); i++ {
		d := b.samples[i].Mid - b.samples[i-1].Mid
		if d < 0 {
			d = -d
		}
		deltas = append(deltas, d)
	}
	return deltas
}

// Len returns the number of retained samples.
func (b *PriceHistoryBuffer) Len() int { return len(b.samples) }

// Span returns the time covered by the retained samples.
func (b *PriceHistoryBuffer) Span() time.Duration {
	if len(b.samples) < 2 {
		return 0
	}
	micros := b.samples[len(b.samples)-1].Timestamp - b.samples[0].Timestamp
	return time.Duration(micros) * time.Microsecond
}
