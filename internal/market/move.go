package market

import (
	"time"

	"github.com/shieldwatch/observer/internal/model"
)

// DefaultMoveWindows are the look-forward windows measured from a trigger.
var DefaultMoveWindows = []time.Duration{30 * time.Second, 2 * time.Minute, 5 * time.Minute}

// MoveTracker follows mid-price samples after a trigger and records the
// worst adverse move per look-forward window, split by direction: YES-side
// adverse when the mid falls below the trigger baseline, NO-side adverse
// when it rises above. Not safe for concurrent use.
type MoveTracker struct {
	triggerTS int64
	t0Mid     float64
	windows   []moveWindow
}

type moveWindow struct {
	length time.Duration
	result model.WindowResult
}

// NewMoveTracker creates a tracker with the given windows (ascending).
// A nil or empty windows slice selects DefaultMoveWindows.
func NewMoveTracker(triggerTS int64, t0Mid float64, windows []time.Duration) *MoveTracker {
	if len(windows) == 0 {
		windows = DefaultMoveWindows
	}
	t := &MoveTracker{triggerTS: triggerTS, t0Mid: t0Mid}
	for _, w := range windows {
		t.windows = append(t.windows, moveWindow{length: w})
	}
	return t
}

// Observe feeds one sample. Samples at or before the trigger are ignored
// (the trigger quote is the baseline, not data). A sample at or past a
// window's end closes that window without being counted; closed windows
// ignore late arrivals, so their results never change once reported.
func (t *MoveTracker) Observe(s model.PriceSample) {
	if s.Timestamp <= t.triggerTS {
		return
	}
	for i := range t.windows {
		w := &t.windows[i]
		if w.result.Closed {
			continue
		}
		if s.Timestamp >= t.triggerTS+w.length.Microseconds() {
			w.result.Closed = true
			continue
		}
		w.result.HasData = true
		delta := s.Mid - t.t0Mid
		if delta < 0 && -delta > w.result.YesAdverse {
			w.result.YesAdverse = -delta
		} else if delta > 0 && delta > w.result.NoAdverse {
			w.result.NoAdverse = delta
		}
	}
}

// Finalize closes every window with whatever it has observed. Used on
// shutdown and when a market is removed mid-tracking.
func (t *MoveTracker) Finalize() {
	for i := range t.windows {
		t.windows[i].result.Closed = true
	}
}

// Done reports whether all windows are closed.
func (t *MoveTracker) Done() bool {
	for _, w := range t.windows {
		if !w.result.Closed {
			return false
		}
	}
	return true
}

// Moves returns the per-window results, shortest window first.
func (t *MoveTracker) Moves() []model.WindowMove {
	out := make([]model.WindowMove, len(t.windows))
	for i, w := range t.windows {
		out[i] = model.WindowMove{Window: w.length, Result: w.result}
	}
	return out
}
