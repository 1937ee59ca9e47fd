package market

import (
	"time"

	"github.com/google/uuid"

	"github.com/shieldwatch/observer/internal/model"
)

// DefaultEventCapacity is the rolling risk-event log size.
const DefaultEventCapacity = 20

// EventHandle refers to one logged risk event. A handle outlives eviction
// and clearing but turns inert: feeding it becomes a no-op.
type EventHandle struct {
	rec *eventRecord
}

type eventRecord struct {
	id        uuid.UUID
	ticker    string
	reason    model.TriggerReason
	triggerTS int64
	t0Mid     float64
	tracker   *MoveTracker
	shieldEnd int64 // 0 while the market is still in NO_QUOTE
	evicted   bool
}

// RiskEventLog is a bounded FIFO log of NO_QUOTE triggers. The oldest entry
// is evicted at capacity even if its move windows are still open; evicted
// entries are discarded, not finalized. Not safe for concurrent use: the
// registry lock serializes access.
type RiskEventLog struct {
	capacity int
	windows  []time.Duration
	entries  []*eventRecord // oldest first
}

// NewRiskEventLog creates a log holding at most capacity events, tracking
// moves over the given windows. Zero values select the defaults.
func NewRiskEventLog(capacity int, windows []time.Duration) *RiskEventLog {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	if len(windows) == 0 {
		windows = DefaultMoveWindows
	}
	return &RiskEventLog{capacity: capacity, windows: windows}
}

// Open appends a new event with a fresh MoveTracker and returns its handle,
// evicting the oldest entry at capacity.
func (l *RiskEventLog) Open(ticker string, reason model.TriggerReason, ts int64, t0Mid float64) *EventHandle {
	rec := &eventRecord{
		id:        uuid.New(),
		ticker:    ticker,
		reason:    reason,
		triggerTS: ts,
		t0Mid:     t0Mid,
		tracker:   NewMoveTracker(ts, t0Mid, l.windows),
	}
	l.entries = append(l.entries, rec)
	for len(l.entries) > l.capacity {
		l.entries[0].evicted = true
		l.entries = l.entries[1:]
	}
	return &EventHandle{rec: rec}
}

// Feed forwards a sample to the handle's move tracker. Inert for nil or
// evicted handles.
func (l *RiskEventLog) Feed(h *EventHandle, s model.PriceSample) {
	if h == nil || h.rec == nil || h.rec.evicted {
		return
	}
	h.rec.tracker.Observe(s)
}

// CloseShield stamps the end of the NO_QUOTE episode. Only the first call
// takes effect.
func (l *RiskEventLog) CloseShield(h *EventHandle, ts int64) {
	if h == nil || h.rec == nil || h.rec.shieldEnd != 0 {
		return
	}
	h.rec.shieldEnd = ts
}

// Finalize closes the handle's windows early (shutdown, market removal).
func (l *RiskEventLog) Finalize(h *EventHandle) {
	if h == nil || h.rec == nil {
		return
	}
	h.rec.tracker.Finalize()
}

// FinalizeAll closes every open window in the log.
func (l *RiskEventLog) FinalizeAll() {
	for _, rec := range l.entries {
		rec.tracker.Finalize()
	}
}

// Done reports whether the handle has stopped tracking: all windows closed,
// or the handle is inert.
func (l *RiskEventLog) Done(h *EventHandle) bool {
	if h == nil || h.rec == nil || h.rec.evicted {
		return true
	}
	return h.rec.tracker.Done()
}

// Events returns views newest-first. now supplies the live duration for
// shields that are still open.
func (l *RiskEventLog) Events(now int64) []model.RiskEvent {
	out := make([]model.RiskEvent, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		out = append(out, l.entries[i].view(now))
	}
	return out
}

// Len returns the number of logged events.
func (l *RiskEventLog) Len() int { return len(l.entries) }

// Clear empties the log. Cleared entries become inert; market signal state
// is untouched.
func (l *RiskEventLog) Clear() {
	for _, rec := range l.entries {
		rec.evicted = true
	}
	l.entries = nil
}

func (r *eventRecord) view(now int64) model.RiskEvent {
	e := model.RiskEvent{
		ID:        r.id,
		Ticker:    r.ticker,
		Reason:    r.reason,
		TriggerTS: r.triggerTS,
		T0Mid:     r.t0Mid,
		Moves:     r.tracker.Moves(),
	}
	switch {
	case r.shieldEnd != 0:
		e.ShieldedMicros = r.shieldEnd - r.triggerTS
	default:
		e.ShieldOpen = true
		if now > r.triggerTS {
			e.ShieldedMicros = now - r.triggerTS
		}
	}
	return e
}
