package market

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shieldwatch/observer/internal/model"
)

func TestRiskEventLog_OpenAndFeed(t *testing.T) {
	l := NewRiskEventLog(0, nil)

	h := l.Open("INXD-25AUG-T5000", model.ReasonSpreadBlowout, at(0), 50)
	l.Feed(h, model.PriceSample{Timestamp: at(10), Mid: 46})

	events := l.Events(at(20))
	if len(events) != 1 {
		t.Fatalf("len(Events()) = %d, want 1", len(events))
	}
	e := events[0]
	if e.Ticker != "INXD-25AUG-T5000" {
		t.Errorf("Ticker = %q, want INXD-25AUG-T5000", e.Ticker)
	}
	if e.Reason != model.ReasonSpreadBlowout {
		t.Errorf("Reason = %q, want %q", e.Reason, model.ReasonSpreadBlowout)
	}
	if e.T0Mid != 50 {
		t.Errorf("T0Mid = %v, want 50", e.T0Mid)
	}
	if e.ID == uuid.Nil {
		t.Error("ID = uuid.Nil, want a generated id")
	}

	r, ok := e.Move(30 * time.Second)
	if !ok {
		t.Fatal("Move(30s) ok = false, want true")
	}
	if r.YesAdverse != 4 {
		t.Errorf("30s YesAdverse = %v, want 4", r.YesAdverse)
	}

	if !e.ShieldOpen {
		t.Error("ShieldOpen = false, want true")
	}
	if want := at(20) - at(0); e.ShieldedMicros != want {
		t.Errorf("ShieldedMicros = %d, want %d", e.ShieldedMicros, want)
	}
}

func TestRiskEventLog_CapacityEviction(t *testing.T) {
	l := NewRiskEventLog(20, nil)

	handles := make([]*EventHandle, 0, 25)
	for i := 0; i < 25; i++ {
		h := l.Open(fmt.Sprintf("TICK-%02d", i), model.ReasonHighVolatility, at(float64(i)), 50)
		handles = append(handles, h)
	}

	if l.Len() != 20 {
		t.Fatalf("Len() = %d, want 20", l.Len())
	}

	events := l.Events(at(100))
	if events[0].Ticker != "TICK-24" {
		t.Errorf("events[0].Ticker = %q, want TICK-24", events[0].Ticker)
	}
	if last := events[len(events)-1].Ticker; last != "TICK-05" {
		t.Errorf("oldest retained ticker = %q, want TICK-05", last)
	}

	// Handles to evicted events go inert.
	if !l.Done(handles[0]) {
		t.Error("Done(evicted) = false, want true")
	}
	l.Feed(handles[0], model.PriceSample{Timestamp: at(1), Mid: 40})
	l.CloseShield(handles[0], at(2))
}

func TestRiskEventLog_ShieldClosesOnce(t *testing.T) {
	l := NewRiskEventLog(0, nil)
	h := l.Open("TICK", model.ReasonOneSided, at(0), 50)

	l.CloseShield(h, at(42))

	e := l.Events(at(100))[0]
	if e.ShieldOpen {
		t.Error("ShieldOpen = true after CloseShield, want false")
	}
	if want := int64(42_000_000); e.ShieldedMicros != want {
		t.Errorf("ShieldedMicros = %d, want %d", e.ShieldedMicros, want)
	}

	// Later closes do not move the end mark.
	l.CloseShield(h, at(99))
	if got := l.Events(at(100))[0].ShieldedMicros; got != 42_000_000 {
		t.Errorf("ShieldedMicros after second close = %d, want 42000000", got)
	}
}

func TestRiskEventLog_FinalizeAll(t *testing.T) {
	l := NewRiskEventLog(0, nil)
	l.Open("AAA", model.ReasonNoBook, at(0), 50)
	h := l.Open("BBB", model.ReasonTimeToEvent, at(1), 60)
	l.Feed(h, model.PriceSample{Timestamp: at(5), Mid: 58})

	l.FinalizeAll()

	for _, e := range l.Events(at(10)) {
		for _, m := range e.Moves {
			if !m.Result.Closed {
				t.Errorf("%s %v window Closed = false after FinalizeAll", e.Ticker, m.Window)
			}
		}
	}

	// Data captured before finalization survives it.
	var bbb model.RiskEvent
	for _, e := range l.Events(at(10)) {
		if e.Ticker == "BBB" {
			bbb = e
		}
	}
	if r, ok := bbb.Move(30 * time.Second); !ok || r.YesAdverse != 2 {
		t.Errorf("BBB 30s window = %+v, want YesAdverse 2", r)
	}
}

func TestRiskEventLog_Clear(t *testing.T) {
	l := NewRiskEventLog(0, nil)
	h := l.Open("TICK", model.ReasonNoBook, at(0), 50)

	l.Clear()

	if l.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", l.Len())
	}
	if got := len(l.Events(at(10))); got != 0 {
		t.Errorf("len(Events()) = %d after Clear, want 0", got)
	}
	if !l.Done(h) {
		t.Error("Done(cleared handle) = false, want true")
	}
	l.Feed(h, model.PriceSample{Timestamp: at(1), Mid: 40})
}

func TestRiskEventLog_Defaults(t *testing.T) {
	l := NewRiskEventLog(0, nil)
	l.Open("TICK", model.ReasonVolSpread, at(0), 50)

	e := l.Events(at(1))[0]
	if len(e.Moves) != len(DefaultMoveWindows) {
		t.Fatalf("len(Moves) = %d, want %d", len(e.Moves), len(DefaultMoveWindows))
	}
	for i, m := range e.Moves {
		if m.Window != DefaultMoveWindows[i] {
			t.Errorf("Moves[%d].Window = %v, want %v", i, m.Window, DefaultMoveWindows[i])
		}
	}

	if l.capacity != DefaultEventCapacity {
		t.Errorf("capacity = %d, want %d", l.capacity, DefaultEventCapacity)
	}
}
