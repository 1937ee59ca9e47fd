package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/shieldwatch/observer/internal/feed"
	"github.com/shieldwatch/observer/internal/metrics"
	"github.com/shieldwatch/observer/internal/model"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(Model)
	}
	return m
}

func TestMoveCell(t *testing.T) {
	tests := []struct {
		name string
		r    model.WindowResult
		want string
	}{
		{"open window", model.WindowResult{}, "…"},
		{"closed no data", model.WindowResult{Closed: true}, "--"},
		{"yes adverse", model.WindowResult{Closed: true, HasData: true, YesAdverse: 4}, "4¢ (Y4/N0)"},
		{"both directions", model.WindowResult{Closed: true, HasData: true, YesAdverse: 4, NoAdverse: 7}, "7¢ (Y4/N7)"},
	}
	for _, tt := range tests {
		if got := moveCell(tt.r); got != tt.want {
			t.Errorf("%s: moveCell() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFormatWindow(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{2 * time.Minute, "2m"},
		{5 * time.Minute, "5m"},
		{90 * time.Second, "90s"},
	}
	for _, tt := range tests {
		if got := formatWindow(tt.d); got != tt.want {
			t.Errorf("formatWindow(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{12300 * time.Millisecond, "12.3s"},
		{95 * time.Second, "1m35s"},
		{61 * time.Minute, "1h01m"},
		{-time.Second, "0ms"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatClose(t *testing.T) {
	now := time.Now().UnixMicro()

	if got := formatClose(0, now); got != "--" {
		t.Errorf("formatClose(0) = %q, want --", got)
	}
	if got := formatClose(now-1, now); got != "closed" {
		t.Errorf("formatClose(past) = %q, want closed", got)
	}
	if got := formatClose(now+90_000_000, now); got != "1m30s" {
		t.Errorf("formatClose(+90s) = %q, want 1m30s", got)
	}
}

func TestFormatShield(t *testing.T) {
	if got := formatShield(12_300_000, false); got != "12.3s" {
		t.Errorf("formatShield(closed) = %q, want 12.3s", got)
	}
	if got := formatShield(12_300_000, true); got != "12.3s+" {
		t.Errorf("formatShield(open) = %q, want 12.3s+", got)
	}
}

func TestPromptAddMarket(t *testing.T) {
	var added string
	m := New(Options{
		AddMarket: func(ticker string) error {
			added = ticker
			return nil
		},
	})

	m = press(t, m, runes("a"))
	if m.mode != inputAdd {
		t.Fatalf("mode = %v after 'a', want inputAdd", m.mode)
	}

	m = press(t, m, runes("inxd-test"), tea.KeyMsg{Type: tea.KeyEnter})
	if added != "INXD-TEST" {
		t.Errorf("AddMarket called with %q, want INXD-TEST", added)
	}
	if m.mode != inputNone {
		t.Errorf("mode = %v after enter, want inputNone", m.mode)
	}
}

func TestPromptKeysAreTyped(t *testing.T) {
	m := New(Options{})
	m = press(t, m, runes("a"), runes("q"), runes("d"), runes("c"))

	// Command keys go into the input buffer while the prompt is active.
	if m.input != "qdc" {
		t.Errorf("input = %q, want qdc", m.input)
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	if m.input != "qd" {
		t.Errorf("input after backspace = %q, want qd", m.input)
	}
}

func TestPromptEscCancels(t *testing.T) {
	called := false
	m := New(Options{
		AddMarket: func(string) error {
			called = true
			return nil
		},
	})

	m = press(t, m, runes("a"), runes("aaa"), tea.KeyMsg{Type: tea.KeyEsc})
	if m.mode != inputNone {
		t.Errorf("mode = %v after esc, want inputNone", m.mode)
	}
	if m.input != "" {
		t.Errorf("input = %q after esc, want empty", m.input)
	}
	if called {
		t.Error("AddMarket called on cancelled prompt")
	}
}

func TestPromptRemoveError(t *testing.T) {
	m := New(Options{
		RemoveMarket: func(string) error {
			return errors.New("not tracked")
		},
	})

	m = press(t, m, runes("r"), runes("zzz"), tea.KeyMsg{Type: tea.KeyEnter})
	if !strings.Contains(m.status, "remove ZZZ") || !strings.Contains(m.status, "not tracked") {
		t.Errorf("status = %q, want remove error", m.status)
	}
}

func TestQuitKey(t *testing.T) {
	m := New(Options{})
	_, cmd := m.Update(runes("q"))
	if cmd == nil {
		t.Fatal("Update(q) returned nil cmd, want quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Update(q) cmd did not produce tea.QuitMsg")
	}
}

func TestToggleDemo(t *testing.T) {
	demo := false
	m := New(Options{
		ToggleDemo: func() bool {
			demo = !demo
			return demo
		},
	})

	m = press(t, m, runes("d"))
	if !m.demo {
		t.Error("demo = false after toggle, want true")
	}
	m = press(t, m, runes("d"))
	if m.demo {
		t.Error("demo = true after second toggle, want false")
	}
}

func TestClearEvents(t *testing.T) {
	cleared := false
	m := New(Options{
		ClearEvents: func() { cleared = true },
	})

	press(t, m, runes("c"))
	if !cleared {
		t.Error("ClearEvents not called on 'c'")
	}
}

func TestHelpOverlay(t *testing.T) {
	m := New(Options{})
	m = press(t, m, runes("h"))
	if !m.showHelp {
		t.Fatal("showHelp = false after 'h'")
	}
	if !strings.Contains(m.View(), "Key bindings") {
		t.Error("help view missing key bindings section")
	}

	m = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.showHelp {
		t.Error("showHelp = true after esc")
	}
}

func TestTickPullsData(t *testing.T) {
	calls := 0
	m := New(Options{
		Snapshot: func() []model.MarketView {
			calls++
			return []model.MarketView{{Ticker: "AAA"}}
		},
	})
	if calls != 1 {
		t.Fatalf("Snapshot calls after New = %d, want 1", calls)
	}

	next, cmd := m.Update(tickMsg(time.Now()))
	m = next.(Model)
	if calls != 2 {
		t.Errorf("Snapshot calls after tick = %d, want 2", calls)
	}
	if cmd == nil {
		t.Error("tick did not schedule next tick")
	}
	if len(m.markets) != 1 {
		t.Errorf("markets = %d rows, want 1", len(m.markets))
	}
}

func TestViewRendersTables(t *testing.T) {
	now := time.Now().UnixMicro()
	m := New(Options{
		Snapshot: func() []model.MarketView {
			return []model.MarketView{
				{
					Ticker: "INXD-25AUG29-B6325", YesBid: 47, YesAsk: 53, Mid: 50,
					Signal: model.SignalSafe, ClosesAt: now + 3600_000_000,
					LastUpdate: now, Volatility: 2.5, VolatilityOK: true,
				},
				{
					Ticker: "KXBTC-25AUG29-T118000", YesBid: 30, YesAsk: 38, Mid: 34,
					Signal: model.SignalNoQuote, Reason: model.ReasonSpreadBlowout,
					LastUpdate: now, OpenEvents: 1,
				},
			}
		},
		Events: func() []model.RiskEvent {
			return []model.RiskEvent{{
				Ticker: "KXBTC-25AUG29-T118000", Reason: model.ReasonSpreadBlowout,
				TriggerTS: now, T0Mid: 34,
				Moves: []model.WindowMove{
					{Window: 30 * time.Second, Result: model.WindowResult{Closed: true, HasData: true, YesAdverse: 4}},
					{Window: 2 * time.Minute, Result: model.WindowResult{}},
				},
				ShieldedMicros: 5_000_000, ShieldOpen: true,
			}}
		},
		Stats: func() metrics.Snapshot {
			return metrics.Snapshot{Cancels: 3, Updates: 120, PollP50: 12.5}
		},
		AvoidedCents: func() float64 { return 4 },
		ConnState:    func() feed.ConnState { return feed.StateConnected },
	})

	out := m.View()
	for _, want := range []string{
		"INXD-25AUG29-B6325",
		"SAFE",
		"NO_QUOTE",
		"SPREAD",
		"2.5¢",
		"4¢ (Y4/N0)",
		"…",
		"5.0s+",
		"cancels 3",
		"avoided 4¢",
		"connected",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestViewEmptySections(t *testing.T) {
	m := New(Options{})
	out := m.View()
	if !strings.Contains(out, "no markets tracked") {
		t.Error("View() missing empty-markets line")
	}
	if !strings.Contains(out, "no risk events") {
		t.Error("View() missing empty-events line")
	}
}

func TestEventRowsBounded(t *testing.T) {
	events := make([]model.RiskEvent, maxEventRows+5)
	for i := range events {
		events[i] = model.RiskEvent{Ticker: "AAA", TriggerTS: int64(i)}
	}
	m := New(Options{
		Events: func() []model.RiskEvent { return events },
	})

	out := m.View()
	if !strings.Contains(out, "and 5 more") {
		t.Error("View() missing overflow line for bounded event rows")
	}
}
