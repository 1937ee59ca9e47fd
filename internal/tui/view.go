package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/shieldwatch/observer/internal/feed"
	"github.com/shieldwatch/observer/internal/model"
)

// maxEventRows bounds the risk event table; older rows collapse into a
// one-line count so the stats footer stays on screen.
const maxEventRows = 10

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if m.showHelp {
		b.WriteString(m.renderHelp())
		return b.String()
	}

	w := m.width
	if w < 80 {
		w = 110
	}

	b.WriteString(m.renderMarkets(w))
	b.WriteString("\n")
	b.WriteString(m.renderEvents(w))
	b.WriteString("\n")
	b.WriteString(m.renderStats(w))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

func (m Model) renderHeader() string {
	mode := "live"
	if m.demo {
		mode = "demo"
	}
	title := headerStyle.Render("shieldwatch observer")
	state := stateStyle(m.conn).Render(m.conn.String())
	info := dimStyle.Render(fmt.Sprintf(" | %d markets | %s feed | up %s",
		len(m.markets), mode, formatDuration(m.stats.Uptime)))
	return title + " " + state + info
}

func (m Model) renderMarkets(w int) string {
	var lines []string
	lines = append(lines, titleStyle.Render("Markets"))
	lines = append(lines, strings.Repeat("─", w-2))
	lines = append(lines, dimStyle.Render(fmt.Sprintf(
		"%-24s %4s %4s %7s %7s  %-9s %-8s %9s %7s %4s",
		"TICKER", "BID", "ASK", "MID", "VOL", "SIGNAL", "REASON", "CLOSES", "AGE", "EVT")))

	if len(m.markets) == 0 {
		lines = append(lines, dimStyle.Render("  no markets tracked (a to add)"))
		return strings.Join(lines, "\n") + "\n"
	}

	now := time.Now().UnixMicro()
	for _, v := range m.markets {
		badge := signalStyle(v.Signal).Render(fmt.Sprintf("%-9s", string(v.Signal)))
		lines = append(lines, fmt.Sprintf(
			"%-24s %4d %4d %7.1f %7s  %s %-8s %9s %7s %4d",
			v.Ticker, v.YesBid, v.YesAsk, v.Mid,
			formatVol(v.Volatility, v.VolatilityOK),
			badge, v.Reason.Label(),
			formatClose(v.ClosesAt, now),
			formatAge(v.LastUpdate, now),
			v.OpenEvents))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) renderEvents(w int) string {
	var lines []string
	lines = append(lines, titleStyle.Render(fmt.Sprintf("Risk Events (%d)", len(m.events))))
	lines = append(lines, strings.Repeat("─", w-2))

	if len(m.events) == 0 {
		lines = append(lines, dimStyle.Render("  no risk events"))
		return strings.Join(lines, "\n") + "\n"
	}

	// Column headers come from the first event's configured windows.
	head := fmt.Sprintf("%-9s %-24s %-8s %6s", "TIME", "TICKER", "REASON", "T0MID")
	for _, mv := range m.events[0].Moves {
		head += fmt.Sprintf(" %-13s", formatWindow(mv.Window))
	}
	head += fmt.Sprintf(" %8s", "SHIELD")
	lines = append(lines, dimStyle.Render(head))

	rows := m.events
	if len(rows) > maxEventRows {
		rows = rows[:maxEventRows]
	}
	for _, ev := range rows {
		row := fmt.Sprintf("%-9s %-24s %-8s %6.1f",
			time.UnixMicro(ev.TriggerTS).Format("15:04:05"),
			ev.Ticker, ev.Reason.Label(), ev.T0Mid)
		for _, mv := range ev.Moves {
			row += fmt.Sprintf(" %-13s", moveCell(mv.Result))
		}
		row += fmt.Sprintf(" %8s", formatShield(ev.ShieldedMicros, ev.ShieldOpen))
		if ev.ShieldOpen {
			row = noQuoteStyle.Render(row)
		}
		lines = append(lines, row)
	}
	if n := len(m.events) - maxEventRows; n > 0 {
		lines = append(lines, dimStyle.Render(fmt.Sprintf("  … and %d more (c to clear)", n)))
	}
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) renderStats(w int) string {
	s := m.stats
	var lines []string
	lines = append(lines, titleStyle.Render("Stats"))
	lines = append(lines, strings.Repeat("─", w-2))
	lines = append(lines, fmt.Sprintf(
		"cancels %d | avoided %.0f¢ | updates %d | dupes %d | dropped %d | malformed %d | reconnects %d | expired %d",
		s.Cancels, m.avoided, s.Updates, s.Duplicates, s.Dropped, s.Malformed, s.Reconnects, s.Expired))
	lines = append(lines, dimStyle.Render(fmt.Sprintf(
		"poll %.1f/%.1fms | compute %.1f/%.1fms | push rtt %.1f/%.1fms (p50/p99)",
		s.PollP50, s.PollP99, s.ComputeP50, s.ComputeP99, s.PushRTTP50, s.PushRTTP99)))
	return strings.Join(lines, "\n") + "\n"
}

func (m Model) renderFooter() string {
	switch m.mode {
	case inputAdd:
		return promptStyle.Render("add ticker> ") + m.input + "█"
	case inputRemove:
		return promptStyle.Render("remove ticker> ") + m.input + "█"
	}
	if m.status != "" {
		return errorStyle.Render(m.status) + "\n" + dimStyle.Render(keyHints)
	}
	return dimStyle.Render(keyHints)
}

const keyHints = "a add · r remove · c clear · d demo · h help · q quit"

func (m Model) renderHelp() string {
	var lines []string
	lines = append(lines, titleStyle.Render("Key bindings"))
	lines = append(lines, "")
	lines = append(lines, "  a        add a market (prompts for ticker)")
	lines = append(lines, "  r        remove a market (prompts for ticker)")
	lines = append(lines, "  c        clear the risk event log")
	lines = append(lines, "  d        toggle the demo feed")
	lines = append(lines, "  h, ?     toggle this help")
	lines = append(lines, "  esc      dismiss prompt or help")
	lines = append(lines, "  q        quit")
	lines = append(lines, "")
	lines = append(lines, dimStyle.Render("press h or esc to return"))
	return strings.Join(lines, "\n")
}

func signalStyle(s model.Signal) lipgloss.Style {
	switch s {
	case model.SignalNoQuote:
		return noQuoteStyle
	case model.SignalCaution:
		return cautionStyle
	default:
		return safeStyle
	}
}

func stateStyle(s feed.ConnState) lipgloss.Style {
	switch s {
	case feed.StateConnected:
		return safeStyle
	case feed.StateStale, feed.StateReconnecting, feed.StateConnecting:
		return cautionStyle
	default:
		return noQuoteStyle
	}
}

// moveCell renders one look-forward window: ellipsis while the window is
// still collecting, a dash pair when it closed empty, and the headline move
// with its directional split otherwise.
func moveCell(r model.WindowResult) string {
	if !r.Closed {
		return "…"
	}
	if !r.HasData {
		return "--"
	}
	return fmt.Sprintf("%.0f¢ (Y%.0f/N%.0f)", r.Magnitude(), r.YesAdverse, r.NoAdverse)
}

func formatWindow(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

func formatVol(v float64, ok bool) string {
	if !ok {
		return "--"
	}
	return fmt.Sprintf("%.1f¢", v)
}

func formatClose(closesAt, now int64) string {
	if closesAt == 0 {
		return "--"
	}
	if closesAt <= now {
		return "closed"
	}
	return formatDuration(time.Duration(closesAt-now) * time.Microsecond)
}

func formatAge(lastUpdate, now int64) string {
	if lastUpdate == 0 {
		return "--"
	}
	return formatDuration(time.Duration(now-lastUpdate) * time.Microsecond)
}

func formatShield(micros int64, open bool) string {
	s := formatDuration(time.Duration(micros) * time.Microsecond)
	if open {
		s += "+"
	}
	return s
}

func formatDuration(dur time.Duration) string {
	if dur < 0 {
		dur = 0
	}
	if dur < time.Second {
		return fmt.Sprintf("%dms", dur.Milliseconds())
	}
	if dur < time.Minute {
		return fmt.Sprintf("%.1fs", dur.Seconds())
	}
	if dur < time.Hour {
		minutes := int(dur.Minutes())
		seconds := int(dur.Seconds()) % 60
		return fmt.Sprintf("%dm%02ds", minutes, seconds)
	}
	hours := int(dur.Hours())
	minutes := int(dur.Minutes()) % 60
	return fmt.Sprintf("%dh%02dm", hours, minutes)
}
