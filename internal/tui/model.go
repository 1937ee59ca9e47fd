package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/shieldwatch/observer/internal/feed"
	"github.com/shieldwatch/observer/internal/metrics"
	"github.com/shieldwatch/observer/internal/model"
)

// Options wires the dashboard to the rest of the process. All callbacks are
// invoked from the bubbletea goroutine and must be safe to call concurrently
// with the feed pipeline; a nil callback leaves its section empty.
type Options struct {
	Refresh time.Duration

	Snapshot     func() []model.MarketView
	Events       func() []model.RiskEvent
	Stats        func() metrics.Snapshot
	AvoidedCents func() float64
	ConnState    func() feed.ConnState
	DemoMode     func() bool

	AddMarket    func(ticker string) error
	RemoveMarket func(ticker string) error
	ClearEvents  func()
	ToggleDemo   func() bool
}

type inputMode int

const (
	inputNone inputMode = iota
	inputAdd
	inputRemove
)

type tickMsg time.Time

// Model is the bubbletea state for the dashboard.
type Model struct {
	opts   Options
	width  int
	height int

	showHelp bool
	mode     inputMode
	input    string
	status   string

	demo    bool
	conn    feed.ConnState
	markets []model.MarketView
	events  []model.RiskEvent
	stats   metrics.Snapshot
	avoided float64
}

// New builds the dashboard model. The first frame renders from an immediate
// pull so the screen is never blank while waiting for the first tick.
func New(opts Options) Model {
	if opts.Refresh <= 0 {
		opts.Refresh = time.Second
	}
	m := Model{opts: opts}
	m.pull()
	return m
}

func (m *Model) pull() {
	if m.opts.Snapshot != nil {
		m.markets = m.opts.Snapshot()
	}
	if m.opts.Events != nil {
		m.events = m.opts.Events()
	}
	if m.opts.Stats != nil {
		m.stats = m.opts.Stats()
	}
	if m.opts.AvoidedCents != nil {
		m.avoided = m.opts.AvoidedCents()
	}
	if m.opts.ConnState != nil {
		m.conn = m.opts.ConnState()
	}
	if m.opts.DemoMode != nil {
		m.demo = m.opts.DemoMode()
	}
}

func (m Model) Init() tea.Cmd {
	return tickCmd(m.opts.Refresh)
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.mode != inputNone {
			return m.updatePrompt(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "a":
			m.mode = inputAdd
			m.input = ""
			m.status = ""
		case "r":
			m.mode = inputRemove
			m.input = ""
			m.status = ""
		case "c":
			if m.opts.ClearEvents != nil {
				m.opts.ClearEvents()
				m.pull()
			}
		case "d":
			if m.opts.ToggleDemo != nil {
				m.demo = m.opts.ToggleDemo()
				m.pull()
			}
		case "h", "?":
			m.showHelp = !m.showHelp
		case "esc":
			m.showHelp = false
			m.status = ""
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.pull()
		return m, tickCmd(m.opts.Refresh)
	}
	return m, nil
}

// updatePrompt handles keys while the inline add/remove prompt is active.
func (m Model) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.mode = inputNone
		m.input = ""
	case "enter":
		ticker := strings.ToUpper(strings.TrimSpace(m.input))
		mode := m.mode
		m.mode = inputNone
		m.input = ""
		if ticker == "" {
			return m, nil
		}
		switch mode {
		case inputAdd:
			if m.opts.AddMarket != nil {
				if err := m.opts.AddMarket(ticker); err != nil {
					m.status = "add " + ticker + ": " + err.Error()
					return m, nil
				}
			}
		case inputRemove:
			if m.opts.RemoveMarket != nil {
				if err := m.opts.RemoveMarket(ticker); err != nil {
					m.status = "remove " + ticker + ": " + err.Error()
					return m, nil
				}
			}
		}
		m.pull()
	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	default:
		if msg.Type == tea.KeyRunes {
			m.input += string(msg.Runes)
		}
	}
	return m, nil
}
