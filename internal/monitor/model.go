package monitor

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/sensorlink/internal/connection"
)

// Messages for async operations
type tickMsg time.Time
type pingDoneMsg PingOutcome
type paramsDoneMsg ParamsOutcome
type paramsChangedMsg struct{}

// Model is the interactive monitor screen.
type Model struct {
	ctx    context.Context
	device Device
	opts   Options

	// Request state
	Pinging   bool
	Resolving bool
	LastPing  *PingOutcome
	Params    *ParamsOutcome

	// UI state
	Width   int
	Height  int
	Spinner spinner.Model
	Help    help.Model
	Keys    keyMap
}

// NewModel creates a monitor model for device.
func NewModel(ctx context.Context, device Device, opts Options) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return Model{
		ctx:       ctx,
		device:    device,
		opts:      opts,
		Resolving: true,
		Width:     MinWidth,
		Height:    24,
		Spinner:   s,
		Help:      help.New(),
		Keys:      newKeyMap(),
	}
}

// Init starts the ticker, whose first tick pings immediately, and the
// first parameter resolution.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.Spinner.Tick,
		func() tea.Msg { return tickMsg(time.Now()) },
		m.resolveParams(),
	)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.Keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.Keys.Help):
			m.Help.ShowAll = !m.Help.ShowAll
		case key.Matches(msg, m.Keys.Ping):
			return m.startPing()
		case key.Matches(msg, m.Keys.Params):
			return m.startResolve()
		}
		return m, nil

	case tickMsg:
		next, cmd := m.startPing()
		return next, tea.Batch(cmd, m.tick())

	case pingDoneMsg:
		m.Pinging = false
		out := PingOutcome(msg)
		m.LastPing = &out
		return m, nil

	case paramsChangedMsg:
		return m.startResolve()

	case paramsDoneMsg:
		m.Resolving = false
		out := ParamsOutcome(msg)
		m.Params = &out
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// startPing issues a ping unless one is already in flight.
func (m Model) startPing() (tea.Model, tea.Cmd) {
	if m.Pinging {
		return m, nil
	}
	m.Pinging = true
	return m, m.ping()
}

func (m Model) startResolve() (tea.Model, tea.Cmd) {
	if m.Resolving {
		return m, nil
	}
	m.Resolving = true
	return m, m.resolveParams()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.interval(), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) ping() tea.Cmd {
	return func() tea.Msg {
		return pingDoneMsg(pingOnce(m.ctx, m.device))
	}
}

func (m Model) resolveParams() tea.Cmd {
	return func() tea.Msg {
		return paramsDoneMsg(resolveOnce(m.ctx, m.device, m.opts.Base))
	}
}

func pingOnce(ctx context.Context, d Device) PingOutcome {
	res, err := d.Ping(ctx)
	return PingOutcome{At: time.Now(), Result: res, Err: err}
}

func resolveOnce(ctx context.Context, d Device, base connection.Params) ParamsOutcome {
	params, report := d.ResolveParams(ctx, base)
	return ParamsOutcome{At: time.Now(), Params: params, Report: report}
}
