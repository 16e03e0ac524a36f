// Package ui hosts the interactive dashboard: a bubbletea model whose
// serialized Update loop plays the dispatcher role, with runtime events
// handed off through a channel-backed command and the bubbles spinner
// supplying animator ticks.
package ui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"agenttree/internal/dispatch"
	"agenttree/internal/event"
	"agenttree/internal/render"
)

type eventMsg struct {
	ev event.Envelope
}

type sourceClosedMsg struct{}

// waitEvent blocks on the source channel and delivers the next event into
// the program's single-threaded loop. Re-armed after every delivery.
func waitEvent(ch <-chan event.Envelope) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return sourceClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

// Model is the dashboard program state. All mutation happens inside Update;
// View is a pure read of the session snapshot taken at the last message.
type Model struct {
	session *dispatch.Session
	events  <-chan event.Envelope
	spinner spinner.Model
	opts    render.Options
	now     time.Time
	width   int
	done    bool
}

// New builds the model around an event channel.
func New(events <-chan event.Envelope, opts render.Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: render.SpinnerFrames,
		FPS:    dispatch.DefaultTickInterval,
	}
	return Model{
		session: dispatch.NewSession(),
		events:  events,
		spinner: sp,
		opts:    opts,
		now:     time.Now(),
		width:   opts.Width,
	}
}

// Session exposes the session for the final export after the program exits.
func (m Model) Session() *dispatch.Session { return m.session }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		waitEvent(m.events),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.now = time.Now()
		m.session.HandleEvent(msg.ev)
		if m.session.Phase() == dispatch.PhaseDraining {
			m.session.Close()
			m.done = true
			return m, tea.Quit
		}
		return m, waitEvent(m.events)

	case sourceClosedMsg:
		m.now = time.Now()
		m.session.EndOfStream()
		m.session.Close()
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		m.now = time.Now()
		m.session.Tick()
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.done {
			return m, nil
		}
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.now = time.Now()
			m.session.Interrupt()
			m.done = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	opts := m.opts
	opts.Width = m.width
	opts.Status = m.session.Status()
	lines := render.Frame(m.session.Tree(), m.session.SpinnerPhase(), m.now, opts)
	return strings.Join(lines, "\n") + "\n"
}
