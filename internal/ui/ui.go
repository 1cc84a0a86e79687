// Package ui provides the terminal dashboard using Bubble Tea.
package ui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/star/orbitwatch/internal/sim"
)

// ViewMode represents the current UI view.
type ViewMode int

const (
	ViewDashboard ViewMode = iota
	ViewSatellites
	ViewUsers
	viewCount
)

func (v ViewMode) String() string {
	switch v {
	case ViewDashboard:
		return "Alerts"
	case ViewSatellites:
		return "Satellites"
	case ViewUsers:
		return "User satellites"
	}
	return "?"
}

// Msg types for Bubble Tea
type (
	// TickMsg triggers one simulator step.
	TickMsg time.Time

	// SnapshotMsg carries the result of a simulator step.
	SnapshotMsg struct {
		Snapshot *sim.Snapshot
		Err      error
	}
)

// Model is the root Bubble Tea model.
type Model struct {
	sim      *sim.Simulator
	interval time.Duration

	viewMode ViewMode
	width    int
	height   int
	paused   bool
	scroll   int
	status   string

	snapshot *sim.Snapshot
	err      error
}

// New creates a root model that steps simulator every interval.
func New(simulator *sim.Simulator, interval time.Duration) Model {
	if interval <= 0 {
		interval = time.Second
	}
	return Model{
		sim:      simulator,
		interval: interval,
		snapshot: simulator.Snapshot(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return stepCmd(m.sim)
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func stepCmd(s *sim.Simulator) tea.Cmd {
	return func() tea.Msg {
		snap, err := s.Tick(context.Background())
		return SnapshotMsg{Snapshot: snap, Err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		if m.paused {
			return m, nil
		}
		return m, stepCmd(m.sim)

	case SnapshotMsg:
		if msg.Err != nil {
			m.err = msg.Err
		} else {
			m.err = nil
			m.snapshot = msg.Snapshot
		}
		if m.paused {
			return m, nil
		}
		return m, tickCmd(m.interval)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "1", "a":
		m.setView(ViewDashboard)
	case "2", "s":
		m.setView(ViewSatellites)
	case "3", "u":
		m.setView(ViewUsers)
	case "tab":
		m.setView((m.viewMode + 1) % viewCount)

	case "p", " ", "space":
		m.paused = !m.paused
		if m.paused {
			m.status = "paused"
			return m, nil
		}
		m.status = "resumed"
		return m, stepCmd(m.sim)

	case "n":
		// Single step while paused.
		if m.paused {
			return m, stepCmd(m.sim)
		}

	case "c":
		n := m.sim.ClearUserSatellites()
		m.status = fmt.Sprintf("cleared %d user satellites", n)

	case "down", "j":
		m.scroll++
	case "up", "k":
		if m.scroll > 0 {
			m.scroll--
		}
	}
	return m, nil
}

func (m *Model) setView(v ViewMode) {
	if m.viewMode != v {
		m.viewMode = v
		m.scroll = 0
	}
}

// View implements tea.Model.
func (m Model) View() string {
	return m.render(true)
}
