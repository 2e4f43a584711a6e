// Package tui is the terminal dashboard: a Bubble Tea model over the client
// manager's local view.
package tui

import (
	"errors"
	"sort"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/visitorpulse/pulse/internal/client"
	"github.com/visitorpulse/pulse/internal/session"
	"github.com/visitorpulse/pulse/internal/tui/theme"
	"github.com/visitorpulse/pulse/internal/tui/views/dashboard"
	"github.com/visitorpulse/pulse/internal/tui/views/status"
)

// Controller is the part of client.Manager the dashboard drives.
type Controller interface {
	Status() client.Status
	View() client.View
	Connect() bool
	ApplyFilter(f session.Filter) error
	ClearFilters() error
	RequestStats() error
	Close()
}

// refreshMsg signals that the manager's state changed.
type refreshMsg struct{}

// Model is the root Bubble Tea model.
type Model struct {
	ctrl    Controller
	updates <-chan struct{}

	keys   KeyMap
	width  int
	height int

	status client.Status
	view   client.View
	notice string

	// Dimension values seen so far, so filters can cycle through values
	// hidden by the current filter.
	seenPages     map[string]bool
	seenCountries map[string]bool
	seenDevices   map[string]bool

	statusBar status.Model
	dashboard dashboard.Model
}

// New creates the root model. updates receives a value whenever ctrl has
// something new to show; sends may be coalesced.
func New(ctrl Controller, updates <-chan struct{}) Model {
	return Model{
		ctrl:          ctrl,
		updates:       updates,
		keys:          DefaultKeyMap(),
		seenPages:     map[string]bool{},
		seenCountries: map[string]bool{},
		seenDevices:   map[string]bool{},
		statusBar:     status.New(),
		dashboard:     dashboard.New(),
	}
}

// Init starts the connection and begins listening for updates.
func (m Model) Init() tea.Cmd {
	m.ctrl.Connect()
	return m.waitForUpdate()
}

func (m Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-m.updates; !ok {
			return nil
		}
		return refreshMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case refreshMsg:
		m.refresh()
		return m, m.waitForUpdate()
	}
	return m, nil
}

func (m *Model) refresh() {
	m.status = m.ctrl.Status()
	m.view = m.ctrl.View()

	for k := range m.view.Stats.PagesVisited {
		m.seenPages[k] = true
	}
	for k := range m.view.Stats.CountriesVisited {
		m.seenCountries[k] = true
	}
	for k := range m.view.Stats.DevicesUsed {
		m.seenDevices[k] = true
	}
	for _, e := range m.view.Events {
		m.seenPages[e.Page] = true
		m.seenCountries[e.Country] = true
		if d := e.Device(); d != "" {
			m.seenDevices[d] = true
		}
	}

	m.statusBar.Status = m.status
	m.statusBar.Dashboards = m.view.Dashboards
	m.statusBar.Filter = m.view.Filter
	m.dashboard.SetView(m.view)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.ctrl.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Page):
		f := m.currentFilter()
		f.Page = cycle(m.seenPages, f.Page)
		m.report(m.ctrl.ApplyFilter(f))

	case key.Matches(msg, m.keys.Country):
		f := m.currentFilter()
		f.Country = cycle(m.seenCountries, f.Country)
		m.report(m.ctrl.ApplyFilter(f))

	case key.Matches(msg, m.keys.Device):
		f := m.currentFilter()
		f.Device = cycle(m.seenDevices, f.Device)
		m.report(m.ctrl.ApplyFilter(f))

	case key.Matches(msg, m.keys.Clear):
		m.report(m.ctrl.ClearFilters())

	case key.Matches(msg, m.keys.Refresh):
		m.report(m.ctrl.RequestStats())

	case key.Matches(msg, m.keys.Reconnect):
		if m.ctrl.Connect() {
			m.notice = "reconnecting..."
		} else {
			m.notice = "reconnect is only available while disconnected"
		}
	default:
		return m, nil
	}

	m.refresh()
	return m, nil
}

func (m Model) currentFilter() session.Filter {
	if m.view.Filter == nil {
		return session.Filter{}
	}
	return *m.view.Filter
}

func (m *Model) report(err error) {
	switch {
	case err == nil:
		m.notice = ""
	case errors.Is(err, client.ErrNotConnected):
		m.notice = "not connected: filter applies on reconnect"
	default:
		m.notice = err.Error()
	}
}

// cycle returns the value after current in sorted order, wrapping to "" (no
// filter) after the last one.
func cycle(seen map[string]bool, current string) string {
	values := make([]string, 0, len(seen))
	for v := range seen {
		if v != "" {
			values = append(values, v)
		}
	}
	sort.Strings(values)
	if len(values) == 0 {
		return ""
	}
	if current == "" {
		return values[0]
	}
	i := sort.SearchStrings(values, current)
	if i < len(values) && values[i] == current {
		i++
	}
	if i >= len(values) {
		return ""
	}
	return values[i]
}

// View renders the full dashboard.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{m.statusBar.View()}
	if m.status.State == client.Disconnected && m.status.LastErr != nil {
		overlay := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorDanger).
			Render("  DISCONNECTED: " + m.status.LastErr.Error())
		sections = append(sections, overlay)
	}
	sections = append(sections, m.dashboard.View())
	if m.view.LastError != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("  server: "+m.view.LastError))
	}
	if m.notice != "" {
		sections = append(sections, lipgloss.NewStyle().Foreground(theme.ColorWarning).Render("  "+m.notice))
	}
	sections = append(sections, theme.StyleDimmed.Render(m.keys.helpLine()))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}
