package status

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/visitorpulse/pulse/internal/client"
	"github.com/visitorpulse/pulse/internal/session"
	"github.com/visitorpulse/pulse/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Status     client.Status
	Dashboards int
	Filter     *session.Filter
	Width      int
}

func New() Model {
	return Model{}
}

// ConnectionLabel describes the connection state in words.
func ConnectionLabel(st client.Status) string {
	switch st.State {
	case client.Connected:
		return "● Connected"
	case client.Connecting:
		return "◌ Connecting..."
	case client.Reconnecting:
		return fmt.Sprintf("↻ Reconnecting (attempt %d/%d in %s)", st.Attempt, client.MaxReconnectAttempts, st.Delay)
	default:
		return "○ Disconnected (R to reconnect)"
	}
}

func connectionColor(s client.State) lipgloss.Color {
	switch s {
	case client.Connected:
		return theme.ColorHealthy
	case client.Connecting, client.Reconnecting:
		return theme.ColorWarning
	default:
		return theme.ColorDanger
	}
}

// FilterLabel renders the active filter, or "all traffic".
func FilterLabel(f *session.Filter) string {
	if f.IsEmpty() {
		return "all traffic"
	}
	var parts []string
	if f.Page != "" {
		parts = append(parts, "page="+f.Page)
	}
	if f.Country != "" {
		parts = append(parts, "country="+f.Country)
	}
	if f.Device != "" {
		parts = append(parts, "device="+f.Device)
	}
	return strings.Join(parts, " ")
}

// View renders the status bar.
func (m Model) View() string {
	width := max(m.Width, 40)

	conn := lipgloss.NewStyle().Foreground(connectionColor(m.Status.State)).Render(ConnectionLabel(m.Status))
	dashboards := fmt.Sprintf("%d dashboards", m.Dashboards)
	filter := "filter: " + FilterLabel(m.Filter)

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := conn + sep + dashboards + sep + filter

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
