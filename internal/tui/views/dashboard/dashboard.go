// Package dashboard renders the stats row, breakdowns, sessions and recent
// events of the local view.
package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/visitorpulse/pulse/internal/client"
	"github.com/visitorpulse/pulse/internal/tui/theme"
)

const (
	topN        = 5
	maxSessions = 10
	maxEvents   = 10
)

type Model struct {
	Width int
	view  client.View
}

func New() Model {
	return Model{}
}

func (m *Model) SetView(v client.View) {
	m.view = v
}

func (m Model) View() string {
	width := max(m.Width, 40)

	sections := []string{
		m.renderStatsRow(width),
		m.renderBreakdowns(),
		m.renderSessions(),
		m.renderEvents(),
	}
	if a := m.renderAlert(); a != "" {
		sections = append(sections, a)
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderStatsRow(width int) string {
	s := m.view.Stats
	statStyle := lipgloss.NewStyle().Padding(0, 1)

	stats := []string{
		statStyle.Foreground(theme.ColorHealthy).Render(fmt.Sprintf("Active: %d", s.TotalActive)),
		statStyle.Foreground(theme.ColorBright).Render(fmt.Sprintf("Today: %d", s.TotalToday)),
		statStyle.Foreground(theme.ColorPageview).Render(fmt.Sprintf("Pages: %d", len(s.PagesVisited))),
		statStyle.Foreground(theme.ColorClick).Render(fmt.Sprintf("Countries: %d", len(s.CountriesVisited))),
	}
	content := strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

func (m Model) renderBreakdowns() string {
	columns := []string{
		renderTop("Top pages", m.view.Stats.PagesVisited),
		renderTop("Top countries", m.view.Stats.CountriesVisited),
		renderTop("Devices", m.view.Stats.DevicesUsed),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

type Entry struct {
	Key   string
	Count int
}

// Top returns up to n keys by descending count, ties broken by key.
func Top(counts map[string]int, n int) []Entry {
	out := make([]Entry, 0, len(counts))
	for k, c := range counts {
		out = append(out, Entry{k, c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func renderTop(title string, counts map[string]int) string {
	lines := []string{theme.StyleHeader.Render(title)}
	top := Top(counts, topN)
	if len(top) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("none yet"))
	}
	for _, e := range top {
		lines = append(lines, fmt.Sprintf("%-16s %5d", truncate(e.Key, 16), e.Count))
	}
	return lipgloss.NewStyle().Width(26).Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func (m Model) renderSessions() string {
	header := theme.StyleHeader.Render("  Active sessions")
	if len(m.view.Sessions) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  No active sessions"))
	}

	lines := []string{
		header,
		theme.StyleDimmed.Render(fmt.Sprintf("  %-14s %-18s %-8s %6s  %s", "SESSION", "PAGE", "COUNTRY", "TIME", "JOURNEY")),
	}
	for i, s := range m.view.Sessions {
		if i == maxSessions {
			lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  … %d more", len(m.view.Sessions)-maxSessions)))
			break
		}
		lines = append(lines, fmt.Sprintf("  %-14s %-18s %-8s %6s  %s",
			truncate(s.SessionID, 14),
			truncate(s.CurrentPage, 18),
			truncate(s.Country, 8),
			FormatDuration(s.Duration),
			truncate(strings.Join(s.Journey, " → "), 40),
		))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderEvents() string {
	header := theme.StyleHeader.Render("  Recent events")
	if len(m.view.Events) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, header, theme.StyleDimmed.Render("  Waiting for visitors"))
	}

	lines := []string{header}
	for i, e := range m.view.Events {
		if i == maxEvents {
			break
		}
		t := string(e.Type)
		glyph := lipgloss.NewStyle().Foreground(theme.EventColor(t)).Render(theme.EventGlyph(t))
		ts := "--:--:--"
		if !e.Timestamp.IsZero() {
			ts = e.Timestamp.Local().Format("15:04:05")
		}
		lines = append(lines, fmt.Sprintf("  %s %s %-11s %-18s %-8s %s",
			ts, glyph, t, truncate(e.Page, 18), truncate(e.Country, 8), e.Device()))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderAlert() string {
	a := m.view.LastAlert
	if a == nil {
		return ""
	}
	style := lipgloss.NewStyle().Bold(true).Foreground(theme.AlertColor(string(a.Level)))
	return style.Render(fmt.Sprintf("  [%s] %s", a.Level, a.Message))
}

// FormatDuration renders seconds as m:ss or h:mm:ss.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	h, rem := seconds/3600, seconds%3600
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, rem/60, rem%60)
	}
	return fmt.Sprintf("%d:%02d", rem/60, rem%60)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
