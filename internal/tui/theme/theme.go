// Package theme provides the Lip Gloss palette and reusable styles for the
// dashboard. It is a leaf package with no internal imports.
package theme

import "github.com/charmbracelet/lipgloss"

// Event type colors.
var (
	ColorPageview   = lipgloss.Color("#3b82f6")
	ColorClick      = lipgloss.Color("#d97706")
	ColorSessionEnd = lipgloss.Color("#6b7280")
	ColorDefault    = lipgloss.Color("#9ca3af")
)

// Alert level colors.
var (
	ColorInfo      = lipgloss.Color("#06b6d4")
	ColorMilestone = lipgloss.Color("#a855f7")
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// EventColor returns the color for an event type.
func EventColor(eventType string) lipgloss.Color {
	switch eventType {
	case "pageview":
		return ColorPageview
	case "click":
		return ColorClick
	case "session_end":
		return ColorSessionEnd
	default:
		return ColorDefault
	}
}

// EventGlyph returns a Unicode glyph for an event type.
func EventGlyph(eventType string) string {
	switch eventType {
	case "pageview":
		return "◉"
	case "click":
		return "✦"
	case "session_end":
		return "✓"
	default:
		return "·"
	}
}

// AlertColor returns the color for an alert level.
func AlertColor(level string) lipgloss.Color {
	switch level {
	case "milestone":
		return ColorMilestone
	case "warning":
		return ColorWarning
	case "info":
		return ColorInfo
	default:
		return ColorDefault
	}
}

// Reusable styles.
var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)
)
