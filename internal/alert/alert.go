// Package alert turns summary statistics into dashboard alerts.
package alert

import (
	"fmt"

	"github.com/visitorpulse/pulse/internal/session"
)

// Level classifies an alert for display.
type Level string

const (
	LevelInfo      Level = "info"
	LevelWarning   Level = "warning"
	LevelMilestone Level = "milestone"
)

// Alert is broadcast unfiltered to every dashboard.
type Alert struct {
	Level   Level          `json:"level"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Thresholds controls when alerts fire.
type Thresholds struct {
	// MilestoneEvery fires a milestone whenever totalToday is a positive
	// multiple of it. Zero disables milestones.
	MilestoneEvery int
	// HighActivity fires a warning whenever totalActive exceeds it. Zero
	// disables the warning.
	HighActivity int
}

// DefaultThresholds are the stock values: a milestone every 100 events and a
// warning above 20 active visitors.
var DefaultThresholds = Thresholds{MilestoneEvery: 100, HighActivity: 20}

// Evaluate returns the alerts the stats satisfy, without any memory of
// previous calls. Milestones come before activity warnings.
func Evaluate(stats session.SummaryStats, t Thresholds) []Alert {
	var alerts []Alert
	if isMilestone(stats.TotalToday, t) {
		alerts = append(alerts, milestone(stats.TotalToday))
	}
	if isHighActivity(stats.TotalActive, t) {
		alerts = append(alerts, highActivity(stats.TotalActive))
	}
	return alerts
}

func isMilestone(totalToday int, t Thresholds) bool {
	return t.MilestoneEvery > 0 && totalToday > 0 && totalToday%t.MilestoneEvery == 0
}

func isHighActivity(totalActive int, t Thresholds) bool {
	return t.HighActivity > 0 && totalActive > t.HighActivity
}

func milestone(totalToday int) Alert {
	return Alert{
		Level:   LevelMilestone,
		Message: fmt.Sprintf("Milestone reached: %d visitors today!", totalToday),
		Details: map[string]any{"totalToday": totalToday},
	}
}

func highActivity(active int) Alert {
	return Alert{
		Level:   LevelWarning,
		Message: "High visitor activity detected!",
		Details: map[string]any{"activeVisitors": active},
	}
}
