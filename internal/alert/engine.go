package alert

import (
	"fmt"
	"sync"
	"time"

	"github.com/visitorpulse/pulse/internal/session"
)

// Policy decides how often a satisfied condition is re-emitted.
type Policy string

const (
	// PolicyOnce emits each milestone value once per day and the activity
	// warning once per crossing above the threshold.
	PolicyOnce Policy = "once"
	// PolicyRepeat emits on every evaluation whose stats satisfy a condition.
	PolicyRepeat Policy = "repeat"
)

// ParsePolicy maps a config string to a Policy. Empty selects PolicyOnce.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyOnce:
		return PolicyOnce, nil
	case PolicyRepeat:
		return PolicyRepeat, nil
	}
	return "", fmt.Errorf("unknown alert policy %q", s)
}

// Engine evaluates stats under a Policy. It is safe for concurrent use.
type Engine struct {
	thresholds Thresholds
	policy     Policy

	mu            sync.Mutex
	milestoneDay  time.Time
	lastMilestone int
	highActive    bool
}

// NewEngine returns an engine with the given thresholds and policy.
func NewEngine(t Thresholds, p Policy) *Engine {
	if p == "" {
		p = PolicyOnce
	}
	return &Engine{thresholds: t, policy: p}
}

// Policy returns the engine's delivery policy.
func (e *Engine) Policy() Policy { return e.policy }

// Evaluate returns the alerts to broadcast for stats. Under PolicyOnce a
// milestone is remembered per stats.Day, so each day reaches it afresh.
func (e *Engine) Evaluate(stats session.SummaryStats) []Alert {
	if e.policy == PolicyRepeat {
		return Evaluate(stats, e.thresholds)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !stats.Day.Equal(e.milestoneDay) {
		e.milestoneDay = stats.Day
		e.lastMilestone = 0
	}

	var alerts []Alert
	if isMilestone(stats.TotalToday, e.thresholds) && stats.TotalToday != e.lastMilestone {
		e.lastMilestone = stats.TotalToday
		alerts = append(alerts, milestone(stats.TotalToday))
	}

	high := isHighActivity(stats.TotalActive, e.thresholds)
	if high && !e.highActive {
		alerts = append(alerts, highActivity(stats.TotalActive))
	}
	e.highActive = high
	return alerts
}

// Reset forgets previously emitted alerts.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.milestoneDay = time.Time{}
	e.lastMilestone = 0
	e.highActive = false
	e.mu.Unlock()
}
