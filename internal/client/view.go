package client

import (
	"encoding/json"
	"fmt"

	"github.com/visitorpulse/pulse/internal/alert"
	"github.com/visitorpulse/pulse/internal/session"
	"github.com/visitorpulse/pulse/internal/ws"
)

const (
	maxViewEvents   = 50
	maxViewSessions = 20
	maxViewAlerts   = 10
)

// View is the dashboard's local picture of the hub, rebuilt from inbound
// messages. Lists are newest-first.
type View struct {
	Stats      session.SummaryStats
	Events     []session.VisitorEvent
	Sessions   []session.Session
	Dashboards int
	LastAlert  *alert.Alert
	Alerts     []alert.Alert
	LastError  string
	Filter     *session.Filter
}

func newView() *View {
	return &View{Stats: session.NewSummaryStats()}
}

// clone returns a deep copy safe to hand to the UI goroutine.
func (v *View) clone() View {
	c := *v
	c.Stats = cloneStats(v.Stats)
	c.Events = make([]session.VisitorEvent, len(v.Events))
	for i, e := range v.Events {
		c.Events[i] = e.Clone()
	}
	c.Sessions = make([]session.Session, len(v.Sessions))
	for i := range v.Sessions {
		c.Sessions[i] = *v.Sessions[i].Clone()
	}
	c.Alerts = append([]alert.Alert(nil), v.Alerts...)
	if v.LastAlert != nil {
		a := *v.LastAlert
		c.LastAlert = &a
	}
	c.Filter = v.Filter.Normalize()
	return c
}

func cloneStats(s session.SummaryStats) session.SummaryStats {
	c := session.NewSummaryStats()
	c.TotalActive = s.TotalActive
	c.TotalToday = s.TotalToday
	for k, n := range s.PagesVisited {
		c.PagesVisited[k] = n
	}
	for k, n := range s.CountriesVisited {
		c.CountriesVisited[k] = n
	}
	for k, n := range s.DevicesUsed {
		c.DevicesUsed[k] = n
	}
	return c
}

// apply folds one server message into the view. Unknown types are ignored.
func (v *View) apply(t ws.MessageType, raw json.RawMessage) error {
	switch t {
	case ws.MsgUserConnected:
		var p ws.ConnectedPayload
		if err := decode(raw, &p); err != nil {
			return err
		}
		v.Dashboards = p.TotalDashboards

	case ws.MsgUserDisconnected:
		var p ws.DisconnectedPayload
		if err := decode(raw, &p); err != nil {
			return err
		}
		v.Dashboards = p.TotalDashboards

	case ws.MsgVisitorUpdate:
		var p ws.VisitorUpdatePayload
		if err := decode(raw, &p); err != nil {
			return err
		}
		if p.Event != nil {
			v.Events = prepend(v.Events, *p.Event, maxViewEvents)
		}
		v.Stats = withMaps(p.Stats)

	case ws.MsgSessionActivity:
		var p ws.SessionActivityPayload
		if err := decode(raw, &p); err != nil {
			return err
		}
		v.mergeActivity(p)

	case ws.MsgDetailedStatsResponse:
		var s session.SummaryStats
		if err := decode(raw, &s); err != nil {
			return err
		}
		v.Stats = withMaps(s)

	case ws.MsgFilteredSessions:
		var list []session.Session
		if err := decode(raw, &list); err != nil {
			return err
		}
		v.Sessions = list

	case ws.MsgFilteredEvents:
		var list []session.VisitorEvent
		if err := decode(raw, &list); err != nil {
			return err
		}
		v.Events = list

	case ws.MsgAlert:
		var a alert.Alert
		if err := decode(raw, &a); err != nil {
			return err
		}
		v.LastAlert = &a
		v.Alerts = prepend(v.Alerts, a, maxViewAlerts)

	case ws.MsgError:
		var p ws.ErrorPayload
		if err := decode(raw, &p); err != nil {
			return err
		}
		v.LastError = p.Message
	}
	return nil
}

func (v *View) mergeActivity(p ws.SessionActivityPayload) {
	for i := range v.Sessions {
		s := &v.Sessions[i]
		if s.SessionID != p.SessionID {
			continue
		}
		s.CurrentPage = p.CurrentPage
		s.Journey = p.Journey
		s.Duration = p.Duration
		return
	}
	v.Sessions = prepend(v.Sessions, session.Session{
		SessionID:   p.SessionID,
		CurrentPage: p.CurrentPage,
		Journey:     p.Journey,
		Duration:    p.Duration,
		IsActive:    true,
	}, maxViewSessions)
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func prepend[T any](list []T, item T, limit int) []T {
	out := make([]T, 0, min(len(list)+1, limit))
	out = append(out, item)
	for _, x := range list {
		if len(out) == limit {
			break
		}
		out = append(out, x)
	}
	return out
}

// withMaps replaces nil maps so renderers can index freely.
func withMaps(s session.SummaryStats) session.SummaryStats {
	if s.PagesVisited == nil {
		s.PagesVisited = map[string]int{}
	}
	if s.CountriesVisited == nil {
		s.CountriesVisited = map[string]int{}
	}
	if s.DevicesUsed == nil {
		s.DevicesUsed = map[string]int{}
	}
	return s
}
