package client

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visitorpulse/pulse/internal/alert"
	"github.com/visitorpulse/pulse/internal/session"
	"github.com/visitorpulse/pulse/internal/ws"
)

func applyJSON(t *testing.T, v *View, typ ws.MessageType, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, v.apply(typ, raw))
}

func TestView_VisitorUpdate(t *testing.T) {
	v := newView()

	applyJSON(t, v, ws.MsgVisitorUpdate, ws.VisitorUpdatePayload{
		Event: &session.VisitorEvent{SessionID: "s1", Page: "/a"},
		Stats: session.SummaryStats{TotalToday: 1},
	})
	// Stats-only update from a non-matching event.
	applyJSON(t, v, ws.MsgVisitorUpdate, map[string]any{
		"stats": map[string]any{"totalActive": 4, "totalToday": 2},
	})

	require.Len(t, v.Events, 1)
	assert.Equal(t, 2, v.Stats.TotalToday)
	assert.Equal(t, 4, v.Stats.TotalActive)
	assert.NotNil(t, v.Stats.PagesVisited)
}

func TestView_EventsCapped(t *testing.T) {
	v := newView()
	for i := 0; i < maxViewEvents+5; i++ {
		applyJSON(t, v, ws.MsgVisitorUpdate, ws.VisitorUpdatePayload{
			Event: &session.VisitorEvent{SessionID: fmt.Sprintf("s%d", i), Page: "/"},
		})
	}
	require.Len(t, v.Events, maxViewEvents)
	assert.Equal(t, fmt.Sprintf("s%d", maxViewEvents+4), v.Events[0].SessionID, "newest first")
}

func TestView_SessionActivityMergesOrPrepends(t *testing.T) {
	v := newView()
	applyJSON(t, v, ws.MsgFilteredSessions, []session.Session{
		{SessionID: "old", CurrentPage: "/a", Journey: []string{"/a"}, IsActive: true},
	})

	applyJSON(t, v, ws.MsgSessionActivity, ws.SessionActivityPayload{
		SessionID: "old", CurrentPage: "/b", Journey: []string{"/a", "/b"}, Duration: 12,
	})
	applyJSON(t, v, ws.MsgSessionActivity, ws.SessionActivityPayload{
		SessionID: "new", CurrentPage: "/x", Journey: []string{"/x"},
	})

	require.Len(t, v.Sessions, 2)
	assert.Equal(t, "new", v.Sessions[0].SessionID)
	assert.Equal(t, "/b", v.Sessions[1].CurrentPage)
	assert.Equal(t, int64(12), v.Sessions[1].Duration)
	assert.Equal(t, []string{"/a", "/b"}, v.Sessions[1].Journey)
}

func TestView_SessionsCapped(t *testing.T) {
	v := newView()
	for i := 0; i < maxViewSessions+3; i++ {
		applyJSON(t, v, ws.MsgSessionActivity, ws.SessionActivityPayload{SessionID: fmt.Sprintf("s%d", i)})
	}
	assert.Len(t, v.Sessions, maxViewSessions)
}

func TestView_ReplacingMessages(t *testing.T) {
	v := newView()
	applyJSON(t, v, ws.MsgVisitorUpdate, ws.VisitorUpdatePayload{Event: &session.VisitorEvent{SessionID: "gone"}})

	applyJSON(t, v, ws.MsgDetailedStatsResponse, session.SummaryStats{
		TotalActive: 2, CountriesVisited: map[string]int{"India": 2},
	})
	applyJSON(t, v, ws.MsgFilteredEvents, []session.VisitorEvent{{SessionID: "e1"}, {SessionID: "e2"}})

	assert.Equal(t, 2, v.Stats.TotalActive)
	assert.Equal(t, map[string]int{"India": 2}, v.Stats.CountriesVisited)
	require.Len(t, v.Events, 2)
	assert.Equal(t, "e1", v.Events[0].SessionID)
}

func TestView_AlertsAndErrors(t *testing.T) {
	v := newView()
	for i := 1; i <= maxViewAlerts+2; i++ {
		applyJSON(t, v, ws.MsgAlert, alert.Alert{Level: alert.LevelMilestone, Message: fmt.Sprintf("m%d", i)})
	}
	applyJSON(t, v, ws.MsgError, ws.ErrorPayload{Message: "Invalid message format"})

	require.NotNil(t, v.LastAlert)
	assert.Equal(t, fmt.Sprintf("m%d", maxViewAlerts+2), v.LastAlert.Message)
	assert.Len(t, v.Alerts, maxViewAlerts)
	assert.Equal(t, "Invalid message format", v.LastError)
}

func TestView_UnknownTypeIgnored(t *testing.T) {
	v := newView()
	assert.NoError(t, v.apply("leaderboard", json.RawMessage(`{"x":1}`)))
}

func TestView_BadPayload(t *testing.T) {
	v := newView()
	assert.Error(t, v.apply(ws.MsgUserConnected, json.RawMessage(`"three"`)))
	assert.Zero(t, v.Dashboards)
}

func TestView_CloneIsIndependent(t *testing.T) {
	v := newView()
	applyJSON(t, v, ws.MsgDetailedStatsResponse, session.SummaryStats{PagesVisited: map[string]int{"/": 1}})
	applyJSON(t, v, ws.MsgFilteredSessions, []session.Session{{SessionID: "s1", Journey: []string{"/"}}})

	c := v.clone()
	c.Stats.PagesVisited["/"] = 99
	c.Sessions[0].Journey[0] = "/changed"

	assert.Equal(t, 1, v.Stats.PagesVisited["/"])
	assert.Equal(t, "/", v.Sessions[0].Journey[0])
}
