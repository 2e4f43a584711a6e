package ws

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visitorpulse/pulse/internal/alert"
	"github.com/visitorpulse/pulse/internal/session"
)

func event(page, country string) session.VisitorEvent {
	return session.VisitorEvent{
		SessionID: "visitor-" + country,
		Type:      session.EventPageview,
		Page:      page,
		Country:   country,
		Timestamp: testNoon,
	}
}

func TestHub_ConnectAnnouncesCount(t *testing.T) {
	h, _ := newTestHub(t, Options{Now: func() time.Time { return testNoon }})

	a := newFakeTransport()
	_, err := h.Connect(a)
	require.NoError(t, err)
	first := decode[ConnectedPayload](t, a.waitFor(t, MsgUserConnected))
	assert.Equal(t, 1, first.TotalDashboards)
	assert.True(t, first.ConnectedAt.Equal(testNoon))

	b := newFakeTransport()
	_, err = h.Connect(b)
	require.NoError(t, err)
	assert.Equal(t, 2, decode[ConnectedPayload](t, b.waitFor(t, MsgUserConnected)).TotalDashboards)
	assert.Equal(t, 2, decode[ConnectedPayload](t, a.waitFor(t, MsgUserConnected)).TotalDashboards)

	assert.Empty(t, b.collect(t, MsgUserConnected, 50*time.Millisecond), "new dashboard is greeted once")
}

func TestHub_DisconnectAnnouncesOnce(t *testing.T) {
	h, _ := newTestHub(t, Options{})

	_, a := connect(t, h)
	bID, b := connect(t, h)

	h.Disconnect(bID)
	h.Disconnect(bID)

	got := a.collect(t, MsgUserDisconnected, 100*time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, 1, decode[DisconnectedPayload](t, got[0]).TotalDashboards)
	assert.True(t, b.isClosed())
	assert.Equal(t, 1, h.ClientCount())
}

func TestHub_VisitorUpdateFanOut(t *testing.T) {
	h, agg := newTestHub(t, Options{})

	homeID, home := connect(t, h)
	pricingID, pricing := connect(t, h)
	indiaID, india := connect(t, h)
	h.Registry().SetFilter(homeID, &session.Filter{Page: "/home"})
	h.Registry().SetFilter(pricingID, &session.Filter{Page: "/pricing"})
	h.Registry().SetFilter(indiaID, &session.Filter{Country: "India"})

	recordAndBroadcast(t, h, agg, event("/home", "UK"))

	withEvent := 0
	for name, ft := range map[string]*fakeTransport{"home": home, "pricing": pricing, "india": india} {
		update := decode[VisitorUpdatePayload](t, ft.waitFor(t, MsgVisitorUpdate))
		assert.NotNil(t, update.Stats.PagesVisited, name)
		if update.Event != nil {
			withEvent++
			assert.Equal(t, "/home", update.Event.Page)
		}
	}
	assert.Equal(t, 1, withEvent)
}

func TestHub_UnfilteredDashboardSeesEveryEvent(t *testing.T) {
	h, agg := newTestHub(t, Options{})
	_, ft := connect(t, h)

	recordAndBroadcast(t, h, agg, event("/docs", "Brazil"))

	update := decode[VisitorUpdatePayload](t, ft.waitFor(t, MsgVisitorUpdate))
	require.NotNil(t, update.Event)
	assert.Equal(t, "Brazil", update.Event.Country)
	assert.Equal(t, 1, update.Stats.TotalToday)
	assert.Equal(t, 1, update.Stats.TotalActive)
}

func TestHub_CountryFilterScopesEventsAndStats(t *testing.T) {
	h, agg := newTestHub(t, Options{})
	id, ft := connect(t, h)
	h.Registry().SetFilter(id, &session.Filter{Country: "India"})

	countries := []string{"UK", "India", "France", "India", "UK"}
	for _, c := range countries {
		recordAndBroadcast(t, h, agg, event("/home", c))
	}

	indiaSoFar := 0
	for _, c := range countries {
		update := decode[VisitorUpdatePayload](t, ft.waitFor(t, MsgVisitorUpdate))
		if c == "India" {
			indiaSoFar++
			require.NotNil(t, update.Event)
		}
		if update.Event != nil {
			assert.Equal(t, "India", update.Event.Country)
		}
		assert.Equal(t, indiaSoFar, update.Stats.TotalToday)
		assert.Equal(t, map[string]int{}, filterOut(update.Stats.CountriesVisited, "India"))
	}
}

func filterOut(m map[string]int, key string) map[string]int {
	out := make(map[string]int)
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func TestHub_SessionActivityRespectsFilter(t *testing.T) {
	h, agg := newTestHub(t, Options{})
	ukID, uk := connect(t, h)
	_, all := connect(t, h)
	h.Registry().SetFilter(ukID, &session.Filter{Country: "UK"})

	recordAndBroadcast(t, h, agg, event("/home", "India"))
	recordAndBroadcast(t, h, agg, event("/pricing", "UK"))

	activity := decode[SessionActivityPayload](t, uk.waitFor(t, MsgSessionActivity))
	assert.Equal(t, "visitor-UK", activity.SessionID)
	assert.Equal(t, "/pricing", activity.CurrentPage)
	assert.Equal(t, []string{"/pricing"}, activity.Journey)

	assert.Len(t, all.collect(t, MsgSessionActivity, 100*time.Millisecond), 2)
}

func TestHub_SessionActivitySkipsEndedSessions(t *testing.T) {
	h, agg := newTestHub(t, Options{})
	_, ft := connect(t, h)

	e := event("/home", "UK")
	e.Type = session.EventSessionEnd
	recordAndBroadcast(t, h, agg, e)

	ft.waitFor(t, MsgVisitorUpdate)
	assert.Empty(t, ft.collect(t, MsgSessionActivity, 50*time.Millisecond))
}

func TestHub_MilestoneAlertBroadcastUnfiltered(t *testing.T) {
	h, agg := newTestHub(t, Options{})
	franceID, france := connect(t, h)
	_, all := connect(t, h)
	h.Registry().SetFilter(franceID, &session.Filter{Country: "France"})

	for i := 0; i < 99; i++ {
		_, _, err := agg.RecordEvent(session.VisitorEvent{
			SessionID: fmt.Sprintf("s%d", i%5), Type: session.EventClick, Page: "/", Country: "UK",
		})
		require.NoError(t, err)
	}
	recordAndBroadcast(t, h, agg, event("/", "UK"))

	for _, ft := range []*fakeTransport{france, all} {
		a := decode[alert.Alert](t, ft.waitFor(t, MsgAlert))
		assert.Equal(t, alert.LevelMilestone, a.Level)
		assert.Equal(t, float64(100), a.Details["totalToday"])
	}

	recordAndBroadcast(t, h, agg, event("/", "UK"))
	assert.Empty(t, all.collect(t, MsgAlert, 50*time.Millisecond))
}

// Event #100 is broadcast after #101 has already been recorded; the
// milestone follows the event's own count, not the current total.
func TestHub_MilestoneUsesEventCount(t *testing.T) {
	h, agg := newTestHub(t, Options{})
	_, all := connect(t, h)

	for i := 0; i < 99; i++ {
		_, _, err := agg.RecordEvent(session.VisitorEvent{
			SessionID: fmt.Sprintf("s%d", i%5), Type: session.EventClick, Page: "/", Country: "UK",
		})
		require.NoError(t, err)
	}
	hundredth, err := agg.Record(event("/", "UK"))
	require.NoError(t, err)
	next, err := agg.Record(event("/", "UK"))
	require.NoError(t, err)
	require.Equal(t, 100, hundredth.TotalToday)

	h.BroadcastVisitorUpdate(next)
	h.BroadcastVisitorUpdate(hundredth)

	alerts := all.collect(t, MsgAlert, 100*time.Millisecond)
	require.Len(t, alerts, 1)
	assert.Equal(t, float64(100), decode[alert.Alert](t, alerts[0]).Details["totalToday"])
}

func TestHub_HeartbeatTerminatesUnresponsive(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	aliveID, alive := connect(t, h)
	deadID, dead := connect(t, h)

	// First round probes both.
	h.Heartbeat()
	assert.Equal(t, int32(1), alive.pings.Load())
	assert.Equal(t, int32(1), dead.pings.Load())
	assert.Equal(t, 2, h.ClientCount())

	h.MarkAlive(aliveID)
	h.Heartbeat()
	assert.Equal(t, 1, h.ClientCount())
	assert.True(t, dead.isClosed())
	assert.Equal(t, int32(2), alive.pings.Load())

	h.MarkAlive(aliveID)
	h.Heartbeat()
	// The read pump exiting later must not announce again.
	h.Disconnect(deadID)

	got := alive.collect(t, MsgUserDisconnected, 100*time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, 1, decode[DisconnectedPayload](t, got[0]).TotalDashboards)
	assert.Equal(t, 1, h.ClientCount())
}

func TestHub_SendFailureIsolated(t *testing.T) {
	h, agg := newTestHub(t, Options{})
	_, a := connect(t, h)
	brokenID, broken := connect(t, h)
	_, c := connect(t, h)
	broken.failWrite.Store(true)

	recordAndBroadcast(t, h, agg, event("/home", "UK"))

	got := a.expect(t, MsgVisitorUpdate, MsgUserDisconnected)
	assert.Equal(t, 2, decode[DisconnectedPayload](t, got[MsgUserDisconnected]).TotalDashboards)
	c.waitFor(t, MsgVisitorUpdate)
	require.Eventually(t, func() bool {
		_, ok := h.Registry().Get(brokenID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	recordAndBroadcast(t, h, agg, event("/pricing", "UK"))
	a.waitFor(t, MsgVisitorUpdate)
	c.waitFor(t, MsgVisitorUpdate)
}

func TestHub_MaxConnections(t *testing.T) {
	h, _ := newTestHub(t, Options{MaxConnections: 2})

	firstID, _ := connect(t, h)
	connect(t, h)

	extra := newFakeTransport()
	_, err := h.Connect(extra)
	require.True(t, errors.Is(err, ErrTooManyConnections))
	assert.Equal(t, 2, h.ClientCount())
	assert.False(t, extra.isClosed(), "rejected transport stays with the caller")

	h.Disconnect(firstID)
	connect(t, h)
	assert.Equal(t, 2, h.ClientCount())
}

func TestHub_ApplyAndClearFilters(t *testing.T) {
	h, agg := newTestHub(t, Options{})
	id, ft := connect(t, h)

	for _, e := range []session.VisitorEvent{event("/home", "UK"), event("/docs", "India")} {
		_, _, err := agg.RecordEvent(e)
		require.NoError(t, err)
	}

	require.NoError(t, h.HandleMessage(id, []byte(`{"type":"apply_filters","data":{"country":"India"}}`)))
	stats := decode[session.SummaryStats](t, ft.waitFor(t, MsgDetailedStatsResponse))
	assert.Equal(t, 1, stats.TotalToday)
	sessions := decode[[]session.Session](t, ft.waitFor(t, MsgFilteredSessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, "India", sessions[0].Country)
	events := decode[[]session.VisitorEvent](t, ft.waitFor(t, MsgFilteredEvents))
	require.Len(t, events, 1)

	p, ok := h.Registry().Get(id)
	require.True(t, ok)
	assert.Equal(t, &session.Filter{Country: "India"}, p.Filter)

	require.NoError(t, h.HandleMessage(id, []byte(`{"type":"clear_filters","data":{}}`)))
	assert.Equal(t, 2, decode[session.SummaryStats](t, ft.waitFor(t, MsgDetailedStatsResponse)).TotalToday)
	p, _ = h.Registry().Get(id)
	assert.Nil(t, p.Filter)
}

func TestHub_RequestDetailedStats(t *testing.T) {
	h, agg := newTestHub(t, Options{RecentEvents: 1})
	id, ft := connect(t, h)
	h.Registry().SetFilter(id, &session.Filter{Country: "UK"})

	for _, e := range []session.VisitorEvent{event("/home", "UK"), event("/a", "India"), event("/b", "India")} {
		_, _, err := agg.RecordEvent(e)
		require.NoError(t, err)
	}

	// Without a filter the stored one applies.
	require.NoError(t, h.HandleMessage(id, []byte(`{"type":"request_detailed_stats","data":{}}`)))
	assert.Equal(t, 1, decode[session.SummaryStats](t, ft.waitFor(t, MsgDetailedStatsResponse)).TotalToday)

	// An explicit filter answers the request without replacing the stored one.
	require.NoError(t, h.HandleMessage(id, []byte(`{"type":"request_detailed_stats","data":{"filter":{"country":"India"}}}`)))
	assert.Equal(t, 2, decode[session.SummaryStats](t, ft.waitFor(t, MsgDetailedStatsResponse)).TotalToday)
	events := decode[[]session.VisitorEvent](t, ft.waitFor(t, MsgFilteredEvents))
	require.Len(t, events, 1, "bounded by RecentEvents")
	assert.Equal(t, "/b", events[0].Page)

	p, _ := h.Registry().Get(id)
	assert.Equal(t, "UK", p.Filter.Country)
}

func TestHub_MalformedMessage(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	id, ft := connect(t, h)

	err := h.HandleMessage(id, []byte(`{not json`))
	require.True(t, errors.Is(err, ErrProtocol))
	assert.Equal(t, "Invalid message format", decode[ErrorPayload](t, ft.waitFor(t, MsgError)).Message)

	err = h.HandleMessage(id, []byte(`{"type":"apply_filters","data":"India"}`))
	require.True(t, errors.Is(err, ErrProtocol))
	ft.waitFor(t, MsgError)

	assert.Equal(t, 1, h.ClientCount())
	assert.False(t, ft.isClosed())
}

func TestHub_UnknownMessageIgnored(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	id, ft := connect(t, h)

	require.NoError(t, h.HandleMessage(id, []byte(`{"type":"subscribe","data":{}}`)))
	assert.Empty(t, ft.collect(t, MsgError, 50*time.Millisecond))
}

func TestHub_HandleMessageAfterDisconnect(t *testing.T) {
	h, _ := newTestHub(t, Options{})
	id, _ := connect(t, h)
	h.Disconnect(id)

	assert.NoError(t, h.HandleMessage(id, []byte(`{not json`)))
}
