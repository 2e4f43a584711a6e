package ws

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Register(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg), "double registration must fail")
	assert.Len(t, m.Collectors(), 6)
}

func TestMetrics_TrackHubActivity(t *testing.T) {
	m := NewMetrics()
	h, agg := newTestHub(t, Options{Metrics: m})

	_, ft := connect(t, h)
	deadID, _ := connect(t, h)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.connections))

	recordAndBroadcast(t, h, agg, event("/home", "UK"))
	ft.waitFor(t, MsgVisitorUpdate)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.messagesSent.WithLabelValues(string(MsgVisitorUpdate))))

	_ = h.HandleMessage(deadID, []byte("nope"))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.protocolErrors))

	h.Heartbeat()
	h.Registry().MarkAlive(otherID(h, deadID))
	h.Heartbeat()
	assert.Equal(t, float64(1), testutil.ToFloat64(m.heartbeatTerminations))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connections))
}

func otherID(h *Hub, skip string) string {
	var id string
	h.registry.ForEach(func(p Peer) {
		if p.ID != skip {
			id = p.ID
		}
	})
	return id
}
