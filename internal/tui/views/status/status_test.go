package status

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/visitorpulse/pulse/internal/client"
	"github.com/visitorpulse/pulse/internal/session"
)

func TestConnectionLabel(t *testing.T) {
	tests := []struct {
		st   client.Status
		want string
	}{
		{client.Status{State: client.Connected}, "● Connected"},
		{client.Status{State: client.Connecting}, "◌ Connecting..."},
		{client.Status{State: client.Reconnecting, Attempt: 2, Delay: 4 * time.Second}, "↻ Reconnecting (attempt 2/5 in 4s)"},
		{client.Status{State: client.Disconnected, LastErr: errors.New("boom")}, "○ Disconnected (R to reconnect)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConnectionLabel(tt.st))
	}
}

func TestFilterLabel(t *testing.T) {
	assert.Equal(t, "all traffic", FilterLabel(nil))
	assert.Equal(t, "all traffic", FilterLabel(&session.Filter{}))
	assert.Equal(t, "country=UK", FilterLabel(&session.Filter{Country: "UK"}))
	assert.Equal(t, "page=/home country=UK device=mobile",
		FilterLabel(&session.Filter{Page: "/home", Country: "UK", Device: "mobile"}))
}

func TestView(t *testing.T) {
	m := New()
	m.Width = 100
	m.Dashboards = 3
	m.Status = client.Status{State: client.Connected}
	m.Filter = &session.Filter{Device: "tablet"}

	v := m.View()
	assert.Contains(t, v, "Connected")
	assert.Contains(t, v, "3 dashboards")
	assert.Contains(t, v, "filter: device=tablet")
}
