package session

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitorEvent_UnmarshalJSON(t *testing.T) {
	raw := `{"sessionId":"s1","type":"pageview","page":"/home","country":"UK",
		"timestamp":"2026-03-14T12:00:00.250Z","metadata":{"device":"mobile","referrer":"twitter"}}`

	var ev VisitorEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, EventPageview, ev.Type)
	assert.Equal(t, time.Date(2026, 3, 14, 12, 0, 0, 250_000_000, time.UTC), ev.Timestamp.UTC())
	assert.Equal(t, "mobile", ev.Device())
	assert.Equal(t, "twitter", ev.Referrer())
	assert.NoError(t, ev.Validate())
}

func TestVisitorEvent_UnmarshalJSONMissingTimestamp(t *testing.T) {
	var ev VisitorEvent
	require.NoError(t, json.Unmarshal([]byte(`{"sessionId":"s1","type":"click","page":"/","country":"UK"}`), &ev))
	assert.True(t, ev.Timestamp.IsZero())
	assert.Equal(t, "", ev.Device())
}

func TestVisitorEvent_UnmarshalJSONBadTimestamp(t *testing.T) {
	var ev VisitorEvent
	err := json.Unmarshal([]byte(`{"sessionId":"s1","type":"click","page":"/","country":"UK","timestamp":"yesterday"}`), &ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidEvent))
}

func TestVisitorEvent_Clone(t *testing.T) {
	ev := VisitorEvent{SessionID: "s1", Metadata: &Metadata{Device: "mobile"}}
	c := ev.Clone()
	c.Metadata.Device = "tablet"
	assert.Equal(t, "mobile", ev.Metadata.Device)
}

func TestEventType_Valid(t *testing.T) {
	for _, typ := range []EventType{EventPageview, EventClick, EventSessionEnd} {
		assert.True(t, typ.Valid(), typ)
	}
	assert.False(t, EventType("hover").Valid())
	assert.False(t, EventType("").Valid())
}
