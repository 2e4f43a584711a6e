package ws

import (
	"encoding/json"
	"time"

	"github.com/visitorpulse/pulse/internal/session"
)

type MessageType string

// Server to dashboard.
const (
	MsgUserConnected         MessageType = "user_connected"
	MsgUserDisconnected      MessageType = "user_disconnected"
	MsgVisitorUpdate         MessageType = "visitor_update"
	MsgSessionActivity       MessageType = "session_activity"
	MsgAlert                 MessageType = "alert"
	MsgDetailedStatsResponse MessageType = "detailed_stats_response"
	MsgFilteredSessions      MessageType = "filtered_sessions"
	MsgFilteredEvents        MessageType = "filtered_events"
	MsgError                 MessageType = "error"
)

// Dashboard to server.
const (
	MsgRequestDetailedStats MessageType = "request_detailed_stats"
	MsgApplyFilters         MessageType = "apply_filters"
	MsgClearFilters         MessageType = "clear_filters"
)

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data"`
}

// inboundMessage defers decoding of data until the type is known.
type inboundMessage struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

type ConnectedPayload struct {
	TotalDashboards int       `json:"totalDashboards"`
	ConnectedAt     time.Time `json:"connectedAt"`
}

type DisconnectedPayload struct {
	TotalDashboards int `json:"totalDashboards"`
}

// VisitorUpdatePayload carries the triggering event only to dashboards whose
// filter matches it. Stats are always scoped to the receiving dashboard.
type VisitorUpdatePayload struct {
	Event *session.VisitorEvent `json:"event,omitempty"`
	Stats session.SummaryStats  `json:"stats"`
}

type SessionActivityPayload struct {
	SessionID   string   `json:"sessionId"`
	CurrentPage string   `json:"currentPage"`
	Journey     []string `json:"journey"`
	Duration    int64    `json:"duration"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// StatsRequest is the data of request_detailed_stats.
type StatsRequest struct {
	Filter *session.Filter `json:"filter,omitempty"`
}

func encode(t MessageType, data interface{}) ([]byte, error) {
	return json.Marshal(WSMessage{Type: t, Data: data})
}

// hasData reports whether a raw payload carries anything beyond null.
func hasData(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}
