package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType classifies visitor interactions.
type EventType string

const (
	EventPageview   EventType = "pageview"
	EventClick      EventType = "click"
	EventSessionEnd EventType = "session_end"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventPageview, EventClick, EventSessionEnd:
		return true
	}
	return false
}

// Metadata carries optional client context attached to an event.
type Metadata struct {
	Device    string `json:"device,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// VisitorEvent is a single interaction reported by a tracked website.
// Values are never modified after ingestion.
type VisitorEvent struct {
	SessionID string    `json:"sessionId"`
	Type      EventType `json:"type"`
	Page      string    `json:"page"`
	Country   string    `json:"country"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  *Metadata `json:"metadata,omitempty"`
}

// Device returns the reported device, or "" when none was sent.
func (e VisitorEvent) Device() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata.Device
}

// Referrer returns the reported referrer, or "".
func (e VisitorEvent) Referrer() string {
	if e.Metadata == nil {
		return ""
	}
	return e.Metadata.Referrer
}

// Clone returns a copy that shares no pointers with e.
func (e VisitorEvent) Clone() VisitorEvent {
	if e.Metadata != nil {
		md := *e.Metadata
		e.Metadata = &md
	}
	return e
}

// ErrInvalidEvent is wrapped by every ValidationError.
var ErrInvalidEvent = errors.New("invalid visitor event")

// ValidationError describes why an event was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidEvent, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidEvent }

// Validate checks the fields the aggregator depends on.
func (e VisitorEvent) Validate() error {
	if e.SessionID == "" {
		return &ValidationError{Field: "sessionId", Reason: "is required"}
	}
	if e.Type == "" {
		return &ValidationError{Field: "type", Reason: "is required"}
	}
	if !e.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("must be one of pageview, click, session_end (got %q)", e.Type)}
	}
	if e.Page == "" {
		return &ValidationError{Field: "page", Reason: "is required"}
	}
	if e.Country == "" {
		return &ValidationError{Field: "country", Reason: "is required"}
	}
	return nil
}

// UnmarshalJSON accepts RFC 3339 timestamps as well as an empty or missing one.
func (e *VisitorEvent) UnmarshalJSON(data []byte) error {
	type alias VisitorEvent
	aux := &struct {
		Timestamp string `json:"timestamp"`
		*alias
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	if aux.Timestamp == "" {
		e.Timestamp = time.Time{}
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, aux.Timestamp)
	if err != nil {
		return &ValidationError{Field: "timestamp", Reason: "must be RFC 3339"}
	}
	e.Timestamp = ts
	return nil
}
