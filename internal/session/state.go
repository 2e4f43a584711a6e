package session

import "time"

// Session is one visitor's continuous activity window.
type Session struct {
	SessionID    string    `json:"sessionId"`
	CurrentPage  string    `json:"currentPage"`
	Journey      []string  `json:"journey"`
	StartTime    time.Time `json:"startTime"`
	LastActivity time.Time `json:"lastActivity"`
	Country      string    `json:"country"`
	Device       string    `json:"device,omitempty"`
	Referrer     string    `json:"referrer,omitempty"`
	IsActive     bool      `json:"isActive"`
	Duration     int64     `json:"duration"` // seconds
}

// Clone returns a deep copy of the Session, duplicating the journey so the
// copy can be mutated independently of the original.
func (s *Session) Clone() *Session {
	c := *s
	if s.Journey != nil {
		c.Journey = make([]string, len(s.Journey))
		copy(c.Journey, s.Journey)
	}
	return &c
}

// apply folds an event into the session. The journey only grows when the
// page differs from the last entry.
func (s *Session) apply(e VisitorEvent, ts time.Time) {
	s.CurrentPage = e.Page
	if n := len(s.Journey); n == 0 || s.Journey[n-1] != e.Page {
		s.Journey = append(s.Journey, e.Page)
	}
	if ts.After(s.LastActivity) {
		s.LastActivity = ts
	}
	if s.Device == "" {
		s.Device = e.Device()
	}
	if s.Referrer == "" {
		s.Referrer = e.Referrer()
	}
	s.Duration = int64(s.LastActivity.Sub(s.StartTime) / time.Second)
	if e.Type == EventSessionEnd {
		s.IsActive = false
	}
}

func newSession(e VisitorEvent, ts time.Time) *Session {
	return &Session{
		SessionID:    e.SessionID,
		StartTime:    ts,
		LastActivity: ts,
		Country:      e.Country,
		IsActive:     true,
	}
}
