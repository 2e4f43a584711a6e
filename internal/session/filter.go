package session

// Filter narrows the sessions and events a dashboard sees. An empty field
// places no constraint on that dimension. A nil *Filter matches everything.
type Filter struct {
	Country string `json:"country,omitempty"`
	Page    string `json:"page,omitempty"`
	Device  string `json:"device,omitempty"`
}

// IsEmpty reports whether the filter constrains nothing.
func (f *Filter) IsEmpty() bool {
	return f == nil || (f.Country == "" && f.Page == "" && f.Device == "")
}

// Normalize returns nil for an empty filter and a private copy otherwise.
func (f *Filter) Normalize() *Filter {
	if f.IsEmpty() {
		return nil
	}
	c := *f
	return &c
}

// MatchEvent reports whether the event satisfies every set field.
func (f *Filter) MatchEvent(e VisitorEvent) bool {
	return f.match(e.Country, e.Page, e.Device())
}

// MatchSession reports whether the session satisfies every set field. The
// page dimension is compared against the session's current page.
func (f *Filter) MatchSession(s *Session) bool {
	return f.match(s.Country, s.CurrentPage, s.Device)
}

func (f *Filter) match(country, page, device string) bool {
	if f == nil {
		return true
	}
	if f.Country != "" && f.Country != country {
		return false
	}
	if f.Page != "" && f.Page != page {
		return false
	}
	if f.Device != "" && f.Device != device {
		return false
	}
	return true
}

// FilterSessions returns clones of the sessions that match f. The input is
// not modified.
func (f *Filter) FilterSessions(sessions []*Session) []*Session {
	result := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		if !f.MatchSession(s) {
			continue
		}
		result = append(result, s.Clone())
	}
	return result
}
