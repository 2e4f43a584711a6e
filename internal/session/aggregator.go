package session

import (
	"sort"
	"sync"
	"time"
)

// DefaultEventBuffer is the number of recent events kept for dashboard views.
const DefaultEventBuffer = 500

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now. Used by tests to control day boundaries and
// the inactivity sweep.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithEventBuffer sets how many recent events are retained.
func WithEventBuffer(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.bufSize = n
		}
	}
}

// Aggregator holds live session state and the counters behind SummaryStats.
// All methods are safe for concurrent use; mutations are serialized under a
// single lock so concurrent events for the same session never lose updates.
type Aggregator struct {
	mu       sync.RWMutex
	now      func() time.Time
	sessions map[string]*Session

	day   time.Time
	daily map[dimKey]int
	today int

	bufSize int
	recent  []VisitorEvent
	next    int
	filled  int
}

// NewAggregator returns an empty aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		now:      time.Now,
		sessions: make(map[string]*Session),
		daily:    make(map[dimKey]int),
		bufSize:  DefaultEventBuffer,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.recent = make([]VisitorEvent, a.bufSize)
	a.day = startOfDay(a.now())
	return a
}

// Recorded is the outcome of one accepted event, captured under the same
// lock that applied it.
type Recorded struct {
	// Event is the stored copy, with a missing timestamp filled in.
	Event   VisitorEvent
	Session *Session
	Created bool
	// Day and TotalToday identify the event's position in the daily count.
	Day        time.Time
	TotalToday int
}

// RecordEvent folds e into its session, creating the session on first
// sight. It returns a snapshot of the updated session and whether the
// session was created by this call. Invalid events leave all state
// untouched.
func (a *Aggregator) RecordEvent(e VisitorEvent) (*Session, bool, error) {
	r, err := a.Record(e)
	if err != nil {
		return nil, false, err
	}
	return r.Session, r.Created, nil
}

// Record is RecordEvent with the daily position of the event included.
func (a *Aggregator) Record(e VisitorEvent) (Recorded, error) {
	if err := e.Validate(); err != nil {
		return Recorded{}, err
	}
	e = e.Clone()

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	ts := e.Timestamp
	if ts.IsZero() {
		ts = now
		e.Timestamp = now
	}

	a.rollDay(now)

	s, ok := a.sessions[e.SessionID]
	if !ok {
		s = newSession(e, ts)
		a.sessions[e.SessionID] = s
	}
	s.apply(e, ts)

	a.daily[keyOf(e)]++
	a.today++
	a.push(e)

	return Recorded{
		Event:      e.Clone(),
		Session:    s.Clone(),
		Created:    !ok,
		Day:        a.day,
		TotalToday: a.today,
	}, nil
}

// Summarize computes stats for sessions and today's events matching f.
// A nil filter summarizes everything.
func (a *Aggregator) Summarize(f *Filter) SummaryStats {
	stats := NewSummaryStats()

	a.mu.RLock()
	defer a.mu.RUnlock()

	stats.Day = startOfDay(a.now())

	for _, s := range a.sessions {
		if s.IsActive && f.MatchSession(s) {
			stats.TotalActive++
		}
	}

	// Counters from a previous day are stale until the next event rolls them.
	if !a.day.Equal(stats.Day) {
		return stats
	}

	for k, n := range a.daily {
		if !k.matches(f) {
			continue
		}
		stats.TotalToday += n
		stats.PagesVisited[k.page] += n
		stats.CountriesVisited[k.country] += n
		if k.device != "" {
			stats.DevicesUsed[k.device] += n
		}
	}
	return stats
}

// SweepInactive marks active sessions idle for longer than threshold as
// inactive and returns how many changed. Repeated calls are no-ops until
// new activity arrives.
func (a *Aggregator) SweepInactive(threshold time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.now().Add(-threshold)
	swept := 0
	for _, s := range a.sessions {
		if s.IsActive && s.LastActivity.Before(cutoff) {
			s.IsActive = false
			swept++
		}
	}
	return swept
}

// ActiveSessions returns up to limit active sessions matching f, most
// recently active first. A non-positive limit returns all of them.
func (a *Aggregator) ActiveSessions(f *Filter, limit int) []*Session {
	a.mu.RLock()
	active := make([]*Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		if s.IsActive {
			active = append(active, s)
		}
	}
	result := f.FilterSessions(active)
	a.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].LastActivity.Equal(result[j].LastActivity) {
			return result[i].SessionID < result[j].SessionID
		}
		return result[i].LastActivity.After(result[j].LastActivity)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// RecentEvents returns up to limit buffered events matching f, newest first.
func (a *Aggregator) RecentEvents(f *Filter, limit int) []VisitorEvent {
	a.mu.RLock()
	defer a.mu.RUnlock()

	capacity := a.filled
	if limit > 0 && limit < capacity {
		capacity = limit
	}
	result := make([]VisitorEvent, 0, capacity)
	for i := 0; i < a.filled && (limit <= 0 || len(result) < limit); i++ {
		e := a.recent[(a.next-1-i+a.bufSize)%a.bufSize]
		if f.MatchEvent(e) {
			result = append(result, e.Clone())
		}
	}
	return result
}

// Get returns a snapshot of one session.
func (a *Aggregator) Get(id string) (*Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// SessionCount returns the number of sessions ever recorded.
func (a *Aggregator) SessionCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

func (a *Aggregator) push(e VisitorEvent) {
	a.recent[a.next] = e
	a.next = (a.next + 1) % a.bufSize
	if a.filled < a.bufSize {
		a.filled++
	}
}

// rollDay resets the daily counters when now falls on a later day.
func (a *Aggregator) rollDay(now time.Time) {
	today := startOfDay(now)
	if today.Equal(a.day) {
		return
	}
	a.day = today
	a.daily = make(map[dimKey]int)
	a.today = 0
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
