package ws

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/visitorpulse/pulse/internal/session"
)

// ErrTooManyConnections is returned by Register when the limit is reached.
var ErrTooManyConnections = errors.New("ws: too many connections")

type entry struct {
	client *client
	filter *session.Filter
	alive  bool
}

// Peer is a point-in-time view of one registered connection.
type Peer struct {
	ID     string
	Filter *session.Filter

	client *client
}

// Registry owns the set of connected dashboards, their filters and liveness
// flags. All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*entry
	max   int
	newID func() string
}

// NewRegistry returns an empty registry. A non-positive max allows any
// number of connections.
func NewRegistry(max int) *Registry {
	return &Registry{
		conns: make(map[string]*entry),
		max:   max,
		newID: uuid.NewString,
	}
}

// Register stores c as alive with no filter and returns its new id.
func (r *Registry) Register(c *client) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.max > 0 && len(r.conns) >= r.max {
		return "", ErrTooManyConnections
	}
	id := r.newID()
	r.conns[id] = &entry{client: c, alive: true}
	return id, nil
}

// SetFilter replaces a connection's filter. Unknown ids are ignored since
// the connection may already be gone.
func (r *Registry) SetFilter(id string, f *session.Filter) {
	f = f.Normalize()

	r.mu.Lock()
	if e, ok := r.conns[id]; ok {
		e.filter = f
	}
	r.mu.Unlock()
}

// Unregister removes a connection, reporting whether it was present. Only
// the first caller for a given id sees true.
func (r *Registry) Unregister(id string) (*client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	return e.client, true
}

// MarkAlive records a liveness response.
func (r *Registry) MarkAlive(id string) {
	r.mu.Lock()
	if e, ok := r.conns[id]; ok {
		e.alive = true
	}
	r.mu.Unlock()
}

// Alive reports the connection's liveness flag.
func (r *Registry) Alive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	return ok && e.alive
}

// Get returns the connection with the given id.
func (r *Registry) Get(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return Peer{}, false
	}
	return Peer{ID: id, Filter: e.filter, client: e.client}, true
}

// ForEach calls fn for a snapshot of the live connections. fn runs without
// the registry lock held and may register or unregister connections.
func (r *Registry) ForEach(fn func(Peer)) {
	for _, p := range r.snapshot() {
		fn(p)
	}
}

func (r *Registry) snapshot() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peers := make([]Peer, 0, len(r.conns))
	for id, e := range r.conns {
		peers = append(peers, Peer{ID: id, Filter: e.filter, client: e.client})
	}
	return peers
}

// Size returns the number of live connections.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// reap removes every connection that has not answered since the previous
// call and clears the flag on the rest. Both sets are returned so the
// caller can terminate the first and probe the second outside the lock.
func (r *Registry) reap() (dead, probe []Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.conns {
		p := Peer{ID: id, Filter: e.filter, client: e.client}
		if !e.alive {
			delete(r.conns, id)
			dead = append(dead, p)
			continue
		}
		e.alive = false
		probe = append(probe, p)
	}
	return dead, probe
}
