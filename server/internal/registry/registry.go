package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport names recorded on each connection.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// Conn is the outbound side of one client connection.
type Conn interface {
	// Send queues frame for delivery without blocking. It returns false if
	// the connection is already closed.
	Send(frame []byte) bool

	// Close stops delivery. Frames already queued may still be flushed.
	Close()
}

// Info is the metadata the Registry keeps for a connection.
type Info struct {
	ID             string    `json:"id"`
	RemoteAddr     string    `json:"remote_addr"`
	Transport      string    `json:"transport"`
	ConnectedAt    time.Time `json:"connected_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Target pairs a connection ID with its handle for broadcast iteration.
type Target struct {
	ID   string
	Conn Conn
}

type entry struct {
	conn Conn
	info Info
}

// Registry is a thread-safe set of live connections keyed by ID.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	now     func() time.Time // injectable for deterministic tests
	newID   func() string
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Register adds conn and returns its new connection ID.
func (r *Registry) Register(conn Conn, remoteAddr, transport string) string {
	id := r.newID()
	now := r.now()

	r.mu.Lock()
	r.entries[id] = &entry{
		conn: conn,
		info: Info{
			ID:             id,
			RemoteAddr:     remoteAddr,
			Transport:      transport,
			ConnectedAt:    now,
			LastActivityAt: now,
		},
	}
	r.mu.Unlock()
	return id
}

// Unregister removes id. It reports whether an entry was removed; unknown
// IDs are a no-op.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// Touch records inbound activity on id.
func (r *Registry) Touch(id string) {
	now := r.now()
	r.mu.Lock()
	if e, ok := r.entries[id]; ok {
		e.info.LastActivityAt = now
	}
	r.mu.Unlock()
}

// Get returns the handle registered under id.
func (r *Registry) Get(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// Info returns the metadata for id.
func (r *Registry) Info(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// Snapshot returns a point-in-time copy of all registered connections.
func (r *Registry) Snapshot() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Target, 0, len(r.entries))
	for id, e := range r.entries {
		out = append(out, Target{ID: id, Conn: e.conn})
	}
	return out
}

// ForEach calls fn for every connection registered at call time. fn runs
// without the registry lock held and may register or unregister freely.
func (r *Registry) ForEach(fn func(id string, c Conn)) {
	for _, t := range r.Snapshot() {
		fn(t.ID, t.Conn)
	}
}

// List returns metadata for all connections, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.info)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Sweep unregisters and closes connections of the given transport whose last
// activity is older than now minus idle. It returns the number removed.
func (r *Registry) Sweep(transport string, idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	var stale []Conn
	r.mu.Lock()
	for id, e := range r.entries {
		if e.info.Transport == transport && e.info.LastActivityAt.Before(cutoff) {
			stale = append(stale, e.conn)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, c := range stale {
		c.Close()
	}
	return len(stale)
}
