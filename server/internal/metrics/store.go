package metrics

import (
	"sync"
	"time"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

// Store is the single mutable metrics cell. All access is serialized; Read
// and Update never expose the internal value to callers.
type Store struct {
	mu   sync.Mutex
	snap types.MetricsSnapshot
	now  func() time.Time // injectable for deterministic tests
}

// NewStore creates a Store holding initial. LastUpdate is stamped with the
// current time when initial leaves it zero.
func NewStore(initial types.MetricsSnapshot) *Store {
	s := &Store{now: time.Now}
	clamp(&initial)
	if initial.LastUpdate.IsZero() {
		initial.LastUpdate = s.now().UTC()
	}
	s.snap = initial
	return s
}

// Read returns a copy of the current snapshot.
func (s *Store) Read() types.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Update applies fn to the snapshot, clamps ServerLoad to [0,100] and
// ActiveUsers to >= 0, stamps LastUpdate and returns the result.
func (s *Store) Update(fn func(*types.MetricsSnapshot)) types.MetricsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap
	fn(&next)
	clamp(&next)
	next.LastUpdate = s.now().UTC()
	s.snap = next
	return next
}

func clamp(m *types.MetricsSnapshot) {
	if m.ActiveUsers < 0 {
		m.ActiveUsers = 0
	}
	switch {
	case m.ServerLoad < 0:
		m.ServerLoad = 0
	case m.ServerLoad > 100:
		m.ServerLoad = 100
	}
}
