package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

// InstanceBits is the number of low ID bits holding the instance index
// when IDs are partitioned across instances sharing a bus.
const InstanceBits = 10

// MaxInstance is the largest instance index a partitioned source accepts.
const MaxInstance = 1<<InstanceBits - 1

// IDSource hands out strictly increasing, time-derived notification IDs.
//
// A standalone source uses the current Unix time in milliseconds, bumped
// past the previous ID when two events fall in the same millisecond. A
// partitioned source shifts the millisecond clock left by InstanceBits and
// stores the instance index in the low bits, so two instances never mint
// the same ID. Both forms stay below 2^53 and survive a JavaScript number.
type IDSource struct {
	mu    sync.Mutex
	last  int64
	shift uint
	inst  int64
	now   func() time.Time // injectable for deterministic tests
}

// NewIDSource creates a standalone IDSource backed by the wall clock.
func NewIDSource() *IDSource {
	return &IDSource{now: time.Now}
}

// NewInstanceIDSource creates an IDSource for instance in [0, MaxInstance].
// A nil now uses the wall clock.
func NewInstanceIDSource(instance int, now func() time.Time) (*IDSource, error) {
	if instance < 0 || instance > MaxInstance {
		return nil, fmt.Errorf("notify: instance %d out of range [0, %d]", instance, MaxInstance)
	}
	if now == nil {
		now = time.Now
	}
	return &IDSource{shift: InstanceBits, inst: int64(instance), now: now}, nil
}

// Next returns the next ID.
func (s *IDSource) Next() int64 {
	id, _ := s.next()
	return id
}

// Stamp assigns n a fresh ID and sets its Timestamp from the same clock
// reading.
func (s *IDSource) Stamp(n *types.Notification) {
	n.ID, n.Timestamp = s.next()
}

func (s *IDSource) next() (int64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	id := now.UnixMilli()<<s.shift | s.inst
	if id <= s.last {
		id = s.last + 1<<s.shift
	}
	s.last = id
	return id, now
}
