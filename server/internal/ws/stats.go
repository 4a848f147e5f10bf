package ws

import "sync/atomic"

// Stats is a point-in-time view of hub activity since start.
type Stats struct {
	Connections    int    `json:"connections"`
	FramesEnqueued uint64 `json:"frames_enqueued"`
	FramesDropped  uint64 `json:"frames_dropped"`
	Broadcasts     uint64 `json:"broadcasts"`
	Unicasts       uint64 `json:"unicasts"`
	RelaysAccepted uint64 `json:"relays_accepted"`
	RelaysRejected uint64 `json:"relays_rejected"`
}

type counters struct {
	enqueued       atomic.Uint64
	dropped        atomic.Uint64
	broadcasts     atomic.Uint64
	unicasts       atomic.Uint64
	relaysAccepted atomic.Uint64
	relaysRejected atomic.Uint64
}

// Stats returns current hub counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Connections:    h.reg.Count(),
		FramesEnqueued: h.stats.enqueued.Load(),
		FramesDropped:  h.stats.dropped.Load(),
		Broadcasts:     h.stats.broadcasts.Load(),
		Unicasts:       h.stats.unicasts.Load(),
		RelaysAccepted: h.stats.relaysAccepted.Load(),
		RelaysRejected: h.stats.relaysRejected.Load(),
	}
}
