package notify

import (
	"sync"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

// History keeps the most recent broadcast notifications for clients that
// join late. It is a fixed-size ring; the oldest entry is overwritten.
type History struct {
	mu   sync.Mutex
	buf  []types.Notification
	next int
	full bool
}

// NewHistory creates a History holding up to size entries. size < 1 is
// treated as 1.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{buf: make([]types.Notification, size)}
}

// Add records n.
func (h *History) Add(n types.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.buf[h.next] = n
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (h *History) List(limit int) []types.Notification {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.next
	if h.full {
		n = len(h.buf)
	}
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.Notification, 0, n)
	for i := 1; i <= n; i++ {
		idx := (h.next - i + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}
