package ws

import "sync"

// outbox is a bounded FIFO of encoded frames for one connection. Send never
// blocks: when size unpinned frames are queued the oldest unpinned frame is
// discarded. Pinned frames sit at the head of the queue and are never
// discarded; attach uses them for the snapshot and welcome pair.
//
// A reader waits on ready or done and then calls take. After Close the
// reader still gets every queued frame.
type outbox struct {
	mu     sync.Mutex
	queue  [][]byte
	pinned int // leading frames in queue exempt from eviction
	size   int
	closed bool
	id     string
	onDrop func(id string)

	ready chan struct{} // signalled when frames are queued
	done  chan struct{} // closed by Close
}

func newOutbox(size int, onDrop func(id string)) *outbox {
	if size < 1 {
		size = 1
	}
	return &outbox{
		size:   size,
		onDrop: onDrop,
		ready:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (o *outbox) setID(id string) {
	o.mu.Lock()
	o.id = id
	o.mu.Unlock()
}

// Send implements registry.Conn.
func (o *outbox) Send(frame []byte) bool {
	return o.push(frame, false)
}

// pin enqueues frame so that overflow never evicts it. Only frames queued
// before any unpinned frame can be pinned; later calls behave like Send.
func (o *outbox) pin(frame []byte) bool {
	return o.push(frame, true)
}

func (o *outbox) push(frame []byte, pin bool) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	if len(o.queue)-o.pinned >= o.size {
		o.queue = append(o.queue[:o.pinned], o.queue[o.pinned+1:]...)
		if o.onDrop != nil {
			o.onDrop(o.id)
		}
	}
	o.queue = append(o.queue, frame)
	if pin && o.pinned == len(o.queue)-1 {
		o.pinned++
	}
	select {
	case o.ready <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns every queued frame. closed reports whether the
// outbox was closed, in which case no more frames will follow.
func (o *outbox) take() (frames [][]byte, closed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	frames, o.queue, o.pinned = o.queue, nil, 0
	select {
	case <-o.ready:
	default:
	}
	return frames, o.closed
}

// Close implements registry.Conn. It is idempotent.
func (o *outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.done)
	}
}

func (o *outbox) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
