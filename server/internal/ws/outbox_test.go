package ws

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/server/internal/config"
	"github.com/nusantararadius/notifyhub/server/internal/metrics"
	"github.com/nusantararadius/notifyhub/server/internal/notify"
	"github.com/nusantararadius/notifyhub/server/internal/registry"
)

func drain(o *outbox) []string {
	frames, _ := o.take()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = string(f)
	}
	return out
}

func frameID(t *testing.T, frame string) (string, int64) {
	t.Helper()
	var env types.Envelope
	if err := json.Unmarshal([]byte(frame), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var n types.Notification
	if env.Event == types.EventNotification {
		if err := json.Unmarshal(env.Data, &n); err != nil {
			t.Fatalf("unmarshal data: %v", err)
		}
	}
	return env.Event, n.ID
}

func TestOutbox_DropsOldest(t *testing.T) {
	var dropped []string
	o := newOutbox(2, func(id string) { dropped = append(dropped, id) })
	o.setID("c1")

	for _, f := range []string{"a", "b", "c", "d"} {
		if !o.Send([]byte(f)) {
			t.Fatalf("Send(%s): got false", f)
		}
	}
	got := drain(o)
	if len(got) != 2 || got[0] != "c" || got[1] != "d" {
		t.Errorf("frames: got %v, want [c d]", got)
	}
	if len(dropped) != 2 || dropped[0] != "c1" {
		t.Errorf("drops: got %v, want 2 for c1", dropped)
	}
}

func TestOutbox_PinnedFramesSurviveOverflow(t *testing.T) {
	drops := 0
	o := newOutbox(2, func(string) { drops++ })

	o.pin([]byte("snap"))
	o.pin([]byte("welcome"))
	for _, f := range []string{"a", "b", "c", "d"} {
		o.Send([]byte(f))
	}
	// Pinning after an unpinned frame has no effect.
	o.pin([]byte("late"))

	if got := drain(o); strings.Join(got, " ") != "snap welcome d late" {
		t.Errorf("frames: got %v, want [snap welcome d late]", got)
	}
	if drops != 3 {
		t.Errorf("drops: got %d, want 3", drops)
	}

	// Pins do not carry over once taken.
	o.Send([]byte("x"))
	o.Send([]byte("y"))
	o.Send([]byte("z"))
	if got := drain(o); strings.Join(got, " ") != "y z" {
		t.Errorf("after take: got %v, want [y z]", got)
	}
}

func TestOutbox_CloseKeepsQueuedFrames(t *testing.T) {
	o := newOutbox(4, nil)
	o.Send([]byte("a"))
	o.Close()
	o.Close() // idempotent

	if o.Send([]byte("b")) {
		t.Error("Send after Close: got true")
	}
	select {
	case <-o.done:
	default:
		t.Fatal("done not closed")
	}
	frames, closed := o.take()
	if len(frames) != 1 || string(frames[0]) != "a" || !closed {
		t.Errorf("take: got %q closed=%v, want [a] closed=true", frames, closed)
	}
}

func TestOutbox_ReadySignalClearedByTake(t *testing.T) {
	o := newOutbox(4, nil)
	o.Send([]byte("a"))
	o.Send([]byte("b"))
	select {
	case <-o.ready:
	default:
		t.Fatal("ready not signalled after Send")
	}
	o.Send([]byte("c"))
	if got := drain(o); len(got) != 3 {
		t.Fatalf("frames: got %v, want 3", got)
	}
	select {
	case <-o.ready:
		t.Error("ready still signalled after take")
	default:
	}
}

func TestHub_SlowReaderLosesOldestFrames(t *testing.T) {
	reg := registry.New()
	h := New(Options{
		Registry: reg,
		Store:    metrics.NewStore(types.MetricsSnapshot{}),
		IDs:      notify.NewIDSource(),
		Config:   config.HubConfig{SendBuffer: 2},
	})

	sess := &pollSession{outbox: newOutbox(2, h.onDrop)}
	if _, err := h.attach(sess, sess.outbox, "test", registry.TransportPolling, false); err != nil {
		t.Fatalf("attach: %v", err)
	}
	for i := int64(1); i <= 5; i++ {
		if _, err := h.Broadcast(types.EventNotification, types.Notification{ID: i}); err != nil {
			t.Fatalf("Broadcast: %v", err)
		}
	}

	// snapshot + welcome are pinned; 5 broadcasts share a buffer of 2.
	if s := h.Stats(); s.FramesDropped != 3 || s.FramesEnqueued != 7 {
		t.Errorf("stats: got %+v, want 3 dropped / 7 enqueued", s)
	}
	got := drain(sess.outbox)
	if len(got) != 4 {
		t.Fatalf("frames: got %d, want 4", len(got))
	}
	if ev, _ := frameID(t, got[0]); ev != types.EventSystemMetrics {
		t.Errorf("frame 0: got %q, want %q", ev, types.EventSystemMetrics)
	}
	if ev, id := frameID(t, got[1]); ev != types.EventNotification || id <= 5 {
		t.Errorf("frame 1: got %q id %d, want the welcome notification", ev, id)
	}
	for i, want := range []int64{4, 5} {
		if _, id := frameID(t, got[i+2]); id != want {
			t.Errorf("frame %d: got id %d, want %d", i+2, id, want)
		}
	}
}

func TestState_String(t *testing.T) {
	cases := map[state]string{
		stateConnecting: "connecting",
		stateActive:     "active",
		stateClosed:     "closed",
		state(9):        "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("state(%d): got %q, want %q", s, got, want)
		}
	}
}
