package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

// --- helpers ---

type stepProvider struct {
	err error
}

func (p *stepProvider) Apply(_ context.Context, snap *types.MetricsSnapshot) error {
	if p.err != nil {
		return p.err
	}
	snap.ActiveUsers++
	snap.ServerLoad += 200
	return nil
}

type recordingSink struct {
	mu    sync.Mutex
	snaps []types.MetricsSnapshot
	err   error
}

func (s *recordingSink) PublishMetrics(_ context.Context, snap types.MetricsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snaps)
}

// --- tests ---

func TestUpdateNow_PublishesClampedSnapshot(t *testing.T) {
	store := NewStore(types.MetricsSnapshot{ActiveUsers: 1})
	sink := &recordingSink{}
	u := NewUpdater(store, &stepProvider{}, sink, time.Hour)

	snap, ok := u.UpdateNow(context.Background())
	if !ok {
		t.Fatal("UpdateNow: got ok=false")
	}
	if snap.ActiveUsers != 2 || snap.ServerLoad != 100 {
		t.Errorf("snapshot: got %+v", snap)
	}
	if sink.count() != 1 || sink.snaps[0] != snap {
		t.Errorf("sink: got %+v, want [%+v]", sink.snaps, snap)
	}
	if store.Read() != snap {
		t.Errorf("store: got %+v, want %+v", store.Read(), snap)
	}
}

func TestUpdateNow_ProviderErrorSkipsPublish(t *testing.T) {
	store := NewStore(types.MetricsSnapshot{ActiveUsers: 1})
	before := store.Read()
	sink := &recordingSink{}
	u := NewUpdater(store, &stepProvider{err: errors.New("scrape down")}, sink, time.Hour)

	if _, ok := u.UpdateNow(context.Background()); ok {
		t.Error("UpdateNow: got ok=true on provider error")
	}
	if sink.count() != 0 {
		t.Errorf("sink called %d times, want 0", sink.count())
	}
	if store.Read() != before {
		t.Errorf("store changed on provider error")
	}
}

func TestUpdateNow_SinkErrorDoesNotStop(t *testing.T) {
	store := NewStore(types.MetricsSnapshot{})
	failing := &recordingSink{err: errors.New("hub gone")}
	healthy := &recordingSink{}
	u := NewUpdater(store, &stepProvider{}, Sinks(failing, healthy), time.Hour)

	for i := 0; i < 3; i++ {
		if _, ok := u.UpdateNow(context.Background()); !ok {
			t.Fatalf("tick %d: ok=false", i)
		}
	}
	if failing.count() != 3 || healthy.count() != 3 {
		t.Errorf("sink calls: failing=%d healthy=%d, want 3/3", failing.count(), healthy.count())
	}
	if got := store.Read().ActiveUsers; got != 3 {
		t.Errorf("ActiveUsers: got %d, want 3", got)
	}
}

func TestSinks_JoinsErrors(t *testing.T) {
	e1, e2 := errors.New("one"), errors.New("two")
	s := Sinks(
		SinkFunc(func(context.Context, types.MetricsSnapshot) error { return e1 }),
		nil,
		SinkFunc(func(context.Context, types.MetricsSnapshot) error { return e2 }),
	)
	err := s.PublishMetrics(context.Background(), types.MetricsSnapshot{})
	if !errors.Is(err, e1) || !errors.Is(err, e2) {
		t.Errorf("err: got %v, want both joined", err)
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	store := NewStore(types.MetricsSnapshot{})
	sink := &recordingSink{}
	u := NewUpdater(store, &stepProvider{}, sink, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		u.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if sink.count() < 3 {
		t.Errorf("ticks: got %d, want >= 3", sink.count())
	}
}
