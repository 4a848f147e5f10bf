package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/server/internal/config"
)

func TestIDSource_SameMillisecondStillUnique(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s := &IDSource{now: func() time.Time { return at }}

	a, b, c := s.Next(), s.Next(), s.Next()
	if a != at.UnixMilli() {
		t.Errorf("first id: got %d, want %d", a, at.UnixMilli())
	}
	if !(a < b && b < c) {
		t.Errorf("ids not strictly increasing: %d %d %d", a, b, c)
	}
}

func TestIDSource_ClockGoingBackwards(t *testing.T) {
	clock := time.Unix(2000, 0)
	s := &IDSource{now: func() time.Time { return clock }}

	first := s.Next()
	clock = clock.Add(-time.Minute)
	if second := s.Next(); second <= first {
		t.Errorf("second id %d not after %d", second, first)
	}
}

func TestIDSource_StampSetsTimestamp(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	s := &IDSource{now: func() time.Time { return at }}
	var n types.Notification
	s.Stamp(&n)
	if n.ID != at.UnixMilli() || !n.Timestamp.Equal(at) {
		t.Errorf("Stamp: got id=%d ts=%v", n.ID, n.Timestamp)
	}
}

func TestIDSource_Concurrent(t *testing.T) {
	s := NewIDSource()
	const workers, per = 8, 200
	ch := make(chan int64, workers*per)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				ch <- s.Next()
			}
		}()
	}
	wg.Wait()
	close(ch)

	seen := make(map[int64]bool, workers*per)
	for id := range ch {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestInstanceIDSource_PartitionsByInstance(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	frozen := func() time.Time { return at }
	a, err := NewInstanceIDSource(1, frozen)
	if err != nil {
		t.Fatalf("instance 1: %v", err)
	}
	b, err := NewInstanceIDSource(2, frozen)
	if err != nil {
		t.Fatalf("instance 2: %v", err)
	}

	seen := make(map[int64]string)
	for i := 0; i < 50; i++ {
		for name, s := range map[string]*IDSource{"a": a, "b": b} {
			id := s.Next()
			if prev, dup := seen[id]; dup {
				t.Fatalf("id %d minted by %s and %s", id, prev, name)
			}
			seen[id] = name
		}
	}

	id := a.Next()
	if got := id & MaxInstance; got != 1 {
		t.Errorf("instance bits: got %d, want 1", got)
	}
	if got := id >> InstanceBits; got < at.UnixMilli() {
		t.Errorf("time bits: got %d, want >= %d", got, at.UnixMilli())
	}
	if id >= 1<<53 {
		t.Errorf("id %d exceeds 2^53", id)
	}
}

func TestInstanceIDSource_RangeChecked(t *testing.T) {
	for _, inst := range []int{-1, MaxInstance + 1} {
		if _, err := NewInstanceIDSource(inst, nil); err == nil {
			t.Errorf("instance %d: got nil error", inst)
		}
	}
	if MaxInstance != config.MaxBusInstance {
		t.Errorf("MaxInstance: got %d, want %d", MaxInstance, config.MaxBusInstance)
	}
}
