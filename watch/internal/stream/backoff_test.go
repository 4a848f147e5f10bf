package stream

import (
	"testing"
	"time"
)

func TestBackoff_GrowsAndResets(t *testing.T) {
	bo := newBackoff(100*time.Millisecond, time.Second)

	first := bo.next()
	if first > 125*time.Millisecond {
		t.Errorf("first backoff too large: %v", first)
	}
	bo.next()
	third := bo.next()
	if third < 300*time.Millisecond {
		t.Errorf("third backoff too small: %v, want >= 300ms", third)
	}

	bo.reset()
	if after := bo.next(); after > 125*time.Millisecond {
		t.Errorf("backoff after reset too large: %v", after)
	}
}

func TestBackoff_NeverExceedsMax(t *testing.T) {
	bo := newBackoff(100*time.Millisecond, time.Second)
	for i := 0; i < 20; i++ {
		// With jitter, max is 1.25 × max.
		if d := bo.next(); d > 1250*time.Millisecond {
			t.Errorf("backoff[%d] = %v, exceeds 1.25×max", i, d)
		}
	}
}
