package notify

import (
	"testing"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

func ids(list []types.Notification) []int64 {
	out := make([]int64, len(list))
	for i, n := range list {
		out[i] = n.ID
	}
	return out
}

func TestHistory_NewestFirstAndBounded(t *testing.T) {
	h := NewHistory(3)
	if got := h.List(0); len(got) != 0 {
		t.Fatalf("empty history: got %v", got)
	}
	for i := int64(1); i <= 5; i++ {
		h.Add(types.Notification{ID: i})
	}
	got := ids(h.List(0))
	want := []int64{5, 4, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestHistory_Limit(t *testing.T) {
	h := NewHistory(10)
	for i := int64(1); i <= 4; i++ {
		h.Add(types.Notification{ID: i})
	}
	got := ids(h.List(2))
	if len(got) != 2 || got[0] != 4 || got[1] != 3 {
		t.Errorf("got %v, want [4 3]", got)
	}
}
