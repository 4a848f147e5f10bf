package alerts

import (
	"testing"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

func TestEvalCondition(t *testing.T) {
	snap := types.MetricsSnapshot{ActiveUsers: 8, TotalRevenue: 0, ServerLoad: 83.2, Uptime: 99.9}
	cases := []struct {
		cond  string
		fires bool
		value float64
	}{
		{"server_load > 80", true, 83.2},
		{"server_load > 90", false, 83.2},
		{"active_users < 10", true, 8},
		{"total_revenue <= 0", true, 0},
		{"uptime >= 99.9", true, 99.9},
		{"uptime == 100", false, 99.9},
		{"cpu > 1", false, 0},
		{"server_load ~ 1", false, 0},
		{"server_load > high", false, 0},
		{"server_load>80", false, 0},
	}
	for _, tc := range cases {
		fires, v := evalCondition(tc.cond, snap)
		if fires != tc.fires || v != tc.value {
			t.Errorf("%q: got (%v, %v), want (%v, %v)", tc.cond, fires, v, tc.fires, tc.value)
		}
	}
}

func TestValidateCondition(t *testing.T) {
	if err := ValidateCondition("server_load > 80"); err != nil {
		t.Errorf("valid condition: %v", err)
	}
	for _, bad := range []string{"", "server_load", "latency > 5", "server_load != 5", "server_load > x"} {
		if err := ValidateCondition(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}
