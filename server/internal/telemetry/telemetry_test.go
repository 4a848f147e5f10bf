package telemetry

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/server/internal/ws"
)

type fakeHub struct{ s ws.Stats }

func (f fakeHub) Stats() ws.Stats { return f.s }

type fakeStore struct{ m types.MetricsSnapshot }

func (f fakeStore) Read() types.MetricsSnapshot { return f.m }

func TestHandler_ParsesAsPrometheusText(t *testing.T) {
	hub := fakeHub{ws.Stats{Connections: 3, FramesEnqueued: 120, FramesDropped: 2, Broadcasts: 40, RelaysAccepted: 5, RelaysRejected: 1}}
	store := fakeStore{types.MetricsSnapshot{ActiveUsers: 1247, TotalRevenue: 85420000, ServerLoad: 24.5, Uptime: 99.9, LastUpdate: time.Unix(1700000000, 0)}}

	rec := httptest.NewRecorder()
	Handler(hub, store).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}

	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(rec.Body)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	gauges := map[string]float64{
		"notifyhub_connections":                           3,
		"notifyhub_active_users":                          1247,
		"notifyhub_total_revenue_rupiah":                  85420000,
		"notifyhub_server_load_percent":                   24.5,
		"notifyhub_uptime_percent":                        99.9,
		"notifyhub_metrics_last_update_timestamp_seconds": 1700000000,
	}
	for name, want := range gauges {
		mf, ok := mfs[name]
		if !ok {
			t.Errorf("%s: missing", name)
			continue
		}
		if got := mf.GetMetric()[0].GetGauge().GetValue(); got != want {
			t.Errorf("%s: got %v, want %v", name, got, want)
		}
	}

	if got := mfs["notifyhub_frames_dropped_total"].GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("frames_dropped_total: got %v, want 2", got)
	}
	relays := mfs["notifyhub_relays_total"].GetMetric()
	if len(relays) != 2 {
		t.Fatalf("relays_total: got %d series, want 2", len(relays))
	}
	byResult := map[string]float64{}
	for _, m := range relays {
		byResult[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	if byResult["accepted"] != 5 || byResult["rejected"] != 1 {
		t.Errorf("relays_total: got %v", byResult)
	}
}

func TestFamilies_SortedByName(t *testing.T) {
	fams := Families(ws.Stats{}, types.MetricsSnapshot{})
	for i := 1; i < len(fams); i++ {
		if fams[i-1].GetName() >= fams[i].GetName() {
			t.Errorf("not sorted: %s before %s", fams[i-1].GetName(), fams[i].GetName())
		}
	}
}
