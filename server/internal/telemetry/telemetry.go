// Package telemetry exposes hub statistics and the live metrics snapshot in
// the Prometheus text exposition format.
package telemetry

import (
	"bytes"
	"log/slog"
	"net/http"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/server/internal/ws"
)

// StatsSource reports hub activity counters.
type StatsSource interface {
	Stats() ws.Stats
}

// SnapshotSource reports the current metrics snapshot.
type SnapshotSource interface {
	Read() types.MetricsSnapshot
}

// Handler serves the exposition for hub and store on every request.
func Handler(hub StatsSource, store SnapshotSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var buf bytes.Buffer
		for _, mf := range Families(hub.Stats(), store.Read()) {
			if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
				slog.Error("telemetry: encode family", "family", mf.GetName(), "err", err)
				http.Error(w, "encode metrics", http.StatusInternalServerError)
				return
			}
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		w.Write(buf.Bytes()) //nolint:errcheck
	})
}

// Families converts stats and snap into metric families sorted by name.
func Families(stats ws.Stats, snap types.MetricsSnapshot) []*dto.MetricFamily {
	fams := []*dto.MetricFamily{
		gauge("notifyhub_connections", "Currently registered client connections.", float64(stats.Connections)),
		counter("notifyhub_frames_enqueued_total", "Frames queued on connection outboxes.", float64(stats.FramesEnqueued)),
		counter("notifyhub_frames_dropped_total", "Frames discarded because an outbox was full.", float64(stats.FramesDropped)),
		counter("notifyhub_broadcasts_total", "Broadcasts dispatched to all connections.", float64(stats.Broadcasts)),
		counter("notifyhub_unicasts_total", "Frames dispatched to a single connection.", float64(stats.Unicasts)),
		{
			Name: proto.String("notifyhub_relays_total"),
			Help: proto.String("Client-submitted notifications by outcome."),
			Type: dto.MetricType_COUNTER.Enum(),
			Metric: []*dto.Metric{
				labelled("result", "accepted", &dto.Counter{Value: proto.Float64(float64(stats.RelaysAccepted))}),
				labelled("result", "rejected", &dto.Counter{Value: proto.Float64(float64(stats.RelaysRejected))}),
			},
		},
		gauge("notifyhub_active_users", "Active users in the current snapshot.", float64(snap.ActiveUsers)),
		gauge("notifyhub_total_revenue_rupiah", "Total revenue in the current snapshot.", float64(snap.TotalRevenue)),
		gauge("notifyhub_server_load_percent", "Server load in the current snapshot.", snap.ServerLoad),
		gauge("notifyhub_uptime_percent", "Uptime in the current snapshot.", snap.Uptime),
		gauge("notifyhub_metrics_last_update_timestamp_seconds", "Unix time of the last snapshot update.",
			float64(snap.LastUpdate.UnixMilli())/1000),
	}
	sort.Slice(fams, func(i, j int) bool { return fams[i].GetName() < fams[j].GetName() })
	return fams
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}

func labelled(name, value string, c *dto.Counter) *dto.Metric {
	return &dto.Metric{
		Label:   []*dto.LabelPair{{Name: proto.String(name), Value: proto.String(value)}},
		Counter: c,
	}
}
