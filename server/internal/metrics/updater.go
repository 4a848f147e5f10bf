package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

// Updater periodically refreshes the Store through a Provider and publishes
// each new snapshot to a Sink.
type Updater struct {
	store    *Store
	provider Provider
	sink     Sink
	interval time.Duration

	mu sync.Mutex // serializes UpdateNow
}

// NewUpdater creates an Updater. Use Sinks to publish to more than one sink.
func NewUpdater(store *Store, provider Provider, sink Sink, interval time.Duration) *Updater {
	return &Updater{
		store:    store,
		provider: provider,
		sink:     sink,
		interval: interval,
	}
}

// UpdateNow runs one update cycle immediately. On provider failure the Store
// is left unchanged, nothing is published and ok is false. Sink errors are
// logged and do not affect the result.
func (u *Updater) UpdateNow(ctx context.Context) (snap types.MetricsSnapshot, ok bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	next := u.store.Read()
	if err := u.provider.Apply(ctx, &next); err != nil {
		slog.Warn("metrics: provider failed, skipping update", "err", err)
		return u.store.Read(), false
	}
	snap = u.store.Update(func(m *types.MetricsSnapshot) {
		m.ActiveUsers = next.ActiveUsers
		m.TotalRevenue = next.TotalRevenue
		m.ServerLoad = next.ServerLoad
		m.Uptime = next.Uptime
	})

	if u.sink != nil {
		if err := u.sink.PublishMetrics(ctx, snap); err != nil {
			slog.Warn("metrics: publish failed", "err", err)
		}
	}
	return snap, true
}

// Run ticks at the configured interval until ctx is cancelled. The first
// update happens one interval after start.
func (u *Updater) Run(ctx context.Context) {
	if u.interval <= 0 {
		slog.Warn("metrics: updater disabled, non-positive interval", "interval", u.interval)
		<-ctx.Done()
		return
	}
	t := time.NewTicker(u.interval)
	defer t.Stop()

	slog.Info("metrics: updater started", "interval", u.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("metrics: updater stopped")
			return
		case <-t.C:
			u.UpdateNow(ctx)
		}
	}
}
