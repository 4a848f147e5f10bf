package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

// Publisher delivers a finished notification to every connected client.
type Publisher interface {
	PublishNotification(ctx context.Context, n types.Notification) error
}

// PublisherFunc adapts a plain function to Publisher.
type PublisherFunc func(ctx context.Context, n types.Notification) error

// PublishNotification implements Publisher.
func (f PublisherFunc) PublishNotification(ctx context.Context, n types.Notification) error {
	return f(ctx, n)
}

// Generator periodically publishes a notification sampled from its Catalog.
type Generator struct {
	catalog  Catalog
	ids      *IDSource
	pub      Publisher
	interval time.Duration
	reset    chan time.Duration
}

// NewGenerator creates a Generator firing every interval.
func NewGenerator(catalog Catalog, ids *IDSource, pub Publisher, interval time.Duration) *Generator {
	return &Generator{
		catalog:  catalog,
		ids:      ids,
		pub:      pub,
		interval: interval,
		reset:    make(chan time.Duration, 1),
	}
}

// Fire samples, stamps and publishes one notification immediately.
func (g *Generator) Fire(ctx context.Context) (types.Notification, error) {
	d, err := g.catalog.Pick()
	if err != nil {
		return types.Notification{}, err
	}
	n := types.Notification{
		Type:     d.Type,
		Title:    d.Title,
		Message:  d.Message,
		Severity: d.Severity,
	}
	g.ids.Stamp(&n)
	if err := g.pub.PublishNotification(ctx, n); err != nil {
		return n, fmt.Errorf("notify: publish %d: %w", n.ID, err)
	}
	slog.Info("notify: notification generated", "id", n.ID, "type", n.Type)
	return n, nil
}

// SetInterval changes the firing interval of a running generator. Values
// <= 0 are ignored.
func (g *Generator) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	for {
		select {
		case g.reset <- d:
			return
		default:
		}
		select {
		case <-g.reset:
		default:
		}
	}
}

// Run fires at the configured interval until ctx is cancelled. Failures are
// logged and the next tick proceeds normally.
func (g *Generator) Run(ctx context.Context) {
	if g.interval <= 0 {
		slog.Warn("notify: generator disabled, non-positive interval", "interval", g.interval)
		<-ctx.Done()
		return
	}
	t := time.NewTicker(g.interval)
	defer t.Stop()

	slog.Info("notify: generator started", "interval", g.interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("notify: generator stopped")
			return
		case d := <-g.reset:
			if d != g.interval {
				g.interval = d
				t.Reset(d)
				slog.Info("notify: generator interval changed", "interval", d)
			}
		case <-t.C:
			if _, err := g.Fire(ctx); err != nil {
				slog.Warn("notify: generation failed", "err", err)
			}
		}
	}
}
