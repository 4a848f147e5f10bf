// Package bus carries notifications between notifyhub-server instances.
//
// Every notification that should reach all clients is published to the bus
// rather than directly to the local hub. Each instance delivers what it
// receives from the bus to its own connections, so a relay submitted on one
// instance reaches clients connected to any instance. Metrics snapshots are
// not bussed; each instance owns its own.
package bus

import (
	"context"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/server/internal/notify"
)

// Bus publishes notifications and delivers received ones locally.
type Bus interface {
	notify.Publisher

	// Run delivers bus traffic to the local publisher until ctx is cancelled.
	Run(ctx context.Context) error

	Close() error
}

// Local is the single-instance Bus: publishing delivers straight to the
// local publisher.
type Local struct {
	local notify.Publisher
}

// NewLocal returns a Bus that forwards to local.
func NewLocal(local notify.Publisher) *Local {
	return &Local{local: local}
}

// PublishNotification implements notify.Publisher.
func (b *Local) PublishNotification(ctx context.Context, n types.Notification) error {
	return b.local.PublishNotification(ctx, n)
}

// Run blocks until ctx is cancelled.
func (b *Local) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

// Close implements Bus.
func (b *Local) Close() error { return nil }
