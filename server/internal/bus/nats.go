package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/server/internal/notify"
)

// NATS is a Bus backed by a core NATS subject. Every instance subscribes to
// the subject, including the publisher, so local delivery happens through
// the subscription.
type NATS struct {
	nc      *nats.Conn
	subject string
	local   notify.Publisher
}

// Connect dials url and returns a NATS bus on subject delivering to local.
func Connect(url, subject string, local notify.Publisher) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name("notifyhub-server"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("bus: nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("bus: nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	slog.Info("bus: nats connected", "url", nc.ConnectedUrl(), "subject", subject)
	return &NATS{nc: nc, subject: subject, local: local}, nil
}

// PublishNotification implements notify.Publisher.
func (b *NATS) PublishNotification(_ context.Context, n types.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("bus: marshal notification %d: %w", n.ID, err)
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", b.subject, err)
	}
	return nil
}

// Run subscribes to the subject and delivers every well-formed notification
// to the local publisher until ctx is cancelled.
func (b *NATS) Run(ctx context.Context) error {
	sub, err := b.nc.Subscribe(b.subject, func(msg *nats.Msg) {
		var n types.Notification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			slog.Warn("bus: dropping malformed message", "subject", msg.Subject, "err", err)
			return
		}
		if err := b.local.PublishNotification(ctx, n); err != nil {
			slog.Error("bus: local delivery failed", "id", n.ID, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", b.subject, err)
	}

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		slog.Debug("bus: unsubscribe", "err", err)
	}
	return nil
}

// Close drains and closes the NATS connection.
func (b *NATS) Close() error {
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
