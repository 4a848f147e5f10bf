package metrics

import (
	"context"
	"errors"

	"github.com/nusantararadius/notifyhub/pkg/types"
)

// Sink receives every snapshot the Updater publishes.
type Sink interface {
	PublishMetrics(ctx context.Context, snap types.MetricsSnapshot) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, snap types.MetricsSnapshot) error

// PublishMetrics implements Sink.
func (f SinkFunc) PublishMetrics(ctx context.Context, snap types.MetricsSnapshot) error {
	return f(ctx, snap)
}

// Sinks fans a snapshot out to several sinks. Every sink is called even if
// an earlier one fails; the errors are joined.
func Sinks(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, snap types.MetricsSnapshot) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.PublishMetrics(ctx, snap); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
