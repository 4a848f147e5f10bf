package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/server/internal/config"
	"github.com/nusantararadius/notifyhub/server/internal/metrics"
	"github.com/nusantararadius/notifyhub/server/internal/notify"
	"github.com/nusantararadius/notifyhub/server/internal/registry"
)

// Error codes carried in "error" events.
const (
	CodeMalformed     = "malformed_envelope"
	CodeUnknownEvent  = "unknown_event"
	CodeInvalid       = "invalid_payload"
	CodeRateLimited   = "rate_limited"
	CodePublishFailed = "publish_failed"
)

// ErrClosing is returned when a connection arrives after Shutdown started.
var ErrClosing = errors.New("hub is shutting down")

// Options configures a Hub.
type Options struct {
	Registry *registry.Registry
	Store    *metrics.Store
	IDs      *notify.IDSource

	// History records every broadcast notification. Optional.
	History *notify.History

	Config config.HubConfig

	// AllowedOrigin is matched against the Origin header of WebSocket
	// upgrades. Requests without an Origin header are accepted. "*"
	// disables the check.
	AllowedOrigin string
}

// Hub routes frames to registered connections.
type Hub struct {
	reg     *registry.Registry
	store   *metrics.Store
	ids     *notify.IDSource
	history *notify.History
	cfg     config.HubConfig
	origin  string

	upgrader websocket.Upgrader

	// relay receives validated send_notification requests. Defaults to the
	// hub itself; the server points it at the bus when one is configured.
	relay notify.Publisher

	// dispatch serializes every enqueue so all connections observe one order.
	dispatch sync.Mutex
	closing  atomic.Bool
	writers  sync.WaitGroup

	stats counters
}

// New creates a Hub. Zero-valued Config fields fall back to defaults.
func New(opts Options) *Hub {
	cfg := opts.Config
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = config.DefaultSendBuffer
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = config.DefaultWriteTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = config.DefaultPongWait
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = config.DefaultMaxMessageSize
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = config.DefaultPollWait
	}
	if cfg.RelayRate <= 0 {
		cfg.RelayRate = config.DefaultRelayRate
	}
	if cfg.RelayBurst <= 0 {
		cfg.RelayBurst = config.DefaultRelayBurst
	}

	h := &Hub{
		reg:     opts.Registry,
		store:   opts.Store,
		ids:     opts.IDs,
		history: opts.History,
		cfg:     cfg,
		origin:  opts.AllowedOrigin,
	}
	h.relay = h
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// SetRelay routes validated client notifications to p instead of
// broadcasting them directly. Call before serving connections.
func (h *Hub) SetRelay(p notify.Publisher) {
	if p != nil {
		h.relay = p
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	return h.reg.Count()
}

// Broadcast encodes payload once and enqueues it on every connection
// registered at the moment of the call. It returns the number of targets.
func (h *Hub) Broadcast(event string, payload any) (int, error) {
	frame, err := types.Encode(event, payload)
	if err != nil {
		return 0, fmt.Errorf("hub: encode %s: %w", event, err)
	}

	h.dispatch.Lock()
	defer h.dispatch.Unlock()
	targets := 0
	h.reg.ForEach(func(_ string, c registry.Conn) {
		h.deliver(c, frame)
		targets++
	})
	h.stats.broadcasts.Add(1)
	return targets, nil
}

// Unicast enqueues payload on one connection. It reports false, without
// error, when id is not registered.
func (h *Hub) Unicast(id, event string, payload any) bool {
	frame, err := types.Encode(event, payload)
	if err != nil {
		slog.Error("hub: encode unicast", "event", event, "err", err)
		return false
	}

	h.dispatch.Lock()
	defer h.dispatch.Unlock()
	return h.unicastLocked(id, frame)
}

// PublishMetrics implements metrics.Sink.
func (h *Hub) PublishMetrics(_ context.Context, snap types.MetricsSnapshot) error {
	n, err := h.Broadcast(types.EventSystemMetrics, snap)
	if err != nil {
		return err
	}
	slog.Debug("hub: metrics broadcast", "targets", n)
	return nil
}

// PublishNotification implements notify.Publisher. The notification is
// recorded in History and broadcast to every connection.
func (h *Hub) PublishNotification(_ context.Context, n types.Notification) error {
	if h.history != nil {
		h.history.Add(n)
	}
	targets, err := h.Broadcast(types.EventNotification, n)
	if err != nil {
		return err
	}
	slog.Info("hub: notification broadcast", "id", n.ID, "type", n.Type, "targets", targets)
	return nil
}

// Run sweeps idle polling sessions until ctx is cancelled. A session that
// has not polled for PongWait is closed and unregistered.
func (h *Hub) Run(ctx context.Context) {
	interval := h.cfg.PollWait
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := h.reg.Sweep(registry.TransportPolling, h.cfg.PongWait); n > 0 {
				slog.Info("hub: expired idle polling sessions", "count", n)
			}
		}
	}
}

// Shutdown stops accepting connections, closes every outbox so writers flush
// queued frames followed by a close frame, and waits for the writers to exit.
// If ctx expires first the remaining connections are closed immediately and
// ctx's error is returned.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.dispatch.Lock()
	h.closing.Store(true)
	targets := h.reg.Snapshot()
	h.dispatch.Unlock()

	slog.Info("hub: shutting down", "connections", len(targets))
	for _, t := range targets {
		t.Conn.Close()
	}

	done := make(chan struct{})
	go func() {
		h.writers.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub: all connections drained")
		return nil
	case <-ctx.Done():
		forced := 0
		for _, t := range targets {
			if fc, ok := t.Conn.(interface{ forceClose() }); ok {
				fc.forceClose()
				forced++
			}
		}
		slog.Warn("hub: shutdown grace expired, forcing close", "connections", forced)
		return fmt.Errorf("hub: shutdown: %w", ctx.Err())
	}
}

// --- internal ---------------------------------------------------------------

// attach registers conn and pins the current metrics snapshot and the
// welcome notification at the head of out, ahead of any other frame. Overflow
// never evicts them.
func (h *Hub) attach(conn registry.Conn, out *outbox, remote, transport string, writer bool) (string, error) {
	h.dispatch.Lock()
	defer h.dispatch.Unlock()
	if h.closing.Load() {
		return "", ErrClosing
	}

	snapFrame, err := types.Encode(types.EventSystemMetrics, h.store.Read())
	if err != nil {
		return "", fmt.Errorf("hub: encode snapshot: %w", err)
	}
	welcome, err := types.Encode(types.EventNotification, notify.Welcome(h.ids))
	if err != nil {
		return "", fmt.Errorf("hub: encode welcome: %w", err)
	}

	if writer {
		h.writers.Add(1)
	}
	id := h.reg.Register(conn, remote, transport)
	out.setID(id)
	for _, f := range [][]byte{snapFrame, welcome} {
		if out.pin(f) {
			h.stats.enqueued.Add(1)
		}
	}

	slog.Info("hub: client connected", "id", id, "remote", remote, "transport", transport)
	return id, nil
}

func (h *Hub) detach(id string, out *outbox) {
	info, _ := h.reg.Info(id)
	if h.reg.Unregister(id) {
		slog.Info("hub: client disconnected", "id", id, "transport", info.Transport,
			"connected_for", time.Since(info.ConnectedAt).Round(time.Millisecond))
	}
	out.Close()
}

func (h *Hub) unicastLocked(id string, frame []byte) bool {
	conn, ok := h.reg.Get(id)
	if !ok {
		return false
	}
	h.deliver(conn, frame)
	h.stats.unicasts.Add(1)
	return true
}

// deliver must be called with h.dispatch held.
func (h *Hub) deliver(conn registry.Conn, frame []byte) {
	if conn.Send(frame) {
		h.stats.enqueued.Add(1)
	}
}

func (h *Hub) onDrop(id string) {
	h.stats.dropped.Add(1)
	slog.Warn("hub: outbox full, dropped oldest frame", "id", id)
}

func (h *Hub) newLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(h.cfg.RelayRate), h.cfg.RelayBurst)
}

// handle dispatches one inbound envelope from connection id.
func (h *Hub) handle(ctx context.Context, id string, lim *rate.Limiter, raw []byte) {
	h.reg.Touch(id)

	var env types.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		h.reject(id, CodeMalformed, "frame must be a JSON object with an event name")
		return
	}

	switch env.Event {
	case types.EventRequestMetrics:
		h.sendMetrics(id)
	case types.EventSendNotification:
		h.relayNotification(ctx, id, lim, env.Data)
	default:
		h.reject(id, CodeUnknownEvent, fmt.Sprintf("unknown event %q", env.Event))
	}
}

func (h *Hub) sendMetrics(id string) {
	h.dispatch.Lock()
	defer h.dispatch.Unlock()
	frame, err := types.Encode(types.EventSystemMetrics, h.store.Read())
	if err != nil {
		slog.Error("hub: encode snapshot", "err", err)
		return
	}
	h.unicastLocked(id, frame)
}

func (h *Hub) relayNotification(ctx context.Context, id string, lim *rate.Limiter, data json.RawMessage) {
	if lim != nil && !lim.Allow() {
		h.stats.relaysRejected.Add(1)
		h.reject(id, CodeRateLimited, "too many notifications, slow down")
		return
	}

	n, err := notify.FromRequest(data, h.ids)
	if err != nil {
		h.stats.relaysRejected.Add(1)
		slog.Info("hub: relay rejected", "id", id, "err", err)
		h.reject(id, CodeInvalid, err.Error())
		return
	}

	if err := h.relay.PublishNotification(ctx, n); err != nil {
		slog.Warn("hub: relay publish failed", "id", id, "notification", n.ID, "err", err)
		h.reject(id, CodePublishFailed, "notification could not be published")
		return
	}
	h.stats.relaysAccepted.Add(1)
}

func (h *Hub) reject(id, code, msg string) {
	h.Unicast(id, types.EventError, types.ErrorPayload{Code: code, Message: msg})
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.origin == "" || h.origin == "*" {
		return true
	}
	return strings.EqualFold(origin, h.origin)
}
