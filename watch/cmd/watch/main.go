package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/watch/internal/config"
	"github.com/nusantararadius/notifyhub/watch/internal/stream"
)

func main() {
	configPath := flag.String("config", "watch.yaml", "path to config file (optional)")
	url := flag.String("url", "", "override the server WebSocket URL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	if *url != "" {
		cfg.URL = *url
	}

	slog.SetDefault(newLogger(cfg.Logging))
	slog.Info("notifyhub-watch starting",
		"url", cfg.URL,
		"request_metrics_every", cfg.RequestMetricsEvery,
		"events", cfg.Events,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := stream.New(cfg, func(env types.Envelope) {
		if cfg.Wants(env.Event) {
			logEnvelope(env)
		}
	})
	if err != nil {
		slog.Error("failed to build client", "err", err)
		os.Exit(1)
	}

	client.Run(ctx) //nolint:errcheck // returns nil once ctx is done
	slog.Info("notifyhub-watch stopped", "sessions", client.Sessions())
}

func logEnvelope(env types.Envelope) {
	switch env.Event {
	case types.EventSystemMetrics:
		var m types.MetricsSnapshot
		if err := json.Unmarshal(env.Data, &m); err != nil {
			slog.Warn("undecodable metrics frame", "err", err)
			return
		}
		slog.Info("metrics",
			"active_users", m.ActiveUsers,
			"total_revenue", m.TotalRevenue,
			"server_load", m.ServerLoad,
			"uptime", m.Uptime,
			"last_update", m.LastUpdate,
		)

	case types.EventNotification:
		var n types.Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			slog.Warn("undecodable notification frame", "err", err)
			return
		}
		slog.Info("notification",
			"id", n.ID,
			"type", n.Type,
			"severity", n.Severity,
			"title", n.Title,
			"message", n.Message,
		)

	case types.EventError:
		var e types.ErrorPayload
		json.Unmarshal(env.Data, &e) //nolint:errcheck
		slog.Warn("server error", "code", e.Code, "message", e.Message)

	default:
		slog.Info("event", "event", env.Event, "data", string(env.Data))
	}
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
