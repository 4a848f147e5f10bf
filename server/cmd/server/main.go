package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/nusantararadius/notifyhub/server/internal/alerts"
	"github.com/nusantararadius/notifyhub/server/internal/api"
	"github.com/nusantararadius/notifyhub/server/internal/bus"
	"github.com/nusantararadius/notifyhub/server/internal/config"
	"github.com/nusantararadius/notifyhub/server/internal/logger"
	"github.com/nusantararadius/notifyhub/server/internal/metrics"
	"github.com/nusantararadius/notifyhub/server/internal/notify"
	"github.com/nusantararadius/notifyhub/server/internal/probe"
	"github.com/nusantararadius/notifyhub/server/internal/registry"
	"github.com/nusantararadius/notifyhub/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file (optional; defaults and environment apply without it)")
	flag.Parse()

	// .env is optional; values already in the environment win.
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	log, level := logger.New(os.Stdout, cfg.Logging)
	slog.SetDefault(log)
	if envErr != nil {
		slog.Debug("no .env file loaded", "err", envErr)
	}

	slog.Info("notifyhub-server starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"grpc_port", cfg.Server.GRPCPort,
		"auth_mode", cfg.Server.Auth.Mode,
		"metrics_provider", cfg.Metrics.Provider,
		"cors_origin", cfg.Server.CORS.Origin,
	)

	if err := run(cfg, *configPath, level); err != nil {
		slog.Error("notifyhub-server stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("notifyhub-server stopped")
}

func run(cfg *config.Config, configPath string, level *slog.LevelVar) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	reg := registry.New()
	store := metrics.NewStore(metrics.InitialSnapshot(cfg.Metrics.Initial))
	ids, err := newIDSource(cfg.Bus)
	if err != nil {
		return err
	}
	history := notify.NewHistory(cfg.Notifications.HistorySize)

	hub := ws.New(ws.Options{
		Registry:      reg,
		Store:         store,
		IDs:           ids,
		History:       history,
		Config:        cfg.Hub,
		AllowedOrigin: cfg.Server.CORS.Origin,
	})

	// Everything that should reach all clients goes through the bus.
	b, err := newBus(cfg.Bus, hub)
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck
	hub.SetRelay(b)

	catalog, err := notify.NewRandomCatalog(notify.TemplatesFromConfig(cfg.Notifications.Catalog), cfg.Metrics.Seed)
	if err != nil {
		return fmt.Errorf("notification catalog: %w", err)
	}
	gen := notify.NewGenerator(catalog, ids, b, cfg.Notifications.Interval)

	engine, err := alerts.New(cfg.Alerts, ids, b)
	if err != nil {
		return err
	}

	provider, err := metrics.NewProvider(cfg.Metrics)
	if err != nil {
		return err
	}
	updater := metrics.NewUpdater(store, provider, metrics.Sinks(hub, engine), cfg.Metrics.Interval)

	pr := probe.New()

	httpSrv := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: api.New(api.Deps{
			Hub:       hub,
			Registry:  reg,
			Store:     store,
			Updater:   updater,
			Generator: gen,
			History:   history,
			IDs:       ids,
			Publisher: b,
			Alerts:    engine,
			Server:    cfg.Server,
			HubConfig: cfg.Hub,
			StartedAt: time.Now(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { hub.Run(gctx); return nil })
	g.Go(func() error { return b.Run(gctx) })
	g.Go(func() error { gen.Run(gctx); return nil })
	g.Go(func() error { updater.Run(gctx); return nil })

	g.Go(func() error {
		err := pr.ListenAndServe(gctx, cfg.Server.GRPCPort)
		if errors.Is(err, probe.ErrDisabled) {
			slog.Info("gRPC health probe disabled")
			return nil
		}
		return err
	})

	g.Go(func() error {
		err := config.Watch(gctx, configPath, func(c *config.Config) {
			level.Set(logger.ParseLevel(c.Logging.Level))
			if err := catalog.Replace(notify.TemplatesFromConfig(c.Notifications.Catalog)); err != nil {
				slog.Error("config: catalog not replaced", "err", err)
			}
			gen.SetInterval(c.Notifications.Interval)
			if err := engine.SetRules(c.Alerts.Rules); err != nil {
				slog.Error("config: alert rules not replaced", "err", err)
			}
			slog.Info("config: applied hot-reloadable settings",
				"log_level", c.Logging.Level,
				"templates", catalog.Len(),
				"notify_interval", c.Notifications.Interval,
				"alert_rules", len(c.Alerts.Rules),
			)
		})
		if err != nil {
			slog.Warn("config: hot reload unavailable", "err", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort,
			"websocket", cfg.Hub.WebSocketPath, "polling", cfg.Hub.PollingPath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("notifyhub-server shutting down", "grace", cfg.Server.ShutdownGrace)
		pr.SetServing(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()

		// Close client connections first so pending long-polls return and
		// the HTTP server has nothing left to wait for.
		if err := hub.Shutdown(shutdownCtx); err != nil {
			slog.Warn("hub shutdown incomplete", "err", err)
		}
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newIDSource partitions notification IDs by instance when a shared bus
// carries them to other instances.
func newIDSource(cfg config.BusConfig) (*notify.IDSource, error) {
	if cfg.NATSURL == "" {
		return notify.NewIDSource(), nil
	}
	instance := cfg.Instance
	if instance < 0 {
		instance = rand.IntN(notify.MaxInstance + 1)
		slog.Warn("bus: no instance index configured, picked one at random; set bus.instance to rule out ID collisions",
			"instance", instance)
	}
	return notify.NewInstanceIDSource(instance, nil)
}

func newBus(cfg config.BusConfig, hub *ws.Hub) (bus.Bus, error) {
	if cfg.NATSURL == "" {
		return bus.NewLocal(hub), nil
	}
	nb, err := bus.Connect(cfg.NATSURL, cfg.Subject, hub)
	if err != nil {
		return nil, err
	}
	return nb, nil
}
