package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nusantararadius/notifyhub/server/internal/alerts"
	"github.com/nusantararadius/notifyhub/server/internal/auth"
	"github.com/nusantararadius/notifyhub/server/internal/config"
	"github.com/nusantararadius/notifyhub/server/internal/metrics"
	"github.com/nusantararadius/notifyhub/server/internal/notify"
	"github.com/nusantararadius/notifyhub/server/internal/registry"
	"github.com/nusantararadius/notifyhub/server/internal/telemetry"
	"github.com/nusantararadius/notifyhub/server/internal/ws"
)

const (
	defaultHistoryLimit = 50
	maxRequestBody      = 64 << 10
	apiTimeout          = 15 * time.Second
)

// Deps is everything the router reads from or drives.
type Deps struct {
	Hub       *ws.Hub
	Registry  *registry.Registry
	Store     *metrics.Store
	Updater   *metrics.Updater
	Generator *notify.Generator
	History   *notify.History
	IDs       *notify.IDSource

	// Publisher receives notifications posted through the REST API. With a
	// NATS bus configured this is the bus, so every instance delivers them.
	Publisher notify.Publisher

	Alerts *alerts.Engine

	Server    config.ServerConfig
	HubConfig config.HubConfig

	StartedAt time.Time
}

// Handler serves the REST routes. It is mounted by New.
type Handler struct {
	d Deps
}

// New builds the chi router for the whole HTTP port.
func New(d Deps) http.Handler {
	if d.StartedAt.IsZero() {
		d.StartedAt = time.Now()
	}
	if d.HubConfig.WebSocketPath == "" {
		d.HubConfig.WebSocketPath = "/socket"
	}
	if d.HubConfig.PollingPath == "" {
		d.HubConfig.PollingPath = d.HubConfig.WebSocketPath + "/poll"
	}
	h := &Handler{d: d}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(CORS(d.Server.CORS))

	r.Handle(d.HubConfig.WebSocketPath, d.Hub)
	r.HandleFunc(d.HubConfig.PollingPath, d.Hub.ServePoll)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler(d.Hub, d.Store))

	requireKey := auth.RequireAPIKey(
		d.Server.Auth.Mode,
		d.Server.Auth.EffectiveHeader(),
		d.Server.Auth.Key(),
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(apiTimeout))

		r.Get("/health", h.health)
		r.Get("/metrics", h.metrics)
		r.Get("/connections", h.connections)
		r.Get("/notifications", h.listNotifications)
		r.Get("/alerts", h.alerts)

		r.With(requireKey).Post("/metrics/refresh", h.refreshMetrics)
		r.With(requireKey).Post("/notifications", h.publishNotification)
		r.With(requireKey).Post("/notifications/generate", h.generateNotification)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		StartedAt: h.d.StartedAt.UTC(),
		UptimeSec: time.Since(h.d.StartedAt).Seconds(),
	}
	for _, info := range h.d.Registry.List() {
		resp.Connections++
		switch info.Transport {
		case registry.TransportWebSocket:
			resp.WebSocket++
		case registry.TransportPolling:
			resp.Polling++
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) metrics(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, h.d.Store.Read())
}

// refreshMetrics runs one update cycle and broadcasts it like a tick would.
func (h *Handler) refreshMetrics(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.d.Updater.UpdateNow(r.Context())
	if !ok {
		jsonErr(w, http.StatusBadGateway, "metrics provider failed")
		return
	}
	jsonResp(w, http.StatusOK, snap)
}

func (h *Handler) connections(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, ConnectionsResponse{
		Connections: h.d.Registry.List(),
		Stats:       h.d.Hub.Stats(),
	})
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			jsonErr(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	jsonResp(w, http.StatusOK, h.d.History.List(limit))
}

// publishNotification accepts the same body as a send_notification relay.
func (h *Handler) publishNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	n, err := notify.FromRequest(body, h.d.IDs)
	if errors.Is(err, notify.ErrInvalidPayload) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "invalid_payload"})
		return
	}
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.d.Publisher.PublishNotification(r.Context(), n); err != nil {
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error(), Code: "publish_failed"})
		return
	}
	jsonResp(w, http.StatusAccepted, n)
}

func (h *Handler) generateNotification(w http.ResponseWriter, r *http.Request) {
	n, err := h.d.Generator.Fire(r.Context())
	if err != nil {
		jsonErr(w, http.StatusBadGateway, err.Error())
		return
	}
	jsonResp(w, http.StatusAccepted, n)
}

func (h *Handler) alerts(w http.ResponseWriter, _ *http.Request) {
	list := h.d.Alerts.Active()
	if list == nil {
		list = []*alerts.Alert{}
	}
	jsonResp(w, http.StatusOK, list)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	writeJSON(w, code, v)
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
