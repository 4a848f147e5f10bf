package api

import (
	"time"

	"github.com/nusantararadius/notifyhub/server/internal/registry"
	"github.com/nusantararadius/notifyhub/server/internal/ws"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status      string    `json:"status"`
	Connections int       `json:"connections"`
	WebSocket   int       `json:"websocket"`
	Polling     int       `json:"polling"`
	StartedAt   time.Time `json:"started_at"`
	UptimeSec   float64   `json:"uptime_seconds"`
}

// ConnectionsResponse is the payload for GET /api/v1/connections.
type ConnectionsResponse struct {
	Connections []registry.Info `json:"connections"`
	Stats       ws.Stats        `json:"stats"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
