// Package api implements the HTTP surface of notifyhub-server: the chi
// router that mounts the WebSocket endpoint, the long-polling fallback, the
// Prometheus exposition and the /api/v1 REST routes.
//
// Endpoints:
//
//	GET  /api/v1/health                  liveness and connection counts
//	GET  /api/v1/metrics                 current metrics snapshot
//	POST /api/v1/metrics/refresh         run one metrics update and broadcast it
//	GET  /api/v1/connections             registered connections and hub stats
//	GET  /api/v1/notifications?limit=N   recent broadcast notifications, newest first
//	POST /api/v1/notifications           publish a notification (same validation as relays)
//	POST /api/v1/notifications/generate  fire the notification generator once
//	GET  /api/v1/alerts                  firing and recently resolved alerts
//	GET  /metrics                        Prometheus text exposition
//
// POST routes require the API key when server.auth.mode is apikey. All
// responses are JSON; errors are {"error": "..."}.
package api
