// Package config loads the notifyhub-server configuration.
//
// Precedence: built-in defaults < YAML file < environment variables. The YAML
// file is optional; a missing file leaves the defaults in place.
//
// Notable fields:
//   - Server.HTTPPort: WebSocket, polling and REST port (default 3003, env NOTIFICATION_PORT)
//   - Server.GRPCPort: gRPC health probe (default 50051, 0 disables)
//   - Server.CORS.Origin: the only allowed origin (env FRONTEND_URL)
//   - Metrics.Provider: random | host | scrape
//   - Notifications.*: generator interval and optional template catalog
//   - Bus.NATSURL: enables cross-instance fan-out (env NATS_URL)
//
// Load(path) applies defaults, the file, then the environment, and validates.
// Watch(ctx, path, fn) reloads the file on change.
package config
