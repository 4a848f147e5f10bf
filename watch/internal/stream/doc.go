// Package stream keeps a WebSocket subscription to notifyhub-server open.
//
// Client.Run dials, hands every received envelope to a Handler, optionally
// sends request_metrics on an interval, and reconnects with truncated
// exponential backoff (±25% jitter) whenever the connection drops. The
// backoff resets after every successful handshake.
package stream
