// Package ws implements the broadcast router and client connection lifecycle
// for notifyhub-server.
//
// Hub owns delivery. Every connection, WebSocket or HTTP long-poll, has a
// bounded outbox; Broadcast and Unicast enqueue pre-encoded frames without
// blocking, and a full outbox drops its oldest frame. Dispatch is serialized
// so all connections observe submissions in the same order, and a newly
// registered connection always receives its metrics snapshot and welcome
// notification before any broadcast. That pair is pinned in the outbox and
// survives overflow.
//
// Every frame in both directions is an envelope:
//
//	{
//	  "event": "system_metrics" | "notification" | "error" | ...,
//	  "data":  { ... }
//	}
//
// Clients may send "request_metrics" (answered to the sender only) and
// "send_notification" (validated, then broadcast to everyone). Rejections
// and unknown events produce an "error" event for the sender only.
//
// Hub.ServeHTTP serves the WebSocket endpoint (mounted at /socket by the
// server). Hub.ServePoll serves the long-polling fallback (/socket/poll).
// Hub.Shutdown refuses new connections, flushes every outbox and waits for
// writers to finish.
package ws
