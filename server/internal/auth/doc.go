// Package auth provides API key authentication for the mutating REST routes
// of notifyhub-server.
package auth
